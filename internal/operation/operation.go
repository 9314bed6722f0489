// Package operation defines the run-time unit of work, a (phase, project)
// pair, and the builder that wires units into the dependency DAG executed by
// the scheduler. Operations are created fresh for every command invocation
// and discarded afterwards; only external cache state survives a run.
package operation

import (
	"context"
	"fmt"

	"github.com/vk/buildgrid/internal/command"
	"github.com/vk/buildgrid/internal/phase"
	"github.com/vk/buildgrid/internal/project"
)

// Operation is one schedulable unit: a phase applied to a project, or the
// single unit of a global command (Phase and Project nil). Status is mutated
// only by the scheduler coordinator during one execution pass.
type Operation struct {
	// Command is the invoked command this operation belongs to.
	Command *command.Command
	// Phase and Project identify the unit. Both are nil for a global
	// command's single operation.
	Phase   *phase.Phase
	Project *project.Project

	// Runner executes the unit and reports its terminal status.
	Runner Runner

	// Dependencies must reach a non-blocking terminal state before this
	// operation may execute. Consumers holds the reverse edges.
	Dependencies map[string]*Operation
	Consumers    map[string]*Operation

	Status Status
}

// Result is what a runner reports back for one operation.
type Result struct {
	// Status is one of the terminal run outcomes: Success,
	// SuccessWithWarning, Failure, Skipped, NoOp or FromCache.
	Status Status
	// Output carries diagnostic output for the summary log.
	Output string
}

// Runner is the capability that actually executes an operation. The
// scheduler consumes only the returned status; spawning processes, hashing
// inputs and cache traffic are the runner's business.
type Runner interface {
	Run(ctx context.Context, op *Operation) Result
}

// ID returns the stable identifier used in logs, results and graph keys.
func (o *Operation) ID() string {
	if o.Project == nil {
		if o.Phase == nil {
			return o.Command.Name
		}
		return o.Phase.Name
	}
	return fmt.Sprintf("%s/%s", o.Project.Name, o.Phase.Name)
}

// dependOn records a dependency edge and its reverse edge.
func (o *Operation) dependOn(dep *Operation) {
	o.Dependencies[dep.ID()] = dep
	dep.Consumers[o.ID()] = o
}

func newOperation(cmd *command.Command, ph *phase.Phase, proj *project.Project, runner Runner) *Operation {
	return &Operation{
		Command:      cmd,
		Phase:        ph,
		Project:      proj,
		Runner:       runner,
		Dependencies: make(map[string]*Operation),
		Consumers:    make(map[string]*Operation),
		Status:       StatusReady,
	}
}
