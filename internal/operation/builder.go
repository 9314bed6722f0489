package operation

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/buildgrid/internal/command"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/project"
)

// BuildGraph constructs the operation DAG for one invocation: the cross
// product of the command's expanded phase set and the in-scope projects,
// wired by per-project self-dependencies and cross-project upstream
// dependencies. The caller decides the project set: expanded with the
// upstream closure for full runs, or a literal selection whose missing
// upstream edges are simply dropped.
//
// The result is acyclic by construction: the phase registry proved the self
// relation cycle-free and the project graph proved itself acyclic, and every
// edge either stays within one project's phases or follows a project edge.
// The builder assumes that invariant rather than re-checking it.
func BuildGraph(ctx context.Context, cmd *command.Command, projects []*project.Project, runner Runner) ([]*Operation, error) {
	logger := ctxlog.FromContext(ctx)

	if cmd.Kind == command.KindGlobal {
		op := newOperation(cmd, nil, nil, runner)
		logger.Debug("Built single-operation graph for global command.", "command", cmd.Name)
		return []*Operation{op}, nil
	}

	inScope := make(map[string]*project.Project, len(projects))
	for _, p := range projects {
		inScope[p.Name] = p
	}

	// First pass: one operation per (phase, project) pair.
	ops := make(map[string]*Operation, len(cmd.Phases)*len(projects))
	for _, ph := range cmd.Phases {
		for _, proj := range projects {
			op := newOperation(cmd, ph, proj, runner)
			ops[op.ID()] = op
		}
	}

	// Second pass: dependency edges. A dependency phase outside the
	// command's phase set contributes no edge: that only happens for the
	// literal watch-mode subsets, which run without their full closure.
	for _, op := range ops {
		for _, selfDep := range op.Phase.SelfDeps {
			if _, inSet := cmd.Phases[selfDep.Name]; !inSet {
				continue
			}
			dep, ok := ops[fmt.Sprintf("%s/%s", op.Project.Name, selfDep.Name)]
			if !ok {
				// The expanded phase set is closed under dependencies, so a
				// miss here is an internal defect, not a user error.
				return nil, fmt.Errorf("internal: operation %s depends on phase %q outside the built graph",
					op.ID(), selfDep.Name)
			}
			op.dependOn(dep)
		}

		for _, upstreamDep := range op.Phase.UpstreamDeps {
			if _, inSet := cmd.Phases[upstreamDep.Name]; !inSet {
				continue
			}
			for _, upstreamProj := range op.Project.DependsOn {
				// A literal selection may exclude upstream projects on
				// purpose, so an out-of-scope target contributes no edge,
				// the same way an out-of-set phase does above.
				if _, ok := inScope[upstreamProj.Name]; !ok {
					continue
				}
				op.dependOn(ops[fmt.Sprintf("%s/%s", upstreamProj.Name, upstreamDep.Name)])
			}
		}
	}

	out := make([]*Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })

	logger.Debug("Operation graph built.",
		"command", cmd.Name, "phases", len(cmd.Phases), "projects", len(projects), "operations", len(out))
	return out, nil
}
