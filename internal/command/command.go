// Package command implements the command registry: parsing command
// declarations (global, bulk, phased), translating legacy bulk commands into
// phased commands with a synthetic phase, merging the built-in build/rebuild
// defaults and enforcing their safety invariants.
package command

import (
	"github.com/vk/buildgrid/internal/param"
	"github.com/vk/buildgrid/internal/phase"
)

// Kind discriminates the command flavors. After registry construction only
// KindGlobal and KindPhased remain; every bulk command has been translated.
type Kind string

const (
	// KindGlobal runs a single shell command once, independent of the
	// project graph.
	KindGlobal Kind = "global"
	// KindBulk is the legacy single-phase kind. It exists only in raw
	// declarations; translation rewrites it to KindPhased.
	KindBulk Kind = "bulk"
	// KindPhased runs a set of phases across the selected projects.
	KindPhased Kind = "phased"
)

// Reserved command names with special defaulting and safety rules.
const (
	NameBuild   = "build"
	NameRebuild = "rebuild"
)

// Command is a fully resolved, invocable command.
type Command struct {
	Kind    Kind
	Name    string
	Summary string
	// SafeForSimultaneousProcesses marks the command runnable while another
	// orchestrator process holds the repo lock. Never true for build/rebuild.
	SafeForSimultaneousProcesses bool

	// ShellCommand is the command line of a global command.
	ShellCommand string

	// Incremental enables cache-based skip logic for the command's
	// operations.
	Incremental bool

	// Phases is the expanded phase set of a phased command: the declared
	// phases plus everything reachable through self and upstream
	// dependencies.
	Phases map[string]*phase.Phase

	// WatchPhases is the literal watch-mode subset. No expansion applies.
	WatchPhases map[string]*phase.Phase

	// SyntheticPhase is the phase generated for a translated bulk command,
	// nil for commands that were declared phased or global. The binder uses
	// it to re-associate the command's parameters to the phase.
	SyntheticPhase *phase.Phase

	// AssociatedParameters are the custom parameters attached to this
	// command. A default-synthesized rebuild shares build's set by identity.
	AssociatedParameters *param.Set
}

// IsTranslatedBulk reports whether this command started life as a bulk
// declaration.
func (c *Command) IsTranslatedBulk() bool {
	return c.SyntheticPhase != nil
}

// PhaseNames returns the expanded phase set in sorted order.
func (c *Command) PhaseNames() []string {
	return sortedPhaseNames(c.Phases)
}
