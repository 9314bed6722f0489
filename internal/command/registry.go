package command

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/vk/buildgrid/internal/config"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/param"
	"github.com/vk/buildgrid/internal/phase"
)

// namePattern is the shape every command name must have: lowercase,
// hyphen-separated, no trailing hyphen. Bulk command names additionally
// become synthetic phase names, which depend on this shape.
var namePattern = regexp.MustCompile(`^[a-z](?:[a-z0-9-]*[a-z0-9])?$`)

// Registry holds every invocable command keyed by name, with bulk commands
// already translated and the built-in build/rebuild defaults merged in.
type Registry struct {
	byName  map[string]*Command
	ordered []*Command
	phases  *phase.Registry
}

// NewRegistry builds and validates a command registry. Synthetic phases for
// bulk commands are registered into the given phase registry as a side
// effect, so the binder and the graph builder see one unified phase table.
func NewRegistry(ctx context.Context, decls []*config.CommandDecl, phases *phase.Registry) (*Registry, error) {
	logger := ctxlog.FromContext(ctx)
	r := &Registry{
		byName: make(map[string]*Command, len(decls)+2),
		phases: phases,
	}

	merged, rebuildSynthesized, err := applyBuiltinDefaults(decls)
	if err != nil {
		return nil, err
	}

	for _, decl := range merged {
		if err := validateDecl(decl); err != nil {
			return nil, err
		}
		cmd, err := r.buildCommand(ctx, decl)
		if err != nil {
			return nil, err
		}
		if err := r.add(cmd); err != nil {
			return nil, err
		}
	}

	if rebuildSynthesized {
		// A defaulted rebuild is build minus incrementality: it shares
		// build's phase set and parameter set by identity.
		build := r.byName[NameBuild]
		rebuild := &Command{
			Kind:                 build.Kind,
			Name:                 NameRebuild,
			Summary:              defaultRebuildDecl().Summary,
			Incremental:          false,
			Phases:               build.Phases,
			WatchPhases:          build.WatchPhases,
			SyntheticPhase:       build.SyntheticPhase,
			AssociatedParameters: build.AssociatedParameters,
		}
		if err := r.add(rebuild); err != nil {
			return nil, err
		}
	}

	logger.Debug("Command registry constructed.",
		"commands", len(r.ordered), "rebuild_synthesized", rebuildSynthesized)
	return r, nil
}

// applyBuiltinDefaults merges repo declarations of build/rebuild over the
// built-in defaults (repo fields winning) and appends a default build when
// the repo declares none. A missing rebuild is reported to the caller
// instead of merged, because it is derived from the final build command.
func applyBuiltinDefaults(decls []*config.CommandDecl) ([]*config.CommandDecl, bool, error) {
	out := make([]*config.CommandDecl, 0, len(decls)+2)
	seen := make(map[string]struct{}, len(decls))
	haveBuild, haveRebuild := false, false

	for _, decl := range decls {
		if _, dup := seen[decl.Name]; dup {
			return nil, false, fmt.Errorf("%w: %q is declared more than once", ErrDuplicate, decl.Name)
		}
		seen[decl.Name] = struct{}{}

		switch decl.Name {
		case NameBuild:
			haveBuild = true
			decl = mergeDecl(defaultBuildDecl(), decl)
		case NameRebuild:
			haveRebuild = true
			decl = mergeDecl(defaultRebuildDecl(), decl)
		}
		out = append(out, decl)
	}

	if !haveBuild {
		out = append(out, defaultBuildDecl())
	}
	return out, !haveRebuild, nil
}

// validateDecl enforces the structural and safety invariants of a single
// declaration before any translation happens. Violations here are fatal
// configuration errors, never deferred to run time.
func validateDecl(decl *config.CommandDecl) error {
	if !namePattern.MatchString(decl.Name) {
		return fmt.Errorf("%w: %q must match %q", ErrInvalidName, decl.Name, namePattern.String())
	}

	switch Kind(decl.Kind) {
	case KindGlobal, KindBulk, KindPhased:
	default:
		return fmt.Errorf("%w: command %q has kind %q", ErrUnknownKind, decl.Name, decl.Kind)
	}

	if decl.Name == NameBuild || decl.Name == NameRebuild {
		if Kind(decl.Kind) == KindGlobal {
			return fmt.Errorf("%w: %q may not be declared with kind %q; allowed kinds are %q and %q",
				ErrReservedKind, decl.Name, KindGlobal, KindBulk, KindPhased)
		}
		if decl.SafeForSimultaneousProcesses != nil && *decl.SafeForSimultaneousProcesses {
			return fmt.Errorf("%w: %q may not set safe_for_simultaneous_processes",
				ErrReservedUnsafe, decl.Name)
		}
	}

	switch Kind(decl.Kind) {
	case KindGlobal:
		if decl.ShellCommand == "" {
			return fmt.Errorf("%w: command %q", ErrMissingShell, decl.Name)
		}
	case KindPhased:
		if len(decl.Phases) == 0 {
			return fmt.Errorf("%w: command %q", ErrMissingPhases, decl.Name)
		}
	case KindBulk:
		if len(decl.Phases) > 0 {
			return fmt.Errorf("%w: bulk command %q may not list phases; declare it phased instead",
				ErrUnknownKind, decl.Name)
		}
	}
	return nil
}

// buildCommand turns a validated declaration into a resolved command,
// translating bulk declarations and expanding phased phase sets.
func (r *Registry) buildCommand(ctx context.Context, decl *config.CommandDecl) (*Command, error) {
	cmd := &Command{
		Kind:                 Kind(decl.Kind),
		Name:                 decl.Name,
		Summary:              decl.Summary,
		ShellCommand:         decl.ShellCommand,
		AssociatedParameters: param.NewSet(),
	}
	if decl.SafeForSimultaneousProcesses != nil {
		cmd.SafeForSimultaneousProcesses = *decl.SafeForSimultaneousProcesses
	}
	if decl.Incremental != nil {
		cmd.Incremental = *decl.Incremental
	}

	switch cmd.Kind {
	case KindGlobal:
		return cmd, nil

	case KindBulk:
		if err := r.translateBulk(ctx, cmd, decl); err != nil {
			return nil, err
		}

	case KindPhased:
		seed := make([]*phase.Phase, 0, len(decl.Phases))
		for _, name := range decl.Phases {
			p := r.phases.Get(name)
			if p == nil {
				return nil, fmt.Errorf("%w: command %q references phase %q, which does not exist",
					ErrUnknownPhase, cmd.Name, name)
			}
			seed = append(seed, p)
		}
		cmd.Phases = expandPhaseSet(seed)
	}

	// Watch phases are taken literally; listing a phase outside the
	// expanded set is still a reference error.
	if len(decl.WatchPhases) > 0 {
		cmd.WatchPhases = make(map[string]*phase.Phase, len(decl.WatchPhases))
		for _, name := range decl.WatchPhases {
			p, ok := cmd.Phases[name]
			if !ok {
				return nil, fmt.Errorf("%w: command %q watches phase %q, which is not in its phase set",
					ErrUnknownPhase, cmd.Name, name)
			}
			cmd.WatchPhases[name] = p
		}
	}

	return cmd, nil
}

// translateBulk rewrites a legacy bulk command into a phased command with a
// single synthetic phase named after the command. Unless the declaration
// opts out with ignore_dependency_order, the synthetic phase upstream-depends
// on itself, encoding "build dependencies before dependents".
func (r *Registry) translateBulk(ctx context.Context, cmd *Command, decl *config.CommandDecl) error {
	logger := ctxlog.FromContext(ctx)

	synthetic := &phase.Phase{
		Name:                  phase.Prefix + decl.Name,
		LogFilenameIdentifier: decl.Name,
		// Bulk commands have always tolerated projects without a matching
		// script; those projects surface as NoOp.
		IgnoreMissingScript:  true,
		SelfDeps:             make(map[string]*phase.Phase),
		UpstreamDeps:         make(map[string]*phase.Phase),
		AssociatedParameters: param.NewSet(),
	}
	if decl.IgnoreDependencyOrder == nil || !*decl.IgnoreDependencyOrder {
		synthetic.UpstreamDeps[synthetic.Name] = synthetic
	}

	// A declared phase can collide with the synthetic name, most often
	// because the defaulted "build" command synthesizes "phase:build". Name
	// the way out instead of surfacing a bare duplicate error.
	if existing := r.phases.Get(synthetic.Name); existing != nil && !existing.IsSynthetic {
		return fmt.Errorf("%w: phase %q is already declared, but the bulk command %q synthesizes a phase of the same name; declare %q as a phased command using %q instead",
			phase.ErrDuplicate, synthetic.Name, decl.Name, decl.Name, synthetic.Name)
	}
	if err := r.phases.AddSynthetic(synthetic); err != nil {
		return fmt.Errorf("translating bulk command %q: %w", decl.Name, err)
	}

	cmd.Kind = KindPhased
	cmd.SyntheticPhase = synthetic
	cmd.Phases = expandPhaseSet([]*phase.Phase{synthetic})

	logger.Debug("Translated bulk command.",
		"command", decl.Name, "synthetic_phase", synthetic.Name,
		"ordered", len(synthetic.UpstreamDeps) > 0)
	return nil
}

// expandPhaseSet computes the transitive closure of the seed phases over
// self and upstream dependencies. A worklist keeps additions made during
// iteration visitable, so the result is closed: no member has a dependency
// outside the set.
func expandPhaseSet(seed []*phase.Phase) map[string]*phase.Phase {
	set := make(map[string]*phase.Phase, len(seed))
	queue := append([]*phase.Phase(nil), seed...)

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if _, done := set[p.Name]; done {
			continue
		}
		set[p.Name] = p
		for _, dep := range p.SelfDeps {
			queue = append(queue, dep)
		}
		for _, dep := range p.UpstreamDeps {
			queue = append(queue, dep)
		}
	}
	return set
}

func (r *Registry) add(cmd *Command) error {
	if _, exists := r.byName[cmd.Name]; exists {
		return fmt.Errorf("%w: %q is declared more than once", ErrDuplicate, cmd.Name)
	}
	r.byName[cmd.Name] = cmd
	r.ordered = append(r.ordered, cmd)
	return nil
}

// Get returns the command with the given name, or nil.
func (r *Registry) Get(name string) *Command {
	return r.byName[name]
}

// All returns every command in registration order. The slice is the
// registry's backing storage; callers must not modify it.
func (r *Registry) All() []*Command {
	return r.ordered
}

func sortedPhaseNames(phases map[string]*phase.Phase) []string {
	names := make([]string, 0, len(phases))
	for name := range phases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
