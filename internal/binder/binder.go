// Package binder attaches custom parameters to the commands and phases they
// are associated with, and validates that every parameter is reachable at
// execution time.
package binder

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/buildgrid/internal/command"
	"github.com/vk/buildgrid/internal/config"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/param"
	"github.com/vk/buildgrid/internal/phase"
)

// Sentinel errors for parameter binding.
var (
	ErrUnknownKind    = errors.New("unknown parameter kind")
	ErrDuplicate      = errors.New("duplicate parameter")
	ErrUnknownCommand = errors.New("unknown command reference")
	ErrUnknownPhase   = errors.New("unknown phase reference")
	ErrNoCommands     = errors.New("parameter with no associated command")
	ErrNoPhases       = errors.New("phase-scoped parameter with no associated phase")
	ErrNoAlternatives = errors.New("choice parameter with no alternatives")
	ErrBadDefault     = errors.New("choice parameter default not among alternatives")
)

// Bind resolves every parameter declaration against the command and phase
// registries, mutating the commands' and phases' association sets in place.
// Parameters bound to a translated bulk command are additionally associated
// with that command's synthetic phase, because phased commands dispatch
// parameters by phase at execution time.
func Bind(ctx context.Context, decls []*config.ParameterDecl, commands *command.Registry, phases *phase.Registry) ([]*param.Parameter, error) {
	logger := ctxlog.FromContext(ctx)

	out := make([]*param.Parameter, 0, len(decls))
	seen := make(map[string]struct{}, len(decls))

	for _, decl := range decls {
		p, err := newParameter(decl)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p.LongName]; dup {
			return nil, fmt.Errorf("%w: %q is declared more than once", ErrDuplicate, p.LongName)
		}
		seen[p.LongName] = struct{}{}

		if err := associate(p, decl, commands, phases); err != nil {
			return nil, err
		}
		if err := validateReachability(p, commands); err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	logger.Debug("Parameters bound.", "count", len(out))
	return out, nil
}

func newParameter(decl *config.ParameterDecl) (*param.Parameter, error) {
	p := &param.Parameter{
		Kind:         param.Kind(decl.Kind),
		LongName:     decl.LongName,
		Description:  decl.Description,
		Alternatives: decl.Alternatives,
		Default:      decl.Default,
	}

	switch p.Kind {
	case param.KindFlag, param.KindString:
	case param.KindChoice:
		if len(p.Alternatives) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoAlternatives, p.LongName)
		}
		if p.Default != "" && !p.AllowsValue(p.Default) {
			return nil, fmt.Errorf("%w: %q defaults to %q, alternatives are %v",
				ErrBadDefault, p.LongName, p.Default, p.Alternatives)
		}
	default:
		return nil, fmt.Errorf("%w: parameter %q has kind %q", ErrUnknownKind, p.LongName, decl.Kind)
	}
	return p, nil
}

func associate(p *param.Parameter, decl *config.ParameterDecl, commands *command.Registry, phases *phase.Registry) error {
	for _, name := range decl.Commands {
		cmd := commands.Get(name)
		if cmd == nil {
			return fmt.Errorf("%w: parameter %q is associated with command %q, which does not exist",
				ErrUnknownCommand, p.LongName, name)
		}
		cmd.AssociatedParameters.Add(p)
		p.AssociatedCommands = append(p.AssociatedCommands, cmd.Name)

		if cmd.IsTranslatedBulk() {
			cmd.SyntheticPhase.AssociatedParameters.Add(p)
			p.AssociatedPhases = append(p.AssociatedPhases, cmd.SyntheticPhase.Name)
		}
	}

	for _, name := range decl.Phases {
		ph := phases.Get(name)
		if ph == nil {
			return fmt.Errorf("%w: parameter %q is associated with phase %q, which does not exist",
				ErrUnknownPhase, p.LongName, name)
		}
		ph.AssociatedParameters.Add(p)
		p.AssociatedPhases = append(p.AssociatedPhases, ph.Name)
	}
	return nil
}

// validateReachability enforces the two fatal association rules: a parameter
// must reach at least one command, and a parameter reachable only through
// phased commands must resolve to at least one phase, since that is how its
// value is dispatched at execution time.
func validateReachability(p *param.Parameter, commands *command.Registry) error {
	if len(p.AssociatedCommands) == 0 {
		return fmt.Errorf("%w: %q", ErrNoCommands, p.LongName)
	}

	phasedOnly := true
	for _, name := range p.AssociatedCommands {
		if commands.Get(name).Kind != command.KindPhased {
			phasedOnly = false
			break
		}
	}
	if phasedOnly && len(p.AssociatedPhases) == 0 {
		return fmt.Errorf("%w: %q is associated only with phased commands %v",
			ErrNoPhases, p.LongName, p.AssociatedCommands)
	}
	return nil
}
