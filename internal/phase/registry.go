package phase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/vk/buildgrid/internal/config"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/param"
)

// namePattern is the shape every phase name must have: the "phase:" prefix
// followed by a lowercase, hyphen-separated identifier with no trailing
// hyphen.
var namePattern = regexp.MustCompile(`^phase:[a-z](?:[a-z0-9-]*[a-z0-9])?$`)

// Registry holds every known phase, declared or synthetic, keyed by full
// name. Declaration order is preserved for deterministic iteration.
type Registry struct {
	byName  map[string]*Phase
	ordered []*Phase
}

// NewRegistry builds and validates a registry from raw phase declarations.
// It fails fast on the first invalid name, duplicate, dangling dependency
// reference or self-dependency cycle, naming the offending phase.
func NewRegistry(ctx context.Context, decls []*config.PhaseDecl) (*Registry, error) {
	logger := ctxlog.FromContext(ctx)
	r := &Registry{byName: make(map[string]*Phase, len(decls))}

	// First pass: create all phases so dependency references can resolve
	// regardless of declaration order.
	for _, decl := range decls {
		p, err := newPhase(decl)
		if err != nil {
			return nil, err
		}
		if err := r.add(p); err != nil {
			return nil, err
		}
	}

	// Second pass: resolve dependency names into phase references.
	for _, decl := range decls {
		p := r.byName[decl.Name]
		if err := r.resolveDeps(p, decl.SelfDeps, p.SelfDeps, "self"); err != nil {
			return nil, err
		}
		if err := r.resolveDeps(p, decl.UpstreamDeps, p.UpstreamDeps, "upstream"); err != nil {
			return nil, err
		}
	}

	// The self-dependency relation is the only one that can cycle within a
	// single project; upstream references always cross a project boundary.
	if err := r.detectSelfCycles(); err != nil {
		return nil, err
	}

	logger.Debug("Phase registry constructed.", "phases", len(r.ordered))
	return r, nil
}

func newPhase(decl *config.PhaseDecl) (*Phase, error) {
	if !namePattern.MatchString(decl.Name) {
		return nil, fmt.Errorf("%w: %q must match %q", ErrInvalidName, decl.Name, namePattern.String())
	}
	logFilename := decl.LogFilename
	if logFilename == "" {
		logFilename = strings.TrimPrefix(decl.Name, Prefix)
	}
	return &Phase{
		Name:                  decl.Name,
		LogFilenameIdentifier: logFilename,
		IgnoreMissingScript:   decl.IgnoreMissingScript,
		AllowWarnings:         decl.AllowWarnings,
		SelfDeps:              make(map[string]*Phase),
		UpstreamDeps:          make(map[string]*Phase),
		AssociatedParameters:  param.NewSet(),
	}, nil
}

func (r *Registry) add(p *Phase) error {
	if _, exists := r.byName[p.Name]; exists {
		return fmt.Errorf("%w: %q is declared more than once", ErrDuplicate, p.Name)
	}
	r.byName[p.Name] = p
	r.ordered = append(r.ordered, p)
	return nil
}

func (r *Registry) resolveDeps(p *Phase, names []string, into map[string]*Phase, relation string) error {
	for _, name := range names {
		dep, ok := r.byName[name]
		if !ok {
			return fmt.Errorf("%w: phase %q declares a %s dependency on %q, which does not exist",
				ErrUnknownPhase, p.Name, relation, name)
		}
		into[dep.Name] = dep
	}
	return nil
}

// AddSynthetic registers a synthetic phase generated from a bulk command.
// The name must still be unique across all phases.
func (r *Registry) AddSynthetic(p *Phase) error {
	p.IsSynthetic = true
	return r.add(p)
}

// Get returns the phase with the given full name, or nil.
func (r *Registry) Get(name string) *Phase {
	return r.byName[name]
}

// All returns every phase in declaration order. The slice is the registry's
// backing storage; callers must not modify it.
func (r *Registry) All() []*Phase {
	return r.ordered
}

// Len returns the number of registered phases.
func (r *Registry) Len() int {
	return len(r.ordered)
}
