// Package project models the monorepo's project dependency graph. The graph
// is validated acyclic at load time; the operation graph builder and the
// scheduler assume that invariant instead of re-checking it.
package project

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vk/buildgrid/internal/config"
	"github.com/vk/buildgrid/internal/ctxlog"
)

// Sentinel errors for project graph validation.
var (
	ErrDuplicate      = errors.New("duplicate project name")
	ErrUnknownProject = errors.New("unknown project reference")
	ErrCycle          = errors.New("project dependency cycle")
)

// Project is one buildable unit of the monorepo.
type Project struct {
	Name string
	// Path is the project directory relative to the repo root.
	Path string
	// DependsOn holds the direct upstream projects.
	DependsOn []*Project
	// Dependents holds the direct downstream projects (reverse edges).
	Dependents []*Project
	// Scripts maps a phase name to the shell command implementing it.
	Scripts map[string]string
	// Outputs lists the directories phases write, relative to Path.
	Outputs []string
}

// Graph is the validated, acyclic project dependency graph.
type Graph struct {
	byName  map[string]*Project
	ordered []*Project
}

// NewGraph builds the project graph from raw declarations, resolving
// dependency references and rejecting cycles with the full member path.
func NewGraph(ctx context.Context, decls []*config.ProjectDecl) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	g := &Graph{byName: make(map[string]*Project, len(decls))}

	for _, decl := range decls {
		if _, exists := g.byName[decl.Name]; exists {
			return nil, fmt.Errorf("%w: %q is declared more than once", ErrDuplicate, decl.Name)
		}
		p := &Project{
			Name:    decl.Name,
			Path:    decl.Path,
			Scripts: decl.Scripts,
			Outputs: decl.Outputs,
		}
		if p.Scripts == nil {
			p.Scripts = make(map[string]string)
		}
		g.byName[p.Name] = p
		g.ordered = append(g.ordered, p)
	}

	for _, decl := range decls {
		p := g.byName[decl.Name]
		for _, depName := range decl.DependsOn {
			dep, ok := g.byName[depName]
			if !ok {
				return nil, fmt.Errorf("%w: project %q depends on %q, which does not exist",
					ErrUnknownProject, p.Name, depName)
			}
			p.DependsOn = append(p.DependsOn, dep)
			dep.Dependents = append(dep.Dependents, p)
		}
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	logger.Debug("Project graph constructed.", "projects", len(g.ordered))
	return g, nil
}

// Get returns the project with the given name, or nil.
func (g *Graph) Get(name string) *Project {
	return g.byName[name]
}

// All returns every project in declaration order. The slice is the graph's
// backing storage; callers must not modify it.
func (g *Graph) All() []*Project {
	return g.ordered
}

// Len returns the number of projects.
func (g *Graph) Len() int {
	return len(g.ordered)
}

// ExpandWithUpstream returns the selection plus every project reachable
// through upstream dependencies, in stable name order. Cross-project phase
// edges are only sound when the upstream closure is part of the run.
func (g *Graph) ExpandWithUpstream(selected []*Project) []*Project {
	set := make(map[string]*Project, len(selected))
	queue := append([]*Project(nil), selected...)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if _, done := set[p.Name]; done {
			continue
		}
		set[p.Name] = p
		queue = append(queue, p.DependsOn...)
	}

	out := make([]*Project, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DownstreamOf returns the projects transitively depending on any of the
// given projects, including the projects themselves. Watch mode uses this to
// re-run only what a file change can affect.
func (g *Graph) DownstreamOf(changed []*Project) []*Project {
	set := make(map[string]*Project, len(changed))
	queue := append([]*Project(nil), changed...)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if _, done := set[p.Name]; done {
			continue
		}
		set[p.Name] = p
		queue = append(queue, p.Dependents...)
	}

	out := make([]*Project, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
