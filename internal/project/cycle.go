package project

import (
	"fmt"
	"strings"
)

// validateAcyclic runs Kahn's algorithm over the dependency edges. When the
// sort cannot consume every project, a DFS over the leftover nodes
// reconstructs one concrete cycle for the error message.
func (g *Graph) validateAcyclic() error {
	inDegree := make(map[string]int, len(g.ordered))
	for _, p := range g.ordered {
		inDegree[p.Name] = len(p.DependsOn)
	}

	var queue []*Project
	for _, p := range g.ordered {
		if inDegree[p.Name] == 0 {
			queue = append(queue, p)
		}
	}

	processed := 0
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		processed++
		for _, dependent := range p.Dependents {
			inDegree[dependent.Name]--
			if inDegree[dependent.Name] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if processed == len(g.ordered) {
		return nil
	}
	return fmt.Errorf("%w detected: %s", ErrCycle, strings.Join(g.findCyclePath(inDegree), " -> "))
}

// findCyclePath walks the projects still carrying unmet dependencies and
// returns one cycle in forward order, first member repeated at the end.
func (g *Graph) findCyclePath(inDegree map[string]int) []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.ordered))
	parent := make(map[string]*Project)
	var cycle []string

	var dfs func(p *Project) bool
	dfs = func(p *Project) bool {
		color[p.Name] = gray
		for _, dep := range p.DependsOn {
			switch color[dep.Name] {
			case gray:
				cycle = []string{dep.Name}
				for cur := p; cur != dep; cur = parent[cur.Name] {
					cycle = append(cycle, cur.Name)
				}
				cycle = append(cycle, dep.Name)
				// Reverse into forward (dependency-first) order.
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return true
			case white:
				parent[dep.Name] = p
				if dfs(dep) {
					return true
				}
			}
		}
		color[p.Name] = black
		return false
	}

	for _, p := range g.ordered {
		if inDegree[p.Name] > 0 && color[p.Name] == white {
			if dfs(p) {
				return cycle
			}
		}
	}
	return []string{"(cycle detected)"}
}
