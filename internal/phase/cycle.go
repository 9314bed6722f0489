package phase

import (
	"fmt"
	"sort"
	"strings"
)

// Three-color DFS marks for cycle detection.
const (
	white = iota // unvisited
	gray         // on the current traversal path
	black        // fully explored, known cycle-free
)

// detectSelfCycles runs a depth-first search over the self-dependency
// relation of every phase. Upstream dependencies are excluded: they resolve
// against a different project, so the same phase instance never recurses
// into itself through them.
func (r *Registry) detectSelfCycles() error {
	color := make(map[string]int, len(r.ordered))

	var path []*Phase
	var visit func(p *Phase) error
	visit = func(p *Phase) error {
		color[p.Name] = gray
		path = append(path, p)

		for _, dep := range sortedDeps(p.SelfDeps) {
			switch color[dep.Name] {
			case gray:
				return cycleError(path, dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		color[p.Name] = black
		return nil
	}

	for _, p := range r.ordered {
		if color[p.Name] == white {
			if err := visit(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleError reports the full cycle in traversal order, starting and ending
// at the phase that closed it.
func cycleError(path []*Phase, closing *Phase) error {
	start := 0
	for i, p := range path {
		if p == closing {
			start = i
			break
		}
	}

	names := make([]string, 0, len(path)-start+1)
	for _, p := range path[start:] {
		names = append(names, p.Name)
	}
	names = append(names, closing.Name)

	return fmt.Errorf("%w detected: %s", ErrCycle, strings.Join(names, " -> "))
}

// sortedDeps returns the dependency set in name order so traversal, and
// therefore error reporting, is deterministic.
func sortedDeps(deps map[string]*Phase) []*Phase {
	out := make([]*Phase, 0, len(deps))
	for _, dep := range deps {
		out = append(out, dep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
