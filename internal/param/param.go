// Package param defines custom command-line parameters that repositories can
// attach to commands and phases. Association and validation are performed by
// the binder package.
package param

// Kind discriminates the parameter flavors.
type Kind string

const (
	// KindFlag is a boolean switch.
	KindFlag Kind = "flag"
	// KindChoice accepts one value out of a fixed set of alternatives.
	KindChoice Kind = "choice"
	// KindString accepts a free-form string value.
	KindString Kind = "string"
)

// Parameter is a single custom parameter. Instances are shared by identity:
// the same *Parameter appears in the sets of every command and phase it is
// associated with.
type Parameter struct {
	Kind        Kind
	LongName    string
	Description string

	// Alternatives and Default apply to KindChoice only.
	Alternatives []string
	Default      string

	// AssociatedCommands and AssociatedPhases hold the resolved association
	// targets, by name. Populated by the binder.
	AssociatedCommands []string
	AssociatedPhases   []string
}

// AllowsValue reports whether v is a legal value for a choice parameter.
func (p *Parameter) AllowsValue(v string) bool {
	for _, alt := range p.Alternatives {
		if alt == v {
			return true
		}
	}
	return false
}

// Set is an ordered collection of parameters, shared by identity between a
// command and the phases that dispatch its parameters.
type Set struct {
	params []*Parameter
}

// NewSet returns an empty parameter set.
func NewSet() *Set {
	return &Set{}
}

// Add appends p unless it is already present.
func (s *Set) Add(p *Parameter) {
	for _, existing := range s.params {
		if existing == p {
			return
		}
	}
	s.params = append(s.params, p)
}

// All returns the parameters in association order. The returned slice is the
// set's backing storage; callers must not modify it.
func (s *Set) All() []*Parameter {
	return s.params
}

// Len returns the number of parameters in the set.
func (s *Set) Len() int {
	return len(s.params)
}
