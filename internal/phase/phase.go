// Package phase implements the phase registry: parsing phase declarations
// into cross-referenced Phase values, validating names and rejecting cycles
// in the intra-project dependency relation.
package phase

import (
	"strings"

	"github.com/vk/buildgrid/internal/param"
)

// Prefix is the mandatory name prefix of every phase, synthetic or declared.
const Prefix = "phase:"

// Phase is a named unit of per-project work. A phase can depend on other
// phases of the same project (self) and on phases of every upstream project
// (upstream).
type Phase struct {
	// Name is the full phase name, e.g. "phase:build".
	Name string
	// IsSynthetic marks phases generated from bulk commands rather than
	// declared in configuration.
	IsSynthetic bool
	// LogFilenameIdentifier is the per-phase log file stem.
	LogFilenameIdentifier string
	// IgnoreMissingScript turns a project without a script for this phase
	// into a no-op instead of a failure.
	IgnoreMissingScript bool
	// AllowWarnings selects SuccessWithWarning instead of Failure when a
	// run emits recognized warning output.
	AllowWarnings bool

	// SelfDeps are the phases of the same project that must complete first.
	SelfDeps map[string]*Phase
	// UpstreamDeps are the phases that must complete in every upstream
	// project first.
	UpstreamDeps map[string]*Phase

	// AssociatedParameters are the custom parameters dispatched to this
	// phase at execution time. Populated by the binder.
	AssociatedParameters *param.Set
}

// ShortName returns the phase name without the "phase:" prefix, for use in
// log attributes and filenames.
func (p *Phase) ShortName() string {
	return strings.TrimPrefix(p.Name, Prefix)
}
