package phase

import "errors"

// Sentinel errors for phase registry validation. Construction wraps these
// with the offending names so callers can both match and report.
var (
	ErrInvalidName  = errors.New("invalid phase name")
	ErrDuplicate    = errors.New("duplicate phase name")
	ErrUnknownPhase = errors.New("unknown phase reference")
	ErrCycle        = errors.New("phase self-dependency cycle")
)
