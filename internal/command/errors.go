package command

import "errors"

// Sentinel errors for command registry validation.
var (
	ErrInvalidName    = errors.New("invalid command name")
	ErrDuplicate      = errors.New("duplicate command name")
	ErrUnknownKind    = errors.New("unknown command kind")
	ErrUnknownPhase   = errors.New("unknown phase reference")
	ErrReservedKind   = errors.New("reserved command declared with forbidden kind")
	ErrReservedUnsafe = errors.New("reserved command declared safe for simultaneous processes")
	ErrMissingPhases  = errors.New("phased command declares no phases")
	ErrMissingShell   = errors.New("global command declares no shell_command")
)
