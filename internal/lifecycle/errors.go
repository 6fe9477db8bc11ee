package lifecycle

import "errors"

// Error kinds surfaced by the state machine. Callers branch with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrConflict           = errors.New("conflicting update")
	ErrExternalDependency = errors.New("dependency unavailable")
)
