package proctoring

import (
	"errors"
	"fmt"
)

// Error kinds returned by the service. Callers match them with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrSessionClosed     = errors.New("session closed")
	ErrSessionPaused     = errors.New("session paused")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTransientStorage  = errors.New("transient storage error")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Kind returns a short machine-readable name for the error's kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrSessionPaused):
		return "session_paused"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTransientStorage):
		return "storage_unavailable"
	default:
		return "internal_error"
	}
}
