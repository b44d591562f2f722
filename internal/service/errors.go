package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation rejects a request before any state is touched.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden means the caller is not allowed to act on the call or session.
	ErrForbidden       = errors.New("not permitted to act on this resource")
	ErrCallNotFound    = errors.New("call not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInactive = errors.New("session is no longer active")
	// ErrStateConflict means the call's state no longer allows the transition.
	ErrStateConflict  = errors.New("call state conflict")
	ErrInternalServer = errors.New("internal server error")
)

// validationError wraps ErrValidation with a detail message.
func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
