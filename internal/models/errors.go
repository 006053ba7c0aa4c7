package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid lifecycle transition")
	ErrBookingCompleted   = errors.New("booking is already completed")
	ErrBookingCancelled   = errors.New("booking is cancelled")
	ErrRequirementsNotMet = errors.New("pre-event requirements not met")
	ErrPastDate           = errors.New("cannot book in the past")
	ErrConcurrentUpdate   = errors.New("concurrent modification")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
