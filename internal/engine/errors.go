package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when no user is supplied.
	ErrUnauthorized = errors.New("unauthorized: user required")
	// ErrNotFound is returned when a task does not exist or belongs to
	// another user. The two cases are not distinguished.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is the parent of every FieldError.
	ErrInvalidArgument = errors.New("invalid argument")
)

// FieldError describes an invalid input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidArgument.
func (e *FieldError) Unwrap() error {
	return ErrInvalidArgument
}

func invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
