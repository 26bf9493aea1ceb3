package watch

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigExists is returned by Setup when the unique id is taken.
	ErrConfigExists = errors.New("configuration already exists")

	// ErrNotFound is returned when no configuration matches the given id.
	ErrNotFound = errors.New("configuration not found")

	// ErrUnknownCallback is returned when a callback name resolves to nothing.
	ErrUnknownCallback = errors.New("unknown callback")
)

// ValidationError reports a rejected setup parameter. No state is
// written when Setup returns one.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
