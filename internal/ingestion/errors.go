package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a malformed or incomplete event. Such events are dropped.
	ErrValidation = errors.New("invalid event")

	// ErrDuplicateTransaction marks an event whose signature is already committed.
	// It is a no-op, not a failure.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// ValidationError names the offending field of a rejected event.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrValidation, e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
