package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the sentinel wrapped by every *ValidationError
	ErrValidation = errors.New("validation failed")
	// ErrPersistence is returned when the prediction log write fails and strict audit is enabled
	ErrPersistence = errors.New("failed to persist prediction record")
)

// ValidationError reports a rejected request field. Nothing is computed or written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
