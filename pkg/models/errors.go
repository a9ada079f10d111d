package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every layer.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ValidationError describes a rejected input field. It unwraps to ErrValidation
// for write payloads and to ErrInvalidArgument for query parameters.
type ValidationError struct {
	Field   string
	Message string

	kind error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.kind == nil {
		return ErrValidation
	}
	return e.kind
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, kind: ErrValidation}
}

// NewInvalidArgument creates a ValidationError that unwraps to ErrInvalidArgument.
func NewInvalidArgument(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, kind: ErrInvalidArgument}
}
