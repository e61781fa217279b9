package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared between the model runtime and its callers.
var (
	// ErrNotReady indicates the shared mel/embedding models are not loaded.
	ErrNotReady = errors.New("acoustic models not loaded")
	// ErrMissingModel indicates no head model exists for a requested keyword.
	ErrMissingModel = errors.New("no model for keyword")
)

// ShapeError reports a tensor whose dimensions do not match the pipeline
// contract.
type ShapeError struct {
	Stage string // mel, embedding or classifier
	Got   []int
	Want  []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s output shape %v, want %v", e.Stage, e.Got, e.Want)
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`   // JSON path to the field (e.g., "evaluation.threshold")
	Message string `json:"message"` // Human-readable error message
	Value   any    `json:"value"`   // The invalid value that was provided
}

// ValidationError collects multiple field validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError creates a new empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{
		Errors: make([]FieldError, 0),
	}
}

// Add adds a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors reports whether any field errors were collected.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s: %s", v.Errors[0].Field, v.Errors[0].Message)
}
