package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrNoActiveMembership is returned when a user has no active, unexpired
	// membership binding. Callers must not create assignments for such users.
	ErrNoActiveMembership = errors.New("no active membership")

	// ErrInvalidAssignmentStatus is returned when an assignment status is not valid.
	ErrInvalidAssignmentStatus = errors.New("invalid assignment status")

	// ErrInvalidTaskPriority is returned when a task priority is not one of the known ranks.
	ErrInvalidTaskPriority = errors.New("invalid task priority")

	// ErrInvalidTaskStatus is returned when a task status is not valid.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrAssignmentNotPending is returned when a transition requires a pending assignment.
	ErrAssignmentNotPending = errors.New("assignment is not pending")

	// ErrAssignmentExpired is returned when an assignment is completed after its expiry.
	ErrAssignmentExpired = errors.New("assignment has expired")

	// ErrCompletedBeforeAssigned is returned when a completion time precedes the assignment.
	ErrCompletedBeforeAssigned = errors.New("completion time precedes assignment")
)

// ValidationError describes a single field that failed validation.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError for the given field.
// If err is nil, ErrValidation is wrapped.
func NewValidationError(field, message string, err error) *ValidationError {
	if err == nil {
		err = ErrValidation
	}
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
