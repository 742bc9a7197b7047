package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check them with errors.Is; the API layer maps them to HTTP status codes.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrAccountNotFound    = errors.New("account not found")

	// ErrInvalidCommand wraps every command validation failure.
	ErrInvalidCommand = errors.New("invalid command")

	// The following are domain errors re-exported so that callers of the
	// service need not import domain to check them.

	ErrNoActiveMembership   = domain.ErrNoActiveMembership
	ErrAssignmentNotPending = domain.ErrAssignmentNotPending
	ErrAssignmentExpired    = domain.ErrAssignmentExpired

	ErrCompletedBeforeAssigned = domain.ErrCompletedBeforeAssigned
)

// ServiceError wraps unexpected errors from a service operation with context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "complete_assignment")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError maps store and domain sentinels to service sentinels and
// wraps anything else in a ServiceError. A nil err returns nil.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if sentinel := mapSentinel(err); sentinel != nil {
		return sentinel
	}
	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

func mapSentinel(err error) error {
	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, store.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, ErrUserExists), errors.Is(err, store.ErrUserExists):
		return ErrUserExists
	case errors.Is(err, ErrMembershipNotFound), errors.Is(err, store.ErrMembershipNotFound):
		return ErrMembershipNotFound
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, store.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, ErrAssignmentNotFound), errors.Is(err, store.ErrAssignmentNotFound):
		return ErrAssignmentNotFound
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, store.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, ErrNoActiveMembership),
		errors.Is(err, ErrAssignmentNotPending),
		errors.Is(err, ErrAssignmentExpired),
		errors.Is(err, ErrCompletedBeforeAssigned),
		errors.Is(err, ErrInvalidCommand):
		return err
	}
	return nil
}

// ErrorKind classifies a per-user distribution failure.
type ErrorKind string

// Distribution error kinds.
const (
	KindNoActiveMembership ErrorKind = "no_active_membership"
	KindTaskUnavailable    ErrorKind = "task_unavailable"
	KindPersistenceFailure ErrorKind = "persistence_failure"
	KindInvariantViolation ErrorKind = "invariant_violation"
)

// ClassifyDistributionError returns the kind of a distribution failure.
func ClassifyDistributionError(err error) ErrorKind {
	switch {
	case errors.Is(err, domain.ErrNoActiveMembership):
		return KindNoActiveMembership
	case errors.Is(err, store.ErrTaskUnavailable):
		return KindTaskUnavailable
	case errors.Is(err, store.ErrAssignmentExists):
		return KindInvariantViolation
	default:
		return KindPersistenceFailure
	}
}

// DistributionError is a per-user failure collected into a distribution
// result. It never aborts the batch it was collected in.
type DistributionError struct {
	Operation string
	UserID    uuid.UUID
	Kind      ErrorKind
	Message   string
	Err       error
}

// NewDistributionError classifies err and wraps it for userID.
func NewDistributionError(operation string, userID uuid.UUID, message string, err error) *DistributionError {
	return &DistributionError{
		Operation: operation,
		UserID:    userID,
		Kind:      ClassifyDistributionError(err),
		Message:   message,
		Err:       err,
	}
}

// Error implements the error interface for DistributionError.
func (e *DistributionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed for user %s (%s): %s: %v", e.Operation, e.UserID, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed for user %s (%s): %s", e.Operation, e.UserID, e.Kind, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *DistributionError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the error for result summaries. The wrapped cause is
// logged where it occurs and never serialized.
func (e *DistributionError) MarshalJSON() ([]byte, error) {
	out := struct {
		UserID  uuid.UUID `json:"user_id"`
		Kind    ErrorKind `json:"kind"`
		Message string    `json:"message"`
	}{
		UserID:  e.UserID,
		Kind:    e.Kind,
		Message: e.Message,
	}
	return json.Marshal(out)
}
