package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
)

// AssignmentStore persists the assignment ledger.
type AssignmentStore interface {
	// LockUser takes a transaction-scoped lock serializing assignment writes
	// for one user. It must be called on a store bound to a transaction.
	LockUser(ctx context.Context, userID uuid.UUID) error

	// CountPendingInWindow counts the user's pending assignments whose
	// assigned_at falls inside the window.
	CountPendingInWindow(ctx context.Context, userID uuid.UUID, window domain.DayWindow) (int, error)

	// Create saves a new assignment.
	// Returns ErrAssignmentExists if the (user, task) pair already has one.
	Create(ctx context.Context, a *domain.Assignment) error

	// GetByID retrieves an assignment.
	// Returns ErrAssignmentNotFound if the assignment does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Assignment, error)

	// MarkCompleted transitions a pending, unexpired assignment to completed
	// and returns it. Returns ErrUpdateFailed when no pending assignment whose
	// [assigned_at, expires_at) window contains completedAt matched.
	MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) (*domain.Assignment, error)

	// ListByUser returns the user's assignments, newest first. A nil status
	// returns every status.
	ListByUser(ctx context.Context, userID uuid.UUID, status *domain.AssignmentStatus) ([]*domain.Assignment, error)

	// ExpireStale marks every pending assignment with expires_at before now
	// as expired and returns how many changed.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)

	// WithTx returns an AssignmentStore that uses the provided transaction.
	WithTx(tx *sql.Tx) AssignmentStore
}
