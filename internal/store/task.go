package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
)

// TaskStore persists the task catalog and its lifetime counters.
type TaskStore interface {
	// Create saves a new task.
	Create(ctx context.Context, t *domain.Task) error

	// Update replaces a task's editable fields. The distribution and
	// completion counters are never written by Update.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, t *domain.Task) error

	// GetByID retrieves a task.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListCandidates returns up to limit distributable tasks that the user
	// has never been assigned, in distribution order: priority rank, then
	// oldest first, then ID.
	ListCandidates(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Task, error)

	// ClaimDistribution atomically increments task_distribution_count if the
	// task is still distributable and returns the updated task.
	// Returns ErrTaskUnavailable if the task is exhausted or inactive.
	ClaimDistribution(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// IncrementCompletion adds one to task_completion_count.
	// Returns ErrTaskNotFound if the task does not exist.
	IncrementCompletion(ctx context.Context, id uuid.UUID) error

	// WithTx returns a TaskStore that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
