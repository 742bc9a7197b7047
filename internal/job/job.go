package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job
type Status string

// Possible job status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// TypeAssignUserTasks fills one user's remaining daily quota.
const TypeAssignUserTasks = "assign_user_tasks"

// Job is a unit of background work.
type Job interface {
	// ID returns the job's unique identifier
	ID() uuid.UUID

	// Type returns the job type identifier
	Type() string

	// Payload returns the job data as JSON
	Payload() []byte

	// Execute runs the job logic
	Execute(ctx context.Context) error
}

// Record is a job as persisted by a Store.
type Record struct {
	ID           uuid.UUID
	Type         string
	Payload      json.RawMessage
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store persists jobs and their status transitions.
type Store interface {
	// Save persists a new job in pending status
	Save(ctx context.Context, job Job) error

	// UpdateStatus updates the status of a job. Returns store.ErrJobNotFound
	// when no job has the ID.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errorMsg string) error

	// ListPending retrieves all pending jobs, oldest first
	ListPending(ctx context.Context) ([]Record, error)

	// ListProcessing retrieves processing jobs. A positive olderThan only
	// returns jobs that have been processing for longer than that.
	ListProcessing(ctx context.Context, olderThan time.Duration) ([]Record, error)

	// WithTx returns a Store bound to the transaction.
	WithTx(tx *sql.Tx) Store
}
