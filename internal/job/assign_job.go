package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/service"
)

// Common errors
var (
	ErrNilAssigner      = errors.New("assigner cannot be nil")
	ErrEmptyUserID      = errors.New("user ID cannot be empty")
	ErrAssignmentFailed = errors.New("task assignment failed")
)

// UserAssigner fills a user's remaining daily quota.
type UserAssigner interface {
	AssignTasksToUser(ctx context.Context, userID uuid.UUID) *service.AssignResult
}

type assignUserTasksPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

// AssignUserTasksJob runs on-demand distribution for one user.
type AssignUserTasksJob struct {
	id       uuid.UUID
	userID   uuid.UUID
	payload  []byte
	assigner UserAssigner
	logger   *slog.Logger
}

var _ Job = (*AssignUserTasksJob)(nil)

// NewAssignUserTasksJob creates the job with the given ID.
func NewAssignUserTasksJob(
	id, userID uuid.UUID,
	assigner UserAssigner,
	log *slog.Logger,
) (*AssignUserTasksJob, error) {
	if assigner == nil {
		return nil, ErrNilAssigner
	}
	if userID == uuid.Nil {
		return nil, ErrEmptyUserID
	}
	if log == nil {
		log = slog.Default()
	}
	payload, err := json.Marshal(assignUserTasksPayload{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &AssignUserTasksJob{
		id:       id,
		userID:   userID,
		payload:  payload,
		assigner: assigner,
		logger:   log,
	}, nil
}

// ID implements Job.
func (j *AssignUserTasksJob) ID() uuid.UUID { return j.id }

// Type implements Job.
func (j *AssignUserTasksJob) Type() string { return TypeAssignUserTasks }

// Payload implements Job.
func (j *AssignUserTasksJob) Payload() []byte { return j.payload }

// UserID returns the user whose quota the job fills.
func (j *AssignUserTasksJob) UserID() uuid.UUID { return j.userID }

// Execute fills the user's quota. A user without an active membership is not
// a failure; there is nothing to assign.
func (j *AssignUserTasksJob) Execute(ctx context.Context) error {
	log := j.logger.With(
		slog.String("job_id", j.id.String()),
		slog.String("user_id", j.userID.String()))
	ctx = logger.WithLogger(ctx, log)

	result := j.assigner.AssignTasksToUser(ctx, j.userID)
	if result.Success {
		log.Info("tasks assigned", slog.Int("assigned_count", result.AssignedCount))
		return nil
	}

	errs := make([]error, 0, len(result.Errors))
	for _, e := range result.Errors {
		if e.Kind == service.KindNoActiveMembership {
			log.Info("user has no active membership, nothing to assign")
			return nil
		}
		errs = append(errs, e)
	}
	if len(errs) == 0 {
		return ErrAssignmentFailed
	}
	return fmt.Errorf("%w: %w", ErrAssignmentFailed, errors.Join(errs...))
}

// AssignUserTasksFactory creates and rebuilds AssignUserTasksJobs.
type AssignUserTasksFactory struct {
	assigner UserAssigner
	logger   *slog.Logger
}

// NewAssignUserTasksFactory creates a factory backed by assigner.
func NewAssignUserTasksFactory(assigner UserAssigner, log *slog.Logger) *AssignUserTasksFactory {
	if log == nil {
		log = slog.Default()
	}
	return &AssignUserTasksFactory{
		assigner: assigner,
		logger:   log.With(slog.String("component", "assign_user_tasks_job")),
	}
}

// CreateJob creates a new job for the user.
func (f *AssignUserTasksFactory) CreateJob(userID uuid.UUID) (Job, error) {
	return NewAssignUserTasksJob(uuid.New(), userID, f.assigner, f.logger)
}

// Rehydrate rebuilds a persisted job. It is registered with a Registry
// under TypeAssignUserTasks.
func (f *AssignUserTasksFactory) Rehydrate(rec Record) (Job, error) {
	var payload assignUserTasksPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return NewAssignUserTasksJob(rec.ID, payload.UserID, f.assigner, f.logger)
}
