package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/events"
)

// JobFactory creates a job for a user.
type JobFactory interface {
	CreateJob(userID uuid.UUID) (Job, error)
}

// Submitter accepts jobs for background execution.
type Submitter interface {
	Submit(ctx context.Context, job Job) error
}

// FactoryEventHandler turns user.registered events into jobs and submits
// them to a runner.
type FactoryEventHandler struct {
	factory   JobFactory
	submitter Submitter
	logger    *slog.Logger
}

var _ events.EventHandler = (*FactoryEventHandler)(nil)

// NewFactoryEventHandler creates a handler that submits the jobs factory
// creates to submitter.
func NewFactoryEventHandler(factory JobFactory, submitter Submitter, logger *slog.Logger) *FactoryEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FactoryEventHandler{
		factory:   factory,
		submitter: submitter,
		logger:    logger.With(slog.String("component", "job_factory_event_handler")),
	}
}

// HandleEvent implements events.EventHandler. Events of other types are
// ignored.
func (h *FactoryEventHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	log := h.logger.With(slog.String("event_id", event.ID.String()))

	if event.Type != events.TypeUserRegistered {
		log.Debug("ignoring event with unsupported type", slog.String("event_type", event.Type))
		return nil
	}

	var payload events.UserRegisteredPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		log.Error("failed to unmarshal payload", slog.String("error", err.Error()))
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	job, err := h.factory.CreateJob(payload.UserID)
	if err != nil {
		log.Error("failed to create job",
			slog.String("user_id", payload.UserID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create job: %w", err)
	}

	log = log.With(
		slog.String("job_id", job.ID().String()),
		slog.String("user_id", payload.UserID.String()))
	if err := h.submitter.Submit(ctx, job); err != nil {
		log.Error("failed to submit job", slog.String("error", err.Error()))
		return fmt.Errorf("failed to submit job: %w", err)
	}

	log.Info("job created and submitted")
	return nil
}
