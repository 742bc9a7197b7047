package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/service"
)

// Scheduler runs the daily reset sweep followed by the daily distribution at
// a fixed local time each day.
type Scheduler struct {
	sweeper service.ResetSweeper
	engine  service.DistributionEngine
	loc     *time.Location
	hour    int
	minute  int
	now     service.Clock
	logger  *slog.Logger
}

// ParseRunAt parses a "HH:MM" time of day.
func ParseRunAt(runAt string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", runAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid run_at %q: %w", runAt, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NewScheduler creates a Scheduler firing at runAt ("HH:MM") in loc.
func NewScheduler(
	sweeper service.ResetSweeper,
	engine service.DistributionEngine,
	loc *time.Location,
	runAt string,
	now service.Clock,
	log *slog.Logger,
) (*Scheduler, error) {
	if sweeper == nil {
		return nil, errors.New("sweeper cannot be nil")
	}
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	hour, minute, err := ParseRunAt(runAt)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		sweeper: sweeper,
		engine:  engine,
		loc:     loc,
		hour:    hour,
		minute:  minute,
		now:     now,
		logger:  log.With(slog.String("component", "scheduler")),
	}, nil
}

// Next returns the first run time strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	local := t.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

// Run fires RunOnce at every scheduled time until ctx is cancelled. A failed
// run is logged and the scheduler waits for the next day.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.Next(s.now())
		s.logger.Info("next daily run scheduled", slog.Time("at", next))

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("daily run failed", slog.String("error", err.Error()))
		}
	}
}

// RunOnce resets the previous day and then distributes today's tasks. The
// distribution is skipped when the sweep fails.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	log := s.logger.With(slog.String("trigger_id", uuid.NewString()))
	ctx = logger.WithLogger(ctx, log)

	sweep, err := s.sweeper.ResetDailyState(ctx)
	if err != nil {
		return fmt.Errorf("daily sweep: %w", err)
	}
	log.Info("daily sweep finished",
		slog.Int64("expired_assignments", sweep.ExpiredAssignments),
		slog.Int64("reset_memberships", sweep.ResetMemberships))

	summary, err := s.engine.AssignDailyTasks(ctx)
	if err != nil {
		return fmt.Errorf("daily distribution: %w", err)
	}
	log.Info("daily distribution finished",
		slog.String("run_id", summary.RunID.String()),
		slog.Int("users_processed", summary.UsersProcessed),
		slog.Int("tasks_assigned", summary.TasksAssigned),
		slog.Int("error_count", len(summary.Errors)))
	return nil
}
