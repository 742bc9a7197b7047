package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/store"
)

// SweepResult reports what a reset pass changed.
type SweepResult struct {
	ExpiredAssignments int64     `json:"expired_assignments"`
	ResetMemberships   int64     `json:"reset_memberships"`
	Date               string    `json:"date"`
	RanAt              time.Time `json:"ran_at"`
}

// ResetSweeper reconciles state at the day boundary.
type ResetSweeper interface {
	// ResetDailyState expires pending assignments whose expiry has passed and
	// resets the daily completion counter of every binding not yet reset
	// today. Task lifetime counters are never touched. Safe to re-run.
	ResetDailyState(ctx context.Context) (*SweepResult, error)
}

type resetSweeperImpl struct {
	tx          store.Transactor
	memberships store.MembershipStore
	assignments store.AssignmentStore
	location    *time.Location
	now         Clock
	logger      *slog.Logger
}

// NewResetSweeper creates a ResetSweeper.
func NewResetSweeper(
	tx store.Transactor,
	memberships store.MembershipStore,
	assignments store.AssignmentStore,
	loc *time.Location,
	now Clock,
	logger *slog.Logger,
) (ResetSweeper, error) {
	switch {
	case tx == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "transactor cannot be nil"}
	case memberships == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "memberships cannot be nil"}
	case assignments == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "assignments cannot be nil"}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &resetSweeperImpl{
		tx:          tx,
		memberships: memberships,
		assignments: assignments,
		location:    loc,
		now:         clockOrDefault(now),
		logger:      logger.With(slog.String("component", "reset_sweeper")),
	}, nil
}

// ResetDailyState implements ResetSweeper.ResetDailyState
func (s *resetSweeperImpl) ResetDailyState(ctx context.Context) (*SweepResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := s.now()
	today := domain.DayWindowAt(now, s.location).Date()
	result := &SweepResult{
		Date:  today.Format(time.DateOnly),
		RanAt: now,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		expired, err := s.assignments.WithTx(tx).ExpireStale(ctx, now)
		if err != nil {
			return err
		}
		reset, err := s.memberships.WithTx(tx).ResetDailyCounters(ctx, today)
		if err != nil {
			return err
		}
		result.ExpiredAssignments = expired
		result.ResetMemberships = reset
		return nil
	})
	if err != nil {
		log.Error("daily reset failed", slog.String("error", err.Error()))
		return nil, NewServiceError("reset_daily_state", "failed to reset daily state", err)
	}

	log.Info("daily state reset",
		slog.String("date", result.Date),
		slog.Int64("expired_assignments", result.ExpiredAssignments),
		slog.Int64("reset_memberships", result.ResetMemberships))
	return result, nil
}
