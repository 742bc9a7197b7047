package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/events"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/store"
	"github.com/shopspring/decimal"
)

// SettlementService converts completions and signups into account credit.
type SettlementService interface {
	// CompleteAssignment marks a pending, unexpired assignment completed at
	// completedAt and credits its final reward to the user. The transition is
	// single-use, so the reward is credited at most once. A zero completedAt
	// means now.
	CompleteAssignment(ctx context.Context, assignmentID uuid.UUID, completedAt time.Time) (*domain.Assignment, error)

	// SettleSignupReferral credits the referral bonuses owed for a user's
	// signup: the direct referrer, and the referrer's own referrer. It returns
	// nil without error when the user was not referred or was already settled.
	SettleSignupReferral(ctx context.Context, userID uuid.UUID) (*domain.ReferralSettlement, error)

	// GetAccount returns the user's account totals. A user who was never
	// credited gets an empty account.
	GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)

	// ListAssignments returns the user's assignments, newest first, optionally
	// filtered by status.
	ListAssignments(ctx context.Context, userID uuid.UUID, status *domain.AssignmentStatus) ([]*domain.Assignment, error)
}

// ReferralBonuses are the fixed signup bonuses paid up the referral chain.
type ReferralBonuses struct {
	Direct   decimal.Decimal
	Indirect decimal.Decimal
}

type settlementServiceImpl struct {
	tx          store.Transactor
	users       store.UserStore
	memberships store.MembershipStore
	tasks       store.TaskStore
	assignments store.AssignmentStore
	accounts    store.AccountStore
	referrals   referralSettler
	events      eventSink
	now         Clock
	logger      *slog.Logger
}

// NewSettlementService creates a SettlementService.
// A nil emitter discards settlement events.
func NewSettlementService(
	tx store.Transactor,
	users store.UserStore,
	memberships store.MembershipStore,
	tasks store.TaskStore,
	assignments store.AssignmentStore,
	accounts store.AccountStore,
	bonuses ReferralBonuses,
	emitter events.EventEmitter,
	now Clock,
	logger *slog.Logger,
) (SettlementService, error) {
	switch {
	case tx == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "transactor cannot be nil"}
	case users == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "users cannot be nil"}
	case memberships == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "memberships cannot be nil"}
	case tasks == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "tasks cannot be nil"}
	case assignments == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "assignments cannot be nil"}
	case accounts == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "accounts cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "settlement_service"))
	now = clockOrDefault(now)
	return &settlementServiceImpl{
		tx:          tx,
		users:       users,
		memberships: memberships,
		tasks:       tasks,
		assignments: assignments,
		accounts:    accounts,
		referrals:   referralSettler{bonuses: bonuses, now: now, logger: logger},
		events:      newEventSink(emitter, logger),
		now:         now,
		logger:      logger,
	}, nil
}

// CompleteAssignment implements SettlementService.CompleteAssignment
func (s *settlementServiceImpl) CompleteAssignment(
	ctx context.Context,
	assignmentID uuid.UUID,
	completedAt time.Time,
) (*domain.Assignment, error) {
	const op = "complete_assignment"
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("assignment_id", assignmentID.String()))

	if completedAt.IsZero() {
		completedAt = s.now()
	}

	var completed *domain.Assignment
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		assignments := s.assignments.WithTx(tx)

		a, err := assignments.MarkCompleted(ctx, assignmentID, completedAt)
		if errors.Is(err, store.ErrUpdateFailed) {
			return s.explainRejectedCompletion(ctx, assignments, assignmentID, completedAt)
		}
		if err != nil {
			return err
		}
		// A back-dated completion of an assignment the sweeper has not yet
		// expired is refused by the server clock.
		if !s.now().Before(a.ExpiresAt) {
			return domain.ErrAssignmentExpired
		}

		if err := s.tasks.WithTx(tx).IncrementCompletion(ctx, a.TaskID); err != nil {
			return err
		}
		if a.MembershipID != uuid.Nil {
			err := s.memberships.WithTx(tx).IncrementDailyCompleted(ctx, a.UserID, a.MembershipID)
			if errors.Is(err, store.ErrBindingNotFound) {
				log.Warn("no active binding for completed assignment's membership, daily counter not updated",
					slog.String("user_id", a.UserID.String()),
					slog.String("membership_id", a.MembershipID.String()))
			} else if err != nil {
				return err
			}
		}
		if err := s.accounts.WithTx(tx).Credit(ctx, domain.RewardCredit(a)); err != nil {
			return err
		}

		completed = a
		return nil
	})
	if err != nil {
		return nil, NewServiceError(op, "failed to complete assignment", err)
	}

	log.Info("assignment completed",
		slog.String("user_id", completed.UserID.String()),
		slog.String("task_id", completed.TaskID.String()),
		slog.String("final_reward", completed.FinalReward.String()))

	s.events.emit(ctx, events.TypeAssignmentCompleted, events.AssignmentCompletedPayload{
		AssignmentID: completed.ID,
		UserID:       completed.UserID,
		TaskID:       completed.TaskID,
		FinalReward:  completed.FinalReward,
		CompletedAt:  completedAt.UTC(),
	})
	return completed, nil
}

// explainRejectedCompletion turns a guarded update that matched nothing into
// the reason the completion was refused.
func (s *settlementServiceImpl) explainRejectedCompletion(
	ctx context.Context,
	assignments store.AssignmentStore,
	id uuid.UUID,
	completedAt time.Time,
) error {
	existing, err := assignments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := existing.Complete(completedAt); err != nil {
		return err
	}
	return domain.ErrAssignmentNotPending
}

// SettleSignupReferral implements SettlementService.SettleSignupReferral
func (s *settlementServiceImpl) SettleSignupReferral(
	ctx context.Context,
	userID uuid.UUID,
) (*domain.ReferralSettlement, error) {
	var settlement *domain.ReferralSettlement
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		user, err := s.users.WithTx(tx).GetByID(ctx, userID)
		if err != nil {
			return err
		}
		settlement, err = s.referrals.settle(ctx, s.users.WithTx(tx), s.accounts.WithTx(tx), user)
		return err
	})
	if err != nil {
		return nil, NewServiceError("settle_signup_referral", "failed to settle referral", err)
	}
	if settlement != nil {
		s.events.referralSettled(ctx, settlement)
	}
	return settlement, nil
}

// GetAccount implements SettlementService.GetAccount
func (s *settlementServiceImpl) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.Get(ctx, userID)
	if errors.Is(err, store.ErrAccountNotFound) {
		if _, err := s.users.GetByID(ctx, userID); err != nil {
			return nil, NewServiceError("get_account", "failed to get user", err)
		}
		return domain.NewAccount(userID), nil
	}
	if err != nil {
		return nil, NewServiceError("get_account", "failed to get account", err)
	}
	return account, nil
}

// ListAssignments implements SettlementService.ListAssignments
func (s *settlementServiceImpl) ListAssignments(
	ctx context.Context,
	userID uuid.UUID,
	status *domain.AssignmentStatus,
) ([]*domain.Assignment, error) {
	if status != nil && !status.IsValid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, domain.ErrInvalidAssignmentStatus)
	}
	assignments, err := s.assignments.ListByUser(ctx, userID, status)
	if err != nil {
		return nil, NewServiceError("list_assignments", "failed to list assignments", err)
	}
	return assignments, nil
}
