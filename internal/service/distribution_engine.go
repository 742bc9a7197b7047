package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/store"
	"golang.org/x/sync/errgroup"
)

// errQuotaReached stops a user's claim loop once today's pending count has
// caught up with the quota under the user lock.
var errQuotaReached = errors.New("daily quota reached")

// DistributionSummary is the outcome of a batch run.
type DistributionSummary struct {
	RunID          uuid.UUID            `json:"run_id"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	UsersProcessed int                  `json:"users_processed"`
	TasksAssigned  int                  `json:"tasks_assigned"`
	Errors         []*DistributionError `json:"errors"`
}

// AssignResult is the outcome of a single-user run.
type AssignResult struct {
	UserID        uuid.UUID            `json:"user_id"`
	Success       bool                 `json:"success"`
	AssignedCount int                  `json:"assigned_count"`
	Errors        []*DistributionError `json:"errors"`
}

// DistributionEngine hands out today's tasks to members.
type DistributionEngine interface {
	// AssignDailyTasks runs distribution for every user with an effective
	// membership. Per-user failures are collected in the summary; only a
	// failure to list eligible users is returned as an error.
	AssignDailyTasks(ctx context.Context) (*DistributionSummary, error)

	// AssignTasksToUser fills the user's remaining quota for today. It never
	// returns an error: failures are reported in the result.
	AssignTasksToUser(ctx context.Context, userID uuid.UUID) *AssignResult
}

// DistributionOptions tunes the engine.
type DistributionOptions struct {
	// Location defines the local day. Nil means UTC.
	Location *time.Location
	// Concurrency bounds how many users a batch run serves at once.
	Concurrency int
	// MaxClaimRounds bounds how often candidates are refetched after claims
	// were lost to concurrent writers.
	MaxClaimRounds int
	// Now is the engine clock. Nil means the system clock.
	Now Clock
}

type distributionEngineImpl struct {
	tx          store.Transactor
	memberships store.MembershipStore
	tasks       store.TaskStore
	assignments store.AssignmentStore
	resolver    EligibilityResolver
	opts        DistributionOptions
	logger      *slog.Logger
}

// NewDistributionEngine creates a DistributionEngine.
// It returns an error if any of the required dependencies are nil.
func NewDistributionEngine(
	tx store.Transactor,
	memberships store.MembershipStore,
	tasks store.TaskStore,
	assignments store.AssignmentStore,
	resolver EligibilityResolver,
	opts DistributionOptions,
	logger *slog.Logger,
) (DistributionEngine, error) {
	switch {
	case tx == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "transactor cannot be nil"}
	case memberships == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "memberships cannot be nil"}
	case tasks == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "tasks cannot be nil"}
	case assignments == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "assignments cannot be nil"}
	case resolver == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "resolver cannot be nil"}
	}

	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxClaimRounds <= 0 {
		opts.MaxClaimRounds = 1
	}
	opts.Now = clockOrDefault(opts.Now)
	if logger == nil {
		logger = slog.Default()
	}

	return &distributionEngineImpl{
		tx:          tx,
		memberships: memberships,
		tasks:       tasks,
		assignments: assignments,
		resolver:    resolver,
		opts:        opts,
		logger:      logger.With(slog.String("component", "distribution_engine")),
	}, nil
}

// AssignDailyTasks implements DistributionEngine.AssignDailyTasks
func (e *distributionEngineImpl) AssignDailyTasks(ctx context.Context) (*DistributionSummary, error) {
	runID := uuid.New()
	log := logger.FromContextOrDefault(ctx, e.logger).With(slog.String("run_id", runID.String()))
	ctx = logger.WithLogger(ctx, log)

	startedAt := e.opts.Now()
	window := domain.DayWindowAt(startedAt, e.opts.Location)
	summary := &DistributionSummary{
		RunID:     runID,
		StartedAt: startedAt,
		Errors:    []*DistributionError{},
	}

	bindings, err := e.memberships.ListEffectiveBindings(ctx, startedAt)
	if err != nil {
		log.Error("failed to list eligible users, aborting run", slog.String("error", err.Error()))
		return nil, NewServiceError("assign_daily_tasks", "failed to list eligible users", err)
	}
	members := effectiveMembers(bindings, startedAt)

	log.Info("starting daily distribution",
		slog.Int("eligible_users", len(members)),
		slog.Time("window_start", window.Start))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.opts.Concurrency)

	for _, binding := range members {
		binding := binding
		g.Go(func() error {
			assigned, errs := e.serveUser(ctx, "assign_daily_tasks", binding, startedAt, window)

			mu.Lock()
			defer mu.Unlock()
			summary.UsersProcessed++
			summary.TasksAssigned += assigned
			summary.Errors = append(summary.Errors, errs...)
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = e.opts.Now()
	log.Info("daily distribution finished",
		slog.Int("users_processed", summary.UsersProcessed),
		slog.Int("tasks_assigned", summary.TasksAssigned),
		slog.Int("errors", len(summary.Errors)),
		slog.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)))
	return summary, nil
}

// AssignTasksToUser implements DistributionEngine.AssignTasksToUser
func (e *distributionEngineImpl) AssignTasksToUser(ctx context.Context, userID uuid.UUID) *AssignResult {
	const op = "assign_tasks_to_user"
	log := logger.FromContextOrDefault(ctx, e.logger)
	result := &AssignResult{UserID: userID, Errors: []*DistributionError{}}

	eligibility, err := e.resolver.Resolve(ctx, userID)
	if err != nil {
		derr := NewDistributionError(op, userID, "failed to resolve eligibility", err)
		if derr.Kind == KindNoActiveMembership {
			derr.Message = "user has no active membership"
			log.Info("skipping user without active membership", slog.String("user_id", userID.String()))
		} else {
			log.Error("failed to resolve eligibility",
				slog.String("error", err.Error()),
				slog.String("user_id", userID.String()))
		}
		result.Errors = append(result.Errors, derr)
		return result
	}

	if eligibility.QuotaMet() {
		log.Debug("daily quota already met",
			slog.String("user_id", userID.String()),
			slog.Int("assigned_today", eligibility.AssignedToday))
		result.Success = true
		return result
	}

	assigned, errs := e.serveUser(ctx, op, eligibility.Binding, e.opts.Now(), eligibility.Window)
	result.AssignedCount = assigned
	result.Errors = append(result.Errors, errs...)
	result.Success = len(result.Errors) == 0
	return result
}

// serveUser fills one user's quota. Candidates are refetched when claims were
// lost to concurrent writers, up to MaxClaimRounds times.
func (e *distributionEngineImpl) serveUser(
	ctx context.Context,
	op string,
	binding *domain.UserMembership,
	now time.Time,
	window domain.DayWindow,
) (assigned int, errs []*DistributionError) {
	userID := binding.UserID
	membership := binding.Membership
	log := logger.FromContextOrDefault(ctx, e.logger).With(
		slog.String("user_id", userID.String()),
		slog.String("membership_id", membership.ID.String()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while assigning tasks", slog.Any("panic", r))
			errs = append(errs, &DistributionError{
				Operation: op,
				UserID:    userID,
				Kind:      KindPersistenceFailure,
				Message:   fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	for round := 0; round < e.opts.MaxClaimRounds; round++ {
		pending, err := e.assignments.CountPendingInWindow(ctx, userID, window)
		if err != nil {
			log.Error("failed to count today's assignments", slog.String("error", err.Error()))
			return assigned, append(errs, NewDistributionError(op, userID, "failed to count today's assignments", err))
		}
		needed := membership.TasksPerDay - pending
		if needed <= 0 {
			break
		}

		candidates, err := e.tasks.ListCandidates(ctx, userID, needed)
		if err != nil {
			log.Error("failed to list candidate tasks", slog.String("error", err.Error()))
			return assigned, append(errs, NewDistributionError(op, userID, "failed to list candidate tasks", err))
		}
		if len(candidates) == 0 {
			break
		}

		lost := 0
		for _, candidate := range candidates {
			err := e.claim(ctx, userID, membership, candidate.ID, now, window)
			switch {
			case err == nil:
				assigned++
			case errors.Is(err, errQuotaReached):
				return assigned, errs
			case errors.Is(err, store.ErrTaskUnavailable):
				lost++
				log.Debug("task claimed by a concurrent writer, skipping",
					slog.String("task_id", candidate.ID.String()))
			case errors.Is(err, store.ErrAssignmentExists):
				log.Error("duplicate assignment attempted, storage uniqueness contract breached",
					slog.String("task_id", candidate.ID.String()),
					slog.String("error", err.Error()))
				return assigned, append(errs, NewDistributionError(op, userID,
					fmt.Sprintf("task %s already assigned to user", candidate.ID), err))
			default:
				log.Error("failed to assign task",
					slog.String("task_id", candidate.ID.String()),
					slog.String("error", err.Error()))
				return assigned, append(errs, NewDistributionError(op, userID,
					fmt.Sprintf("failed to assign task %s", candidate.ID), err))
			}
		}

		if lost == 0 {
			break
		}
	}

	if assigned > 0 {
		log.Info("tasks assigned", slog.Int("count", assigned))
	}
	return assigned, errs
}

// claim assigns one task to the user in its own transaction. The user lock
// makes the quota recount and the insert atomic against other runs for the
// same user; the guarded counter update makes the threshold check atomic
// against runs for other users.
func (e *distributionEngineImpl) claim(
	ctx context.Context,
	userID uuid.UUID,
	membership *domain.Membership,
	taskID uuid.UUID,
	now time.Time,
	window domain.DayWindow,
) error {
	return e.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		assignments := e.assignments.WithTx(tx)
		tasks := e.tasks.WithTx(tx)

		if err := assignments.LockUser(ctx, userID); err != nil {
			return err
		}
		pending, err := assignments.CountPendingInWindow(ctx, userID, window)
		if err != nil {
			return err
		}
		if pending >= membership.TasksPerDay {
			return errQuotaReached
		}

		task, err := tasks.ClaimDistribution(ctx, taskID)
		if err != nil {
			return err
		}
		assignment, err := domain.NewAssignment(userID, task, membership, now, window)
		if err != nil {
			return err
		}
		return assignments.Create(ctx, assignment)
	})
}

// effectiveMembers picks each user's effective binding and orders users by
// that membership's priority, highest first, then by user ID.
func effectiveMembers(bindings []*domain.UserMembership, now time.Time) []*domain.UserMembership {
	byUser := make(map[uuid.UUID][]*domain.UserMembership)
	var order []uuid.UUID
	for _, b := range bindings {
		if _, seen := byUser[b.UserID]; !seen {
			order = append(order, b.UserID)
		}
		byUser[b.UserID] = append(byUser[b.UserID], b)
	}

	members := make([]*domain.UserMembership, 0, len(order))
	for _, userID := range order {
		effective, err := domain.SelectEffective(byUser[userID], now)
		if err != nil {
			continue
		}
		members = append(members, effective)
	}

	sort.SliceStable(members, func(i, j int) bool {
		pi, pj := members[i].Membership.PriorityLevel, members[j].Membership.PriorityLevel
		if pi != pj {
			return pi > pj
		}
		return members[i].UserID.String() < members[j].UserID.String()
	})
	return members
}
