package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/store"
)

// Eligibility is the resolver's view of one user for one day.
type Eligibility struct {
	UserID     uuid.UUID              `json:"user_id"`
	Binding    *domain.UserMembership `json:"binding"`
	Membership *domain.Membership     `json:"membership"`
	// AssignedTaskIDs holds every task ever assigned to the user, any status.
	AssignedTaskIDs []uuid.UUID `json:"assigned_task_ids"`
	// AssignedToday counts pending assignments assigned inside Window.
	AssignedToday int              `json:"assigned_today"`
	Remaining     int              `json:"remaining"`
	Window        domain.DayWindow `json:"-"`
}

// QuotaMet reports whether the user has no quota left today.
func (e *Eligibility) QuotaMet() bool {
	return e.Remaining <= 0
}

// EligibilityResolver resolves a user's effective membership and remaining quota.
type EligibilityResolver interface {
	// Resolve returns the user's eligibility at the resolver's current time.
	// Returns ErrNoActiveMembership when the user has no effective binding.
	Resolve(ctx context.Context, userID uuid.UUID) (*Eligibility, error)
}

type eligibilityResolverImpl struct {
	memberships store.MembershipStore
	assignments store.AssignmentStore
	location    *time.Location
	now         Clock
	logger      *slog.Logger
}

// NewEligibilityResolver creates an EligibilityResolver.
// Day windows are computed in loc; a nil loc means UTC.
func NewEligibilityResolver(
	memberships store.MembershipStore,
	assignments store.AssignmentStore,
	loc *time.Location,
	now Clock,
	logger *slog.Logger,
) (EligibilityResolver, error) {
	if memberships == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "memberships cannot be nil"}
	}
	if assignments == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "assignments cannot be nil"}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &eligibilityResolverImpl{
		memberships: memberships,
		assignments: assignments,
		location:    loc,
		now:         clockOrDefault(now),
		logger:      logger.With(slog.String("component", "eligibility_resolver")),
	}, nil
}

// Resolve implements EligibilityResolver.Resolve
func (r *eligibilityResolverImpl) Resolve(ctx context.Context, userID uuid.UUID) (*Eligibility, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)
	now := r.now()

	bindings, err := r.memberships.ListBindings(ctx, userID)
	if err != nil {
		return nil, NewServiceError("resolve_eligibility", "failed to list membership bindings", err)
	}
	binding, err := domain.SelectEffective(bindings, now)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveMembership) {
			log.Debug("user has no effective membership", slog.String("user_id", userID.String()))
		}
		return nil, err
	}

	window := domain.DayWindowAt(now, r.location)
	assignedToday, err := r.assignments.CountPendingInWindow(ctx, userID, window)
	if err != nil {
		return nil, NewServiceError("resolve_eligibility", "failed to count today's assignments", err)
	}

	history, err := r.assignments.ListByUser(ctx, userID, nil)
	if err != nil {
		return nil, NewServiceError("resolve_eligibility", "failed to list assignment history", err)
	}
	taskIDs := make([]uuid.UUID, 0, len(history))
	for _, a := range history {
		taskIDs = append(taskIDs, a.TaskID)
	}

	return newEligibility(userID, binding, assignedToday, taskIDs, window), nil
}

func newEligibility(
	userID uuid.UUID,
	binding *domain.UserMembership,
	assignedToday int,
	taskIDs []uuid.UUID,
	window domain.DayWindow,
) *Eligibility {
	remaining := binding.Membership.TasksPerDay - assignedToday
	if remaining < 0 {
		remaining = 0
	}
	return &Eligibility{
		UserID:          userID,
		Binding:         binding,
		Membership:      binding.Membership,
		AssignedTaskIDs: taskIDs,
		AssignedToday:   assignedToday,
		Remaining:       remaining,
		Window:          window,
	}
}
