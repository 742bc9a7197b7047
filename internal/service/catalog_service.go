package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/store"
)

// CatalogService applies the admin collaborator's typed commands to the
// membership and task catalogs.
type CatalogService interface {
	CreateMembership(ctx context.Context, cmd CreateMembershipCommand) (*domain.Membership, error)
	UpdateMembership(ctx context.Context, cmd UpdateMembershipCommand) (*domain.Membership, error)
	CreateTask(ctx context.Context, cmd CreateTaskCommand) (*domain.Task, error)
	UpdateTask(ctx context.Context, cmd UpdateTaskCommand) (*domain.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// BindMembership creates an active binding of the user to the membership.
	// Any active binding of the same pair is deactivated first, so at most
	// one is active at a time.
	BindMembership(ctx context.Context, cmd BindMembershipCommand) (*domain.UserMembership, error)
}

type catalogServiceImpl struct {
	tx          store.Transactor
	users       store.UserStore
	memberships store.MembershipStore
	tasks       store.TaskStore
	now         Clock
	logger      *slog.Logger
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(
	tx store.Transactor,
	users store.UserStore,
	memberships store.MembershipStore,
	tasks store.TaskStore,
	now Clock,
	logger *slog.Logger,
) (CatalogService, error) {
	switch {
	case tx == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "transactor cannot be nil"}
	case users == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "users cannot be nil"}
	case memberships == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "memberships cannot be nil"}
	case tasks == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "tasks cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &catalogServiceImpl{
		tx:          tx,
		users:       users,
		memberships: memberships,
		tasks:       tasks,
		now:         clockOrDefault(now),
		logger:      logger.With(slog.String("component", "catalog_service")),
	}, nil
}

// CreateMembership implements CatalogService.CreateMembership
func (s *catalogServiceImpl) CreateMembership(
	ctx context.Context,
	cmd CreateMembershipCommand,
) (*domain.Membership, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	m, err := domain.NewMembership(cmd.Name, cmd.TasksPerDay, cmd.RewardMultiplier, cmd.PriorityLevel)
	if err != nil {
		return nil, invalidCommand(err)
	}
	if cmd.IsActive != nil {
		m.IsActive = *cmd.IsActive
	}
	now := s.now()
	m.CreatedAt, m.UpdatedAt = now, now

	if err := s.memberships.Create(ctx, m); err != nil {
		return nil, NewServiceError("create_membership", "failed to save membership", err)
	}
	return m, nil
}

// UpdateMembership implements CatalogService.UpdateMembership
func (s *catalogServiceImpl) UpdateMembership(
	ctx context.Context,
	cmd UpdateMembershipCommand,
) (*domain.Membership, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	m, err := s.memberships.GetByID(ctx, cmd.ID)
	if err != nil {
		return nil, NewServiceError("update_membership", "failed to get membership", err)
	}
	m.Name = cmd.Name
	m.TasksPerDay = cmd.TasksPerDay
	m.RewardMultiplier = cmd.RewardMultiplier
	m.PriorityLevel = cmd.PriorityLevel
	m.IsActive = cmd.IsActive
	m.UpdatedAt = s.now()
	if err := m.Validate(); err != nil {
		return nil, invalidCommand(err)
	}

	if err := s.memberships.Update(ctx, m); err != nil {
		return nil, NewServiceError("update_membership", "failed to save membership", err)
	}
	return m, nil
}

// CreateTask implements CatalogService.CreateTask
func (s *catalogServiceImpl) CreateTask(ctx context.Context, cmd CreateTaskCommand) (*domain.Task, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	t, err := domain.NewTask(cmd.Title, cmd.Priority, cmd.ThresholdValue, cmd.BasePoints, cmd.RequiresPhoto)
	if err != nil {
		return nil, invalidCommand(err)
	}
	t.Description = cmd.Description
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now

	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, NewServiceError("create_task", "failed to save task", err)
	}
	return t, nil
}

// UpdateTask implements CatalogService.UpdateTask
func (s *catalogServiceImpl) UpdateTask(ctx context.Context, cmd UpdateTaskCommand) (*domain.Task, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	t, err := s.tasks.GetByID(ctx, cmd.ID)
	if err != nil {
		return nil, NewServiceError("update_task", "failed to get task", err)
	}
	t.Title = cmd.Title
	t.Description = cmd.Description
	t.Priority = cmd.Priority
	t.ThresholdValue = cmd.ThresholdValue
	t.BasePoints = cmd.BasePoints
	t.RequiresPhoto = cmd.RequiresPhoto
	t.IsActive = cmd.IsActive
	t.TaskStatus = cmd.TaskStatus
	t.UpdatedAt = s.now()
	if err := t.Validate(); err != nil {
		return nil, invalidCommand(err)
	}

	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, NewServiceError("update_task", "failed to save task", err)
	}
	return t, nil
}

// GetTask implements CatalogService.GetTask
func (s *catalogServiceImpl) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, NewServiceError("get_task", "failed to get task", err)
	}
	return t, nil
}

// BindMembership implements CatalogService.BindMembership
func (s *catalogServiceImpl) BindMembership(
	ctx context.Context,
	cmd BindMembershipCommand,
) (*domain.UserMembership, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	startedAt := s.now()
	if cmd.StartedAt != nil {
		startedAt = *cmd.StartedAt
	}

	var binding *domain.UserMembership
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		b, err := bindMembershipTx(ctx, s.users.WithTx(tx), s.memberships.WithTx(tx),
			cmd.UserID, cmd.MembershipID, startedAt, cmd.ExpiresAt)
		binding = b
		return err
	})
	if err != nil {
		return nil, NewServiceError("bind_membership", "failed to bind membership", err)
	}

	log.Info("membership bound",
		slog.String("user_id", binding.UserID.String()),
		slog.String("membership_id", binding.MembershipID.String()))
	return binding, nil
}

// bindMembershipTx replaces the user's active binding to the membership with
// a new one. The stores must be bound to the caller's transaction.
func bindMembershipTx(
	ctx context.Context,
	users store.UserStore,
	memberships store.MembershipStore,
	userID, membershipID uuid.UUID,
	startedAt time.Time,
	expiresAt *time.Time,
) (*domain.UserMembership, error) {
	if _, err := users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	membership, err := memberships.GetByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}

	binding, err := domain.NewUserMembership(userID, membershipID, startedAt, expiresAt)
	if err != nil {
		return nil, invalidCommand(err)
	}
	binding.Membership = membership

	replaced, err := memberships.DeactivateBindings(ctx, userID, membershipID)
	if err != nil {
		return nil, err
	}
	if replaced > 0 {
		logger.FromContext(ctx).Debug("replaced active binding",
			slog.String("user_id", userID.String()),
			slog.String("membership_id", membershipID.String()),
			slog.Int64("deactivated", replaced))
	}

	if err := memberships.CreateBinding(ctx, binding); err != nil {
		return nil, err
	}
	return binding, nil
}
