package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/store"
)

const membershipColumns = `m.id, m.name, m.tasks_per_day, m.reward_multiplier, m.priority_level,
		m.is_active, m.created_at, m.updated_at`

const bindingColumns = `um.id, um.user_id, um.membership_id, um.started_at, um.expires_at,
		um.is_active, um.last_reset_date, um.daily_tasks_completed`

// PostgresMembershipStore implements the store.MembershipStore interface
// using a PostgreSQL database as the storage backend.
type PostgresMembershipStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresMembershipStore creates a new PostgreSQL implementation of the MembershipStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresMembershipStore(db store.DBTX, logger *slog.Logger) *PostgresMembershipStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresMembershipStore{
		db:     db,
		logger: logger.With(slog.String("component", "membership_store")),
	}
}

// Ensure PostgresMembershipStore implements store.MembershipStore interface
var _ store.MembershipStore = (*PostgresMembershipStore)(nil)

// WithTx implements store.MembershipStore.WithTx
func (s *PostgresMembershipStore) WithTx(tx *sql.Tx) store.MembershipStore {
	return &PostgresMembershipStore{db: tx, logger: s.logger}
}

// Create implements store.MembershipStore.Create
func (s *PostgresMembershipStore) Create(ctx context.Context, m *domain.Membership) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := m.Validate(); err != nil {
		log.Warn("membership validation failed during create",
			slog.String("error", err.Error()),
			slog.String("membership_id", m.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO memberships
			(id, name, tasks_per_day, reward_multiplier, priority_level, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.Name, m.TasksPerDay, m.RewardMultiplier, m.PriorityLevel,
		m.IsActive, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create membership",
			slog.String("error", err.Error()),
			slog.String("membership_id", m.ID.String()))
		return MapError(err)
	}

	log.Info("membership created",
		slog.String("membership_id", m.ID.String()),
		slog.String("name", m.Name))
	return nil
}

// Update implements store.MembershipStore.Update
func (s *PostgresMembershipStore) Update(ctx context.Context, m *domain.Membership) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE memberships
		SET name = $2, tasks_per_day = $3, reward_multiplier = $4, priority_level = $5,
			is_active = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		m.ID, m.Name, m.TasksPerDay, m.RewardMultiplier, m.PriorityLevel, m.IsActive, m.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update membership",
			slog.String("error", err.Error()),
			slog.String("membership_id", m.ID.String()))
		return MapError(err)
	}
	if err := CheckRowsAffected(result, "membership"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrMembershipNotFound
		}
		return err
	}

	log.Info("membership updated", slog.String("membership_id", m.ID.String()))
	return nil
}

// GetByID implements store.MembershipStore.GetByID
func (s *PostgresMembershipStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Membership, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + membershipColumns + ` FROM memberships m WHERE m.id = $1`

	m, err := scanMembership(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("membership not found", slog.String("membership_id", id.String()))
			return nil, store.ErrMembershipNotFound
		}
		log.Error("failed to get membership",
			slog.String("error", err.Error()),
			slog.String("membership_id", id.String()))
		return nil, MapError(err)
	}
	return m, nil
}

// CreateBinding implements store.MembershipStore.CreateBinding
func (s *PostgresMembershipStore) CreateBinding(ctx context.Context, b *domain.UserMembership) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := b.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO user_memberships
			(id, user_id, membership_id, started_at, expires_at, is_active, last_reset_date, daily_tasks_completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.UserID, b.MembershipID, b.StartedAt, nullTime(b.ExpiresAt),
		b.IsActive, nullTime(b.LastResetDate), b.DailyTasksCompleted,
	)
	if err != nil {
		log.Error("failed to create user membership",
			slog.String("error", err.Error()),
			slog.String("user_id", b.UserID.String()),
			slog.String("membership_id", b.MembershipID.String()))
		return MapError(err)
	}

	log.Info("user membership created",
		slog.String("binding_id", b.ID.String()),
		slog.String("user_id", b.UserID.String()),
		slog.String("membership_id", b.MembershipID.String()))
	return nil
}

// DeactivateBindings implements store.MembershipStore.DeactivateBindings
func (s *PostgresMembershipStore) DeactivateBindings(
	ctx context.Context,
	userID, membershipID uuid.UUID,
) (int64, error) {
	query := `
		UPDATE user_memberships
		SET is_active = FALSE
		WHERE user_id = $1 AND membership_id = $2 AND is_active
	`
	result, err := s.db.ExecContext(ctx, query, userID, membershipID)
	if err != nil {
		return 0, MapError(err)
	}
	return result.RowsAffected()
}

// ListBindings implements store.MembershipStore.ListBindings
func (s *PostgresMembershipStore) ListBindings(ctx context.Context, userID uuid.UUID) ([]*domain.UserMembership, error) {
	query := `
		SELECT ` + bindingColumns + `, ` + membershipColumns + `
		FROM user_memberships um
		JOIN memberships m ON m.id = um.membership_id
		WHERE um.user_id = $1
		ORDER BY um.started_at DESC
	`
	return s.queryBindings(ctx, query, userID)
}

// ListEffectiveBindings implements store.MembershipStore.ListEffectiveBindings
func (s *PostgresMembershipStore) ListEffectiveBindings(ctx context.Context, now time.Time) ([]*domain.UserMembership, error) {
	query := `
		SELECT ` + bindingColumns + `, ` + membershipColumns + `
		FROM user_memberships um
		JOIN memberships m ON m.id = um.membership_id
		WHERE um.is_active
			AND m.is_active
			AND (um.expires_at IS NULL OR um.expires_at > $1)
		ORDER BY m.priority_level DESC, um.user_id, um.started_at DESC
	`
	return s.queryBindings(ctx, query, now)
}

func (s *PostgresMembershipStore) queryBindings(ctx context.Context, query string, args ...any) ([]*domain.UserMembership, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query user memberships", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var bindings []*domain.UserMembership
	for rows.Next() {
		b, err := scanBindingWithMembership(rows)
		if err != nil {
			log.Error("failed to scan user membership", slog.String("error", err.Error()))
			return nil, err
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating user memberships", slog.String("error", err.Error()))
		return nil, err
	}
	return bindings, nil
}

// IncrementDailyCompleted implements store.MembershipStore.IncrementDailyCompleted
func (s *PostgresMembershipStore) IncrementDailyCompleted(ctx context.Context, userID, membershipID uuid.UUID) error {
	query := `
		UPDATE user_memberships
		SET daily_tasks_completed = daily_tasks_completed + 1
		WHERE user_id = $1 AND membership_id = $2 AND is_active
	`
	result, err := s.db.ExecContext(ctx, query, userID, membershipID)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(result, "user membership"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrBindingNotFound
		}
		return err
	}
	return nil
}

// ResetDailyCounters implements store.MembershipStore.ResetDailyCounters
func (s *PostgresMembershipStore) ResetDailyCounters(ctx context.Context, today time.Time) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE user_memberships
		SET daily_tasks_completed = 0, last_reset_date = $1::date
		WHERE last_reset_date IS DISTINCT FROM $1::date
	`
	result, err := s.db.ExecContext(ctx, query, today.Format(time.DateOnly))
	if err != nil {
		log.Error("failed to reset daily counters", slog.String("error", err.Error()))
		return 0, MapError(err)
	}
	return result.RowsAffected()
}

func scanMembership(row rowScanner) (*domain.Membership, error) {
	var m domain.Membership
	if err := row.Scan(
		&m.ID, &m.Name, &m.TasksPerDay, &m.RewardMultiplier, &m.PriorityLevel,
		&m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanBindingWithMembership(row rowScanner) (*domain.UserMembership, error) {
	var (
		b         domain.UserMembership
		m         domain.Membership
		expiresAt sql.NullTime
		lastReset sql.NullTime
	)
	if err := row.Scan(
		&b.ID, &b.UserID, &b.MembershipID, &b.StartedAt, &expiresAt,
		&b.IsActive, &lastReset, &b.DailyTasksCompleted,
		&m.ID, &m.Name, &m.TasksPerDay, &m.RewardMultiplier, &m.PriorityLevel,
		&m.IsActive, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.ExpiresAt = timePtr(expiresAt)
	b.LastResetDate = timePtr(lastReset)
	b.Membership = &m
	return &b, nil
}
