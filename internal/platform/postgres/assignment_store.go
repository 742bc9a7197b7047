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

const assignmentColumns = `id, user_id, task_id, membership_id, status, assigned_at, expires_at,
		base_points, vip_multiplier, final_reward, completed_at, updated_at`

// PostgresAssignmentStore implements the store.AssignmentStore interface
// using a PostgreSQL database as the storage backend.
type PostgresAssignmentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAssignmentStore creates a new PostgreSQL implementation of the AssignmentStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresAssignmentStore(db store.DBTX, logger *slog.Logger) *PostgresAssignmentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAssignmentStore{
		db:     db,
		logger: logger.With(slog.String("component", "assignment_store")),
	}
}

// Ensure PostgresAssignmentStore implements store.AssignmentStore interface
var _ store.AssignmentStore = (*PostgresAssignmentStore)(nil)

// WithTx implements store.AssignmentStore.WithTx
func (s *PostgresAssignmentStore) WithTx(tx *sql.Tx) store.AssignmentStore {
	return &PostgresAssignmentStore{db: tx, logger: s.logger}
}

// LockUser implements store.AssignmentStore.LockUser
// The advisory lock is released when the surrounding transaction ends.
func (s *PostgresAssignmentStore) LockUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, userID.String())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to take user assignment lock",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return MapError(err)
	}
	return nil
}

// CountPendingInWindow implements store.AssignmentStore.CountPendingInWindow
func (s *PostgresAssignmentStore) CountPendingInWindow(
	ctx context.Context,
	userID uuid.UUID,
	window domain.DayWindow,
) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM assignments
		WHERE user_id = $1 AND status = 'pending' AND assigned_at >= $2 AND assigned_at < $3
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, window.Start, window.End).Scan(&count); err != nil {
		return 0, MapError(err)
	}
	return count, nil
}

// Create implements store.AssignmentStore.Create
func (s *PostgresAssignmentStore) Create(ctx context.Context, a *domain.Assignment) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO assignments (` + assignmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, task_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.TaskID, nullUUID(a.MembershipID), a.Status, a.AssignedAt, a.ExpiresAt,
		a.BasePoints, a.VIPMultiplier, a.FinalReward, nullTime(a.CompletedAt), a.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create assignment",
			slog.String("error", err.Error()),
			slog.String("user_id", a.UserID.String()),
			slog.String("task_id", a.TaskID.String()))
		return MapError(err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if inserted == 0 {
		return store.ErrAssignmentExists
	}

	log.Debug("assignment created",
		slog.String("assignment_id", a.ID.String()),
		slog.String("user_id", a.UserID.String()),
		slog.String("task_id", a.TaskID.String()))
	return nil
}

// GetByID implements store.AssignmentStore.GetByID
func (s *PostgresAssignmentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	a, err := scanAssignment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAssignmentNotFound
		}
		return nil, MapError(err)
	}
	return a, nil
}

// MarkCompleted implements store.AssignmentStore.MarkCompleted
func (s *PostgresAssignmentStore) MarkCompleted(
	ctx context.Context,
	id uuid.UUID,
	completedAt time.Time,
) (*domain.Assignment, error) {
	query := `
		UPDATE assignments
		SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending' AND assigned_at <= $2 AND expires_at > $2
		RETURNING ` + assignmentColumns
	a, err := scanAssignment(s.db.QueryRowContext(ctx, query, id, completedAt.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUpdateFailed
		}
		return nil, MapError(err)
	}
	return a, nil
}

// ListByUser implements store.AssignmentStore.ListByUser
func (s *PostgresAssignmentStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	status *domain.AssignmentStatus,
) ([]*domain.Assignment, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE user_id = $1`
	args := []any{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY assigned_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list assignments",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	assignments := []*domain.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// ExpireStale implements store.AssignmentStore.ExpireStale
func (s *PostgresAssignmentStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE assignments
		SET status = 'expired', updated_at = $1
		WHERE status = 'pending' AND expires_at < $1
	`
	result, err := s.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		log.Error("failed to expire stale assignments", slog.String("error", err.Error()))
		return 0, MapError(err)
	}
	return result.RowsAffected()
}

func scanAssignment(row rowScanner) (*domain.Assignment, error) {
	var (
		a            domain.Assignment
		membershipID uuid.NullUUID
		status       string
		completedAt  sql.NullTime
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &a.TaskID, &membershipID, &status, &a.AssignedAt, &a.ExpiresAt,
		&a.BasePoints, &a.VIPMultiplier, &a.FinalReward, &completedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.MembershipID = membershipID.UUID
	a.Status = domain.AssignmentStatus(status)
	a.CompletedAt = timePtr(completedAt)
	return &a, nil
}
