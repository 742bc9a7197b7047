package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/store"
)

const taskColumns = `id, title, description, priority, threshold_value, task_completion_count,
		task_distribution_count, is_active, task_status, requires_photo, base_points,
		created_at, updated_at`

// distributablePredicate is the SQL form of domain.Task.IsDistributable.
const distributablePredicate = `is_active
		AND task_status = 'active'
		AND task_distribution_count < threshold_value
		AND task_completion_count < threshold_value`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, t *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := t.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", t.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.Title, t.Description, t.Priority, t.ThresholdValue, t.TaskCompletionCount,
		t.TaskDistributionCount, t.IsActive, t.TaskStatus, t.RequiresPhoto, t.BasePoints,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", t.ID.String()))
		return MapError(err)
	}

	log.Info("task created",
		slog.String("task_id", t.ID.String()),
		slog.String("priority", string(t.Priority)),
		slog.Int("threshold_value", t.ThresholdValue))
	return nil
}

// Update implements store.TaskStore.Update
func (s *PostgresTaskStore) Update(ctx context.Context, t *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE tasks
		SET title = $2, description = $3, priority = $4, threshold_value = $5, is_active = $6,
			task_status = $7, requires_photo = $8, base_points = $9, updated_at = $10
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		t.ID, t.Title, t.Description, t.Priority, t.ThresholdValue, t.IsActive,
		t.TaskStatus, t.RequiresPhoto, t.BasePoints, t.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", t.ID.String()))
		return MapError(err)
	}
	if err := CheckRowsAffected(result, "task"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrTaskNotFound
		}
		return err
	}

	log.Info("task updated", slog.String("task_id", t.ID.String()))
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(err)
	}
	return t, nil
}

// ListCandidates implements store.TaskStore.ListCandidates
func (s *PostgresTaskStore) ListCandidates(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		WHERE ` + distributablePredicate + `
			AND NOT EXISTS (
				SELECT 1 FROM assignments a WHERE a.user_id = $1 AND a.task_id = t.id
			)
		ORDER BY
			CASE t.priority
				WHEN 'urgent' THEN 0
				WHEN 'high' THEN 1
				WHEN 'medium' THEN 2
				WHEN 'low' THEN 3
				ELSE 4
			END,
			t.created_at,
			t.id
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		log.Error("failed to query candidate tasks",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.Task, 0, limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan candidate task", slog.String("error", err.Error()))
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Debug("candidate tasks listed",
		slog.String("user_id", userID.String()),
		slog.Int("count", len(tasks)))
	return tasks, nil
}

// ClaimDistribution implements store.TaskStore.ClaimDistribution
// The guarded UPDATE takes the row lock, so concurrent claims on the same task
// are serialized and each re-checks the threshold against the latest count.
func (s *PostgresTaskStore) ClaimDistribution(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET task_distribution_count = task_distribution_count + 1, updated_at = NOW()
		WHERE id = $1 AND ` + distributablePredicate + `
		RETURNING ` + taskColumns
	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task no longer distributable", slog.String("task_id", id.String()))
			return nil, store.ErrTaskUnavailable
		}
		log.Error("failed to claim task distribution",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(err)
	}
	return t, nil
}

// IncrementCompletion implements store.TaskStore.IncrementCompletion
func (s *PostgresTaskStore) IncrementCompletion(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tasks
		SET task_completion_count = task_completion_count + 1, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(result, "task"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrTaskNotFound
		}
		return err
	}
	return nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t        domain.Task
		priority string
		status   string
	)
	if err := row.Scan(
		&t.ID, &t.Title, &t.Description, &priority, &t.ThresholdValue, &t.TaskCompletionCount,
		&t.TaskDistributionCount, &t.IsActive, &status, &t.RequiresPhoto, &t.BasePoints,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Priority = domain.TaskPriority(priority)
	t.TaskStatus = domain.TaskStatus(status)
	return &t, nil
}
