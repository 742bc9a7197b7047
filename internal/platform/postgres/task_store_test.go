package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskRowColumns = []string{
	"id", "title", "description", "priority", "threshold_value", "task_completion_count",
	"task_distribution_count", "is_active", "task_status", "requires_photo", "base_points",
	"created_at", "updated_at",
}

func taskRow(rows *sqlmock.Rows, id uuid.UUID, priority string, distributed int) *sqlmock.Rows {
	return rows.AddRow(id.String(), "task", "", priority, 3, 0, distributed, true, "active", false, "10",
		testNow, testNow)
}

func TestPostgresTaskStore_Create(t *testing.T) {
	task, err := domain.NewTask("Photograph a storefront", domain.TaskPriorityHigh, 3, decimal.NewFromInt(10), true)
	require.NoError(t, err)

	db, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO tasks`).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, NewPostgresTaskStore(db, discardLogger()).Create(context.Background(), task))

	task.ThresholdValue = -1
	err = NewPostgresTaskStore(db, discardLogger()).Create(context.Background(), task)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestPostgresTaskStore_ListCandidates(t *testing.T) {
	userID := uuid.New()
	urgent, low := uuid.New(), uuid.New()

	t.Run("returns distributable tasks in order", func(t *testing.T) {
		db, mock := newMock(t)
		rows := sqlmock.NewRows(taskRowColumns)
		taskRow(rows, urgent, "urgent", 0)
		taskRow(rows, low, "low", 2)
		mock.ExpectQuery(`NOT EXISTS`).WithArgs(userID, 5).WillReturnRows(rows)

		tasks, err := NewPostgresTaskStore(db, discardLogger()).ListCandidates(context.Background(), userID, 5)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, urgent, tasks[0].ID)
		assert.Equal(t, domain.TaskPriorityUrgent, tasks[0].Priority)
		assert.Equal(t, 2, tasks[1].TaskDistributionCount)
		assert.True(t, tasks[1].BasePoints.Equal(decimal.NewFromInt(10)))
	})

	t.Run("zero limit skips the query", func(t *testing.T) {
		db, _ := newMock(t)
		tasks, err := NewPostgresTaskStore(db, discardLogger()).ListCandidates(context.Background(), userID, 0)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})
}

func TestPostgresTaskStore_ClaimDistribution(t *testing.T) {
	id := uuid.New()

	t.Run("claimed", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`SET task_distribution_count = task_distribution_count \+ 1`).
			WithArgs(id).
			WillReturnRows(taskRow(sqlmock.NewRows(taskRowColumns), id, "high", 1))

		task, err := NewPostgresTaskStore(db, discardLogger()).ClaimDistribution(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 1, task.TaskDistributionCount)
	})

	t.Run("threshold reached", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`SET task_distribution_count`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(taskRowColumns))

		_, err := NewPostgresTaskStore(db, discardLogger()).ClaimDistribution(context.Background(), id)
		assert.ErrorIs(t, err, store.ErrTaskUnavailable)
	})
}

func TestPostgresTaskStore_IncrementCompletion(t *testing.T) {
	id := uuid.New()
	db, mock := newMock(t)
	mock.ExpectExec(`SET task_completion_count = task_completion_count \+ 1`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewPostgresTaskStore(db, discardLogger()).IncrementCompletion(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}
