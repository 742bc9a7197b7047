package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/job"
	"github.com/phrazzld/taskquota/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticJob is a minimal job.Job for persistence tests.
type staticJob struct{ id uuid.UUID }

func (j staticJob) ID() uuid.UUID                 { return j.id }
func (j staticJob) Type() string                  { return job.TypeAssignUserTasks }
func (j staticJob) Payload() []byte               { return []byte(`{"user_id":"x"}`) }
func (j staticJob) Execute(context.Context) error { return nil }

func TestPostgresJobStore_Save(t *testing.T) {
	j := staticJob{id: uuid.New()}

	t.Run("success", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`INSERT INTO jobs`).
			WithArgs(j.id, job.TypeAssignUserTasks, j.Payload(), "pending", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewPostgresJobStore(db, discardLogger()).Save(context.Background(), j))
	})

	t.Run("failure", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`INSERT INTO jobs`).WillReturnError(pgError(uniqueViolationCode))

		err := NewPostgresJobStore(db, discardLogger()).Save(context.Background(), j)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})
}

func TestPostgresJobStore_UpdateStatus(t *testing.T) {
	id := uuid.New()

	t.Run("updated", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`UPDATE jobs`).
			WithArgs("failed", "boom", sqlmock.AnyArg(), id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewPostgresJobStore(db, discardLogger()).
			UpdateStatus(context.Background(), id, job.StatusFailed, "boom"))
	})

	t.Run("unknown job", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`UPDATE jobs`).WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewPostgresJobStore(db, discardLogger()).
			UpdateStatus(context.Background(), id, job.StatusCompleted, "")
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})
}

func TestPostgresJobStore_List(t *testing.T) {
	columns := []string{"id", "type", "payload", "status", "error_message", "created_at", "updated_at"}
	id := uuid.New()

	t.Run("pending", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`FROM jobs\s+WHERE status = \$1\s+ORDER BY`).
			WithArgs("pending").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(id.String(), job.TypeAssignUserTasks, []byte(`{}`), "pending", nil, testNow, testNow))

		records, err := NewPostgresJobStore(db, discardLogger()).ListPending(context.Background())
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, id, records[0].ID)
		assert.Equal(t, job.StatusPending, records[0].Status)
		assert.Empty(t, records[0].ErrorMessage)
	})

	t.Run("processing older than", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`updated_at < \$2`).
			WithArgs("processing", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(columns))

		records, err := NewPostgresJobStore(db, discardLogger()).ListProcessing(context.Background(), time.Minute)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := newMock(t)
		boom := errors.New("timeout")
		mock.ExpectQuery(`FROM jobs`).WillReturnError(boom)

		_, err := NewPostgresJobStore(db, discardLogger()).ListProcessing(context.Background(), 0)
		assert.ErrorIs(t, err, boom)
	})
}
