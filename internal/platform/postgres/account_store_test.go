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

func TestPostgresAccountStore_Get(t *testing.T) {
	userID := uuid.New()

	t.Run("found", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`FROM accounts`).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{
				"user_id", "balance", "points", "bonus_total", "earned_total", "updated_at",
			}).AddRow(userID.String(), "15", "30.5", "15", "30.5", testNow))

		a, err := NewPostgresAccountStore(db, discardLogger()).Get(context.Background(), userID)
		require.NoError(t, err)
		assert.True(t, a.Points.Equal(decimal.RequireFromString("30.5")))
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`FROM accounts`).WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

		_, err := NewPostgresAccountStore(db, discardLogger()).Get(context.Background(), userID)
		assert.ErrorIs(t, err, store.ErrAccountNotFound)
	})
}

func TestPostgresAccountStore_Credit(t *testing.T) {
	userID := uuid.New()

	db, mock := newMock(t)
	mock.ExpectExec(`ON CONFLICT \(user_id\) DO UPDATE`).
		WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgresAccountStore(db, discardLogger())
	require.NoError(t, s.Credit(context.Background(), domain.BonusCredit(userID, decimal.NewFromInt(10))))

	err := s.Credit(context.Background(), domain.AccountCredit{})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestPostgresAccountStore_CreateReferralSettlement(t *testing.T) {
	parent := uuid.New()
	rs := &domain.ReferralSettlement{
		ReferredUserID:   uuid.New(),
		DirectReferrerID: &parent,
		DirectBonus:      decimal.NewFromInt(10),
		IndirectBonus:    decimal.Zero,
		SettledAt:        testNow,
	}

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"first settlement", 1, true},
		{"already settled", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec(`INSERT INTO referral_settlements`).
				WithArgs(rs.ReferredUserID, uuid.NullUUID{UUID: parent, Valid: true}, uuid.NullUUID{},
					sqlmock.AnyArg(), sqlmock.AnyArg(), testNow).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			inserted, err := NewPostgresAccountStore(db, discardLogger()).CreateReferralSettlement(context.Background(), rs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, inserted)
		})
	}
}
