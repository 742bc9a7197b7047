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

// PostgresAccountStore implements the store.AccountStore interface
// using a PostgreSQL database as the storage backend.
type PostgresAccountStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAccountStore creates a new PostgreSQL implementation of the AccountStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresAccountStore(db store.DBTX, logger *slog.Logger) *PostgresAccountStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAccountStore{
		db:     db,
		logger: logger.With(slog.String("component", "account_store")),
	}
}

// Ensure PostgresAccountStore implements store.AccountStore interface
var _ store.AccountStore = (*PostgresAccountStore)(nil)

// WithTx implements store.AccountStore.WithTx
func (s *PostgresAccountStore) WithTx(tx *sql.Tx) store.AccountStore {
	return &PostgresAccountStore{db: tx, logger: s.logger}
}

// Get implements store.AccountStore.Get
func (s *PostgresAccountStore) Get(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT user_id, balance, points, bonus_total, earned_total, updated_at
		FROM accounts
		WHERE user_id = $1
	`
	var a domain.Account
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&a.UserID, &a.Balance, &a.Points, &a.BonusTotal, &a.EarnedTotal, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, MapError(err)
	}
	return &a, nil
}

// Credit implements store.AccountStore.Credit
func (s *PostgresAccountStore) Credit(ctx context.Context, c domain.AccountCredit) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if c.UserID == uuid.Nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrEmptyUserID)
	}

	query := `
		INSERT INTO accounts (user_id, balance, points, bonus_total, earned_total, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			balance = accounts.balance + EXCLUDED.balance,
			points = accounts.points + EXCLUDED.points,
			bonus_total = accounts.bonus_total + EXCLUDED.bonus_total,
			earned_total = accounts.earned_total + EXCLUDED.earned_total,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		c.UserID, c.Balance, c.Points, c.BonusTotal, c.EarnedTotal, time.Now().UTC(),
	)
	if err != nil {
		log.Error("failed to credit account",
			slog.String("error", err.Error()),
			slog.String("user_id", c.UserID.String()))
		return MapError(err)
	}

	log.Debug("account credited",
		slog.String("user_id", c.UserID.String()),
		slog.String("points", c.Points.String()),
		slog.String("balance", c.Balance.String()))
	return nil
}

// CreateReferralSettlement implements store.AccountStore.CreateReferralSettlement
func (s *PostgresAccountStore) CreateReferralSettlement(
	ctx context.Context,
	rs *domain.ReferralSettlement,
) (bool, error) {
	query := `
		INSERT INTO referral_settlements
			(referred_user_id, direct_referrer_id, indirect_referrer_id, direct_bonus, indirect_bonus, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (referred_user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		rs.ReferredUserID, nullUUIDPtr(rs.DirectReferrerID), nullUUIDPtr(rs.IndirectReferrerID),
		rs.DirectBonus, rs.IndirectBonus, rs.SettledAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to record referral settlement",
			slog.String("error", err.Error()),
			slog.String("referred_user_id", rs.ReferredUserID.String()))
		return false, MapError(err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return inserted > 0, nil
}
