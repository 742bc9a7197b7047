package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
)

// AccountStore persists account totals and referral settlements.
type AccountStore interface {
	// Get retrieves a user's account.
	// Returns ErrAccountNotFound if the user has never been credited.
	Get(ctx context.Context, userID uuid.UUID) (*domain.Account, error)

	// Credit adds the credit to the user's totals, creating the account on
	// first use.
	Credit(ctx context.Context, credit domain.AccountCredit) error

	// CreateReferralSettlement records a referral payout. It returns false
	// without error when the referred user has already been settled.
	CreateReferralSettlement(ctx context.Context, s *domain.ReferralSettlement) (bool, error)

	// WithTx returns an AccountStore that uses the provided transaction.
	WithTx(tx *sql.Tx) AccountStore
}
