package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a user's running totals. Points come from completed
// assignments; balance and bonus total come from referral bonuses.
type Account struct {
	UserID      uuid.UUID       `json:"user_id"`
	Balance     decimal.Decimal `json:"balance"`
	Points      decimal.Decimal `json:"points"`
	BonusTotal  decimal.Decimal `json:"bonus_total"`
	EarnedTotal decimal.Decimal `json:"earned_total"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewAccount returns an empty account for the user.
func NewAccount(userID uuid.UUID) *Account {
	return &Account{
		UserID:      userID,
		Balance:     decimal.Zero,
		Points:      decimal.Zero,
		BonusTotal:  decimal.Zero,
		EarnedTotal: decimal.Zero,
		UpdatedAt:   time.Now().UTC(),
	}
}

// AccountCredit is a delta applied atomically to an account. Zero fields
// leave the corresponding total unchanged.
type AccountCredit struct {
	UserID      uuid.UUID
	Balance     decimal.Decimal
	Points      decimal.Decimal
	BonusTotal  decimal.Decimal
	EarnedTotal decimal.Decimal
}

// RewardCredit is the credit for a completed assignment.
func RewardCredit(a *Assignment) AccountCredit {
	return AccountCredit{
		UserID:      a.UserID,
		Points:      a.FinalReward,
		EarnedTotal: a.FinalReward,
	}
}

// BonusCredit is the credit for a referral bonus.
func BonusCredit(userID uuid.UUID, amount decimal.Decimal) AccountCredit {
	return AccountCredit{
		UserID:     userID,
		Balance:    amount,
		BonusTotal: amount,
	}
}

// Apply adds the credit to the account totals.
func (a *Account) Apply(c AccountCredit, at time.Time) {
	a.Balance = a.Balance.Add(c.Balance)
	a.Points = a.Points.Add(c.Points)
	a.BonusTotal = a.BonusTotal.Add(c.BonusTotal)
	a.EarnedTotal = a.EarnedTotal.Add(c.EarnedTotal)
	a.UpdatedAt = at.UTC()
}

// ReferralSettlement records the one-shot signup bonus payout for a referred
// user. At most one exists per referred user.
type ReferralSettlement struct {
	ReferredUserID     uuid.UUID       `json:"referred_user_id"`
	DirectReferrerID   *uuid.UUID      `json:"direct_referrer_id,omitempty"`
	IndirectReferrerID *uuid.UUID      `json:"indirect_referrer_id,omitempty"`
	DirectBonus        decimal.Decimal `json:"direct_bonus"`
	IndirectBonus      decimal.Decimal `json:"indirect_bonus"`
	SettledAt          time.Time       `json:"settled_at"`
}
