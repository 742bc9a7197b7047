package service

import (
	"context"
	"log/slog"

	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/store"
	"github.com/shopspring/decimal"
)

// referralSettler pays signup bonuses. It is shared by settlement and
// registration so that registration can settle inside its own transaction.
type referralSettler struct {
	bonuses ReferralBonuses
	now     Clock
	logger  *slog.Logger
}

// settle pays the signup bonuses owed for user using the given stores, which
// must be bound to the caller's transaction. The referral chain is followed
// two hops and no further. It returns nil when nothing was owed.
func (r referralSettler) settle(
	ctx context.Context,
	users store.UserStore,
	accounts store.AccountStore,
	user *domain.User,
) (*domain.ReferralSettlement, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	if user.ReferredBy == nil {
		return nil, nil
	}

	direct, err := users.GetByID(ctx, *user.ReferredBy)
	if err != nil {
		return nil, err
	}

	settlement := &domain.ReferralSettlement{
		ReferredUserID:   user.ID,
		DirectReferrerID: &direct.ID,
		DirectBonus:      r.bonuses.Direct,
		IndirectBonus:    decimal.Zero,
		SettledAt:        r.now(),
	}
	if direct.ReferredBy != nil && *direct.ReferredBy != user.ID {
		indirectID := *direct.ReferredBy
		settlement.IndirectReferrerID = &indirectID
		settlement.IndirectBonus = r.bonuses.Indirect
	}

	inserted, err := accounts.CreateReferralSettlement(ctx, settlement)
	if err != nil {
		return nil, err
	}
	if !inserted {
		log.Debug("signup referral already settled", slog.String("user_id", user.ID.String()))
		return nil, nil
	}

	if settlement.DirectBonus.IsPositive() {
		if err := accounts.Credit(ctx, domain.BonusCredit(direct.ID, settlement.DirectBonus)); err != nil {
			return nil, err
		}
	}
	if settlement.IndirectReferrerID != nil && settlement.IndirectBonus.IsPositive() {
		credit := domain.BonusCredit(*settlement.IndirectReferrerID, settlement.IndirectBonus)
		if err := accounts.Credit(ctx, credit); err != nil {
			return nil, err
		}
	}

	log.Info("signup referral settled",
		slog.String("user_id", user.ID.String()),
		slog.String("direct_referrer_id", direct.ID.String()),
		slog.String("direct_bonus", settlement.DirectBonus.String()),
		slog.String("indirect_bonus", settlement.IndirectBonus.String()))
	return settlement, nil
}
