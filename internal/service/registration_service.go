package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/events"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/store"
)

// Registration is the outcome of registering a user.
type Registration struct {
	User     *domain.User               `json:"user"`
	Binding  *domain.UserMembership     `json:"binding,omitempty"`
	Referral *domain.ReferralSettlement `json:"referral,omitempty"`
}

// RegistrationService is the boundary for the registration collaborator.
type RegistrationService interface {
	// RegisterUser stores the user, binds the optional membership and settles
	// the signup referral in one transaction, then emits user.registered so
	// that the user's first tasks are assigned in the background.
	RegisterUser(ctx context.Context, cmd RegisterUserCommand) (*Registration, error)
}

type registrationServiceImpl struct {
	tx          store.Transactor
	users       store.UserStore
	memberships store.MembershipStore
	accounts    store.AccountStore
	referrals   referralSettler
	events      eventSink
	now         Clock
	logger      *slog.Logger
}

// NewRegistrationService creates a RegistrationService.
// A nil emitter discards registration events.
func NewRegistrationService(
	tx store.Transactor,
	users store.UserStore,
	memberships store.MembershipStore,
	accounts store.AccountStore,
	bonuses ReferralBonuses,
	emitter events.EventEmitter,
	now Clock,
	logger *slog.Logger,
) (RegistrationService, error) {
	switch {
	case tx == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "transactor cannot be nil"}
	case users == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "users cannot be nil"}
	case memberships == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "memberships cannot be nil"}
	case accounts == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "accounts cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "registration_service"))
	now = clockOrDefault(now)
	return &registrationServiceImpl{
		tx:          tx,
		users:       users,
		memberships: memberships,
		accounts:    accounts,
		referrals:   referralSettler{bonuses: bonuses, now: now, logger: logger},
		events:      newEventSink(emitter, logger),
		now:         now,
		logger:      logger,
	}, nil
}

// RegisterUser implements RegistrationService.RegisterUser
func (s *registrationServiceImpl) RegisterUser(ctx context.Context, cmd RegisterUserCommand) (*Registration, error) {
	const op = "register_user"
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	user, err := domain.NewUser(cmd.UserID, cmd.ReferredBy)
	if err != nil {
		return nil, invalidCommand(err)
	}
	user.CreatedAt = s.now()

	reg := &Registration{User: user}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		users := s.users.WithTx(tx)

		if user.ReferredBy != nil {
			if _, err := users.GetByID(ctx, *user.ReferredBy); err != nil {
				if errors.Is(err, store.ErrUserNotFound) {
					return fmt.Errorf("%w: referrer %s does not exist", ErrInvalidCommand, *user.ReferredBy)
				}
				return err
			}
		}
		if err := users.Create(ctx, user); err != nil {
			return err
		}

		if cmd.MembershipID != nil {
			binding, err := bindMembershipTx(ctx, users, s.memberships.WithTx(tx),
				user.ID, *cmd.MembershipID, user.CreatedAt, cmd.MembershipExpiresAt)
			if err != nil {
				return err
			}
			reg.Binding = binding
		}

		referral, err := s.referrals.settle(ctx, users, s.accounts.WithTx(tx), user)
		if err != nil {
			return err
		}
		reg.Referral = referral
		return nil
	})
	if err != nil {
		return nil, NewServiceError(op, "failed to register user", err)
	}

	log.Info("user registered",
		slog.String("user_id", user.ID.String()),
		slog.Bool("referred", user.ReferredBy != nil),
		slog.Bool("membership_bound", reg.Binding != nil))

	if reg.Referral != nil {
		s.events.referralSettled(ctx, reg.Referral)
	}
	s.events.emit(ctx, events.TypeUserRegistered, events.UserRegisteredPayload{
		UserID:     user.ID,
		ReferredBy: user.ReferredBy,
	})
	return reg, nil
}
