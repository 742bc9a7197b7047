package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
)

// MembershipStore persists the membership catalog and user bindings.
type MembershipStore interface {
	// Create saves a new membership tier.
	Create(ctx context.Context, m *domain.Membership) error

	// Update replaces a membership's editable fields.
	// Returns ErrMembershipNotFound if the membership does not exist.
	Update(ctx context.Context, m *domain.Membership) error

	// GetByID retrieves a membership tier.
	// Returns ErrMembershipNotFound if the membership does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Membership, error)

	// CreateBinding saves a new user membership binding.
	// Returns ErrInvalidEntity if the user or membership does not exist.
	CreateBinding(ctx context.Context, b *domain.UserMembership) error

	// DeactivateBindings marks every active binding of the (user, membership)
	// pair inactive and returns how many were changed.
	DeactivateBindings(ctx context.Context, userID, membershipID uuid.UUID) (int64, error)

	// ListBindings returns all bindings of a user with their Membership joined,
	// whatever their state.
	ListBindings(ctx context.Context, userID uuid.UUID) ([]*domain.UserMembership, error)

	// ListEffectiveBindings returns, for every user, the bindings that are
	// effective at now (active, unexpired, active membership) with their
	// Membership joined. Rows are ordered by membership priority descending,
	// then user ID.
	ListEffectiveBindings(ctx context.Context, now time.Time) ([]*domain.UserMembership, error)

	// IncrementDailyCompleted adds one to daily_tasks_completed on the user's
	// active binding for the membership.
	// Returns ErrBindingNotFound if there is no such binding.
	IncrementDailyCompleted(ctx context.Context, userID, membershipID uuid.UUID) error

	// ResetDailyCounters zeroes daily_tasks_completed and stamps
	// last_reset_date on every binding whose last reset is not today.
	// Returns the number of bindings reset.
	ResetDailyCounters(ctx context.Context, today time.Time) (int64, error)

	// WithTx returns a MembershipStore that uses the provided transaction.
	WithTx(tx *sql.Tx) MembershipStore
}
