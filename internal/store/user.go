package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
)

// UserStore persists registered users and their referral edge.
type UserStore interface {
	// Create saves a new user.
	// Returns ErrUserExists if the ID is taken, ErrInvalidEntity if the
	// referrer does not exist.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// WithTx returns a UserStore that uses the provided transaction.
	WithTx(tx *sql.Tx) UserStore
}
