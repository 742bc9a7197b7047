package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors
var (
	ErrEmptyUserID  = errors.New("user ID cannot be empty")
	ErrSelfReferral = errors.New("user cannot refer themselves")
)

// User is the slice of a registered user this service keeps: identity and
// the referral edge to the user who invited them.
type User struct {
	ID         uuid.UUID  `json:"id"`
	ReferredBy *uuid.UUID `json:"referred_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewUser creates a User with the given ID and optional referrer.
// A nil id generates a new one.
func NewUser(id uuid.UUID, referredBy *uuid.UUID) (*User, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	user := &User{
		ID:         id,
		ReferredBy: referredBy,
		CreatedAt:  time.Now().UTC(),
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}
	if u.ReferredBy != nil && *u.ReferredBy == u.ID {
		return ErrSelfReferral
	}
	return nil
}
