package domain

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common validation errors for Membership and UserMembership
var (
	ErrEmptyMembershipID   = errors.New("membership ID cannot be empty")
	ErrEmptyMembershipName = errors.New("membership name cannot be empty")
	ErrNegativeQuota       = errors.New("tasks per day cannot be negative")
	ErrNegativeMultiplier  = errors.New("reward multiplier cannot be negative")
	ErrEmptyBindingUserID  = errors.New("binding user ID cannot be empty")
	ErrBindingExpiresEarly = errors.New("binding cannot expire before it starts")
)

// Membership is a catalog entry defining a paid tier: how many tasks a member
// receives per day, how their rewards are multiplied and how they rank
// against other tiers when tasks are scarce.
type Membership struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	TasksPerDay      int             `json:"tasks_per_day"`
	RewardMultiplier decimal.Decimal `json:"reward_multiplier"`
	PriorityLevel    int             `json:"priority_level"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewMembership creates a new active Membership.
// Returns an error if validation fails.
func NewMembership(
	name string,
	tasksPerDay int,
	multiplier decimal.Decimal,
	priorityLevel int,
) (*Membership, error) {
	now := time.Now().UTC()
	m := &Membership{
		ID:               uuid.New(),
		Name:             name,
		TasksPerDay:      tasksPerDay,
		RewardMultiplier: multiplier,
		PriorityLevel:    priorityLevel,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks if the Membership has valid data.
func (m *Membership) Validate() error {
	if m.ID == uuid.Nil {
		return ErrEmptyMembershipID
	}
	if m.Name == "" {
		return ErrEmptyMembershipName
	}
	if m.TasksPerDay < 0 {
		return ErrNegativeQuota
	}
	if m.RewardMultiplier.IsNegative() {
		return ErrNegativeMultiplier
	}
	return nil
}

// UserMembership binds a user to a membership for a period of time and
// carries the per-user daily counters.
type UserMembership struct {
	ID                  uuid.UUID  `json:"id"`
	UserID              uuid.UUID  `json:"user_id"`
	MembershipID        uuid.UUID  `json:"membership_id"`
	StartedAt           time.Time  `json:"started_at"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"` // nil never expires
	IsActive            bool       `json:"is_active"`
	LastResetDate       *time.Time `json:"last_reset_date,omitempty"`
	DailyTasksCompleted int        `json:"daily_tasks_completed"`

	// Membership is the joined catalog entry, populated by reads that need it.
	Membership *Membership `json:"membership,omitempty"`
}

// NewUserMembership creates an active binding starting at startedAt.
func NewUserMembership(
	userID, membershipID uuid.UUID,
	startedAt time.Time,
	expiresAt *time.Time,
) (*UserMembership, error) {
	b := &UserMembership{
		ID:           uuid.New(),
		UserID:       userID,
		MembershipID: membershipID,
		StartedAt:    startedAt.UTC(),
		ExpiresAt:    expiresAt,
		IsActive:     true,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks if the binding has valid data.
func (b *UserMembership) Validate() error {
	if b.UserID == uuid.Nil {
		return ErrEmptyBindingUserID
	}
	if b.MembershipID == uuid.Nil {
		return ErrEmptyMembershipID
	}
	if b.ExpiresAt != nil && !b.ExpiresAt.After(b.StartedAt) {
		return ErrBindingExpiresEarly
	}
	return nil
}

// IsEffectiveAt reports whether the binding can serve as the user's membership
// at the given instant: the binding and its membership are active and the
// binding has not expired.
func (b *UserMembership) IsEffectiveAt(now time.Time) bool {
	if !b.IsActive {
		return false
	}
	if b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
		return false
	}
	if b.Membership != nil && !b.Membership.IsActive {
		return false
	}
	return true
}

// SelectEffective picks the effective binding among a user's bindings: the
// highest membership priority among bindings effective at now, ties broken by
// the most recent StartedAt. Bindings without a joined Membership are ignored.
// Returns ErrNoActiveMembership when nothing qualifies.
func SelectEffective(bindings []*UserMembership, now time.Time) (*UserMembership, error) {
	candidates := make([]*UserMembership, 0, len(bindings))
	for _, b := range bindings {
		if b == nil || b.Membership == nil || !b.IsEffectiveAt(now) {
			continue
		}
		candidates = append(candidates, b)
	}
	if len(candidates) == 0 {
		return nil, ErrNoActiveMembership
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].Membership.PriorityLevel, candidates[j].Membership.PriorityLevel
		if pi != pj {
			return pi > pj
		}
		return candidates[i].StartedAt.After(candidates[j].StartedAt)
	})
	return candidates[0], nil
}
