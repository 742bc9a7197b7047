package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssignmentStatus represents the lifecycle state of an assignment
type AssignmentStatus string

// Possible assignment status values
const (
	AssignmentStatusPending   AssignmentStatus = "pending"
	AssignmentStatusCompleted AssignmentStatus = "completed"
	AssignmentStatusExpired   AssignmentStatus = "expired"
)

// IsValid reports whether s is a known assignment status.
func (s AssignmentStatus) IsValid() bool {
	switch s {
	case AssignmentStatusPending, AssignmentStatusCompleted, AssignmentStatusExpired:
		return true
	default:
		return false
	}
}

// Common validation errors for Assignment
var (
	ErrEmptyAssignmentID     = errors.New("assignment ID cannot be empty")
	ErrEmptyAssignmentUserID = errors.New("assignment user ID cannot be empty")
	ErrEmptyAssignmentTaskID = errors.New("assignment task ID cannot be empty")
	ErrAssignmentWindow      = errors.New("assignment must expire after it is assigned")
)

// Assignment binds one task to one user for one day. A (user, task) pair has
// at most one assignment across all time, whatever its status.
type Assignment struct {
	ID            uuid.UUID        `json:"id"`
	UserID        uuid.UUID        `json:"user_id"`
	TaskID        uuid.UUID        `json:"task_id"`
	MembershipID  uuid.UUID        `json:"membership_id"`
	Status        AssignmentStatus `json:"status"`
	AssignedAt    time.Time        `json:"assigned_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
	BasePoints    decimal.Decimal  `json:"base_points"`
	VIPMultiplier decimal.Decimal  `json:"vip_multiplier"`
	FinalReward   decimal.Decimal  `json:"final_reward"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewAssignment prices task for the member and creates a pending assignment
// that expires at the end of the given day window. The final reward is
// frozen at assignment time.
func NewAssignment(
	userID uuid.UUID,
	task *Task,
	membership *Membership,
	assignedAt time.Time,
	window DayWindow,
) (*Assignment, error) {
	if task == nil {
		return nil, ErrEmptyAssignmentTaskID
	}
	multiplier := decimal.NewFromInt(1)
	membershipID := uuid.Nil
	if membership != nil {
		multiplier = membership.RewardMultiplier
		membershipID = membership.ID
	}

	a := &Assignment{
		ID:            uuid.New(),
		UserID:        userID,
		TaskID:        task.ID,
		MembershipID:  membershipID,
		Status:        AssignmentStatusPending,
		AssignedAt:    assignedAt.UTC(),
		ExpiresAt:     window.End.UTC(),
		BasePoints:    task.BasePoints,
		VIPMultiplier: multiplier,
		FinalReward:   task.BasePoints.Mul(multiplier),
		UpdatedAt:     assignedAt.UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks if the Assignment has valid data.
func (a *Assignment) Validate() error {
	if a.ID == uuid.Nil {
		return ErrEmptyAssignmentID
	}
	if a.UserID == uuid.Nil {
		return ErrEmptyAssignmentUserID
	}
	if a.TaskID == uuid.Nil {
		return ErrEmptyAssignmentTaskID
	}
	if !a.Status.IsValid() {
		return ErrInvalidAssignmentStatus
	}
	if !a.ExpiresAt.After(a.AssignedAt) {
		return ErrAssignmentWindow
	}
	return nil
}

// IsStale reports whether a pending assignment has passed its expiry.
func (a *Assignment) IsStale(now time.Time) bool {
	return a.Status == AssignmentStatusPending && a.ExpiresAt.Before(now)
}

// CompletionWindow is the half-open interval [AssignedAt, ExpiresAt) in
// which the assignment may be completed.
func (a *Assignment) CompletionWindow() DayWindow {
	return DayWindow{Start: a.AssignedAt, End: a.ExpiresAt}
}

// Complete transitions a pending assignment to completed.
// Returns ErrAssignmentNotPending, ErrCompletedBeforeAssigned or
// ErrAssignmentExpired when the transition is not allowed.
func (a *Assignment) Complete(at time.Time) error {
	if a.Status != AssignmentStatusPending {
		return ErrAssignmentNotPending
	}
	if !a.CompletionWindow().Contains(at) {
		if at.Before(a.AssignedAt) {
			return ErrCompletedBeforeAssigned
		}
		return ErrAssignmentExpired
	}
	completedAt := at.UTC()
	a.Status = AssignmentStatusCompleted
	a.CompletedAt = &completedAt
	a.UpdatedAt = completedAt
	return nil
}
