package service

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/shopspring/decimal"
)

// CreateMembershipCommand creates a membership tier.
type CreateMembershipCommand struct {
	Name             string          `json:"name"              validate:"required,max=100"`
	TasksPerDay      int             `json:"tasks_per_day"     validate:"gte=0,lte=1000"`
	RewardMultiplier decimal.Decimal `json:"reward_multiplier" validate:"gte=0"`
	PriorityLevel    int             `json:"priority_level"`
	IsActive         *bool           `json:"is_active"`
}

// UpdateMembershipCommand replaces a membership tier's editable fields.
type UpdateMembershipCommand struct {
	ID               uuid.UUID       `json:"-"`
	Name             string          `json:"name"              validate:"required,max=100"`
	TasksPerDay      int             `json:"tasks_per_day"     validate:"gte=0,lte=1000"`
	RewardMultiplier decimal.Decimal `json:"reward_multiplier" validate:"gte=0"`
	PriorityLevel    int             `json:"priority_level"`
	IsActive         bool            `json:"is_active"`
}

// CreateTaskCommand creates a task with zeroed counters.
type CreateTaskCommand struct {
	Title          string              `json:"title"           validate:"required,max=200"`
	Description    string              `json:"description"     validate:"max=2000"`
	Priority       domain.TaskPriority `json:"priority"        validate:"required,oneof=urgent high medium low"`
	ThresholdValue int                 `json:"threshold_value" validate:"gte=0"`
	BasePoints     decimal.Decimal     `json:"base_points"     validate:"gte=0"`
	RequiresPhoto  bool                `json:"requires_photo"`
}

// UpdateTaskCommand replaces a task's editable fields. The lifetime counters
// cannot be edited.
type UpdateTaskCommand struct {
	ID             uuid.UUID           `json:"-"`
	Title          string              `json:"title"           validate:"required,max=200"`
	Description    string              `json:"description"     validate:"max=2000"`
	Priority       domain.TaskPriority `json:"priority"        validate:"required,oneof=urgent high medium low"`
	ThresholdValue int                 `json:"threshold_value" validate:"gte=0"`
	BasePoints     decimal.Decimal     `json:"base_points"     validate:"gte=0"`
	RequiresPhoto  bool                `json:"requires_photo"`
	IsActive       bool                `json:"is_active"`
	TaskStatus     domain.TaskStatus   `json:"task_status"     validate:"required,oneof=active paused archived"`
}

// BindMembershipCommand binds a user to a membership tier. A nil StartedAt
// means now; a nil ExpiresAt never expires.
type BindMembershipCommand struct {
	UserID       uuid.UUID  `json:"-"`
	MembershipID uuid.UUID  `json:"membership_id" validate:"required"`
	StartedAt    *time.Time `json:"started_at"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// RegisterUserCommand registers a user. A nil UserID generates one.
// MembershipID optionally binds the new user to a tier straight away.
type RegisterUserCommand struct {
	UserID              uuid.UUID  `json:"user_id"`
	ReferredBy          *uuid.UUID `json:"referred_by"`
	MembershipID        *uuid.UUID `json:"membership_id"`
	MembershipExpiresAt *time.Time `json:"membership_expires_at"`
}

var commandValidator = newCommandValidator()

func newCommandValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	return v
}

// decimalValue lets numeric tags such as gte apply to decimal fields.
func decimalValue(field reflect.Value) any {
	d, ok := field.Interface().(decimal.Decimal)
	if !ok {
		return nil
	}
	f, _ := d.Float64()
	return f
}

// validateCommand runs the struct tags of cmd and wraps any failure in
// ErrInvalidCommand.
func validateCommand(cmd any) error {
	if err := commandValidator.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return nil
}

// invalidCommand wraps a domain validation failure in ErrInvalidCommand.
func invalidCommand(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
}
