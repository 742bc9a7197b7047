package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskPriority orders tasks for distribution: urgent > high > medium > low.
type TaskPriority string

// Possible task priority values
const (
	TaskPriorityUrgent TaskPriority = "urgent"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityLow    TaskPriority = "low"
)

// Rank returns the sort rank of the priority; lower ranks are served first.
// Unknown priorities sort after low.
func (p TaskPriority) Rank() int {
	switch p {
	case TaskPriorityUrgent:
		return 0
	case TaskPriorityHigh:
		return 1
	case TaskPriorityMedium:
		return 2
	case TaskPriorityLow:
		return 3
	default:
		return 4
	}
}

// IsValid reports whether p is a known priority.
func (p TaskPriority) IsValid() bool {
	return p.Rank() < 4
}

// TaskStatus is the editorial status of a task, independent of IsActive.
type TaskStatus string

// Possible task status values
const (
	TaskStatusActive   TaskStatus = "active"
	TaskStatusPaused   TaskStatus = "paused"
	TaskStatusArchived TaskStatus = "archived"
)

// IsValid reports whether s is a known task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusActive, TaskStatusPaused, TaskStatusArchived:
		return true
	default:
		return false
	}
}

// Common validation errors for Task
var (
	ErrEmptyTaskID         = errors.New("task ID cannot be empty")
	ErrEmptyTaskTitle      = errors.New("task title cannot be empty")
	ErrNegativeThreshold   = errors.New("threshold value cannot be negative")
	ErrNegativeBasePoints  = errors.New("base points cannot be negative")
	ErrNegativeTaskCounter = errors.New("task counters cannot be negative")
)

// Task is a micro-job that can be handed to members. The threshold caps both
// how many times it may be distributed and how many completions it accepts;
// the two counters are lifetime values and are never reset.
type Task struct {
	ID                    uuid.UUID       `json:"id"`
	Title                 string          `json:"title"`
	Description           string          `json:"description,omitempty"`
	Priority              TaskPriority    `json:"priority"`
	ThresholdValue        int             `json:"threshold_value"`
	TaskCompletionCount   int             `json:"task_completion_count"`
	TaskDistributionCount int             `json:"task_distribution_count"`
	IsActive              bool            `json:"is_active"`
	TaskStatus            TaskStatus      `json:"task_status"`
	RequiresPhoto         bool            `json:"requires_photo"`
	BasePoints            decimal.Decimal `json:"base_points"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// NewTask creates a new active task with zeroed counters.
func NewTask(
	title string,
	priority TaskPriority,
	threshold int,
	basePoints decimal.Decimal,
	requiresPhoto bool,
) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:             uuid.New(),
		Title:          title,
		Priority:       priority,
		ThresholdValue: threshold,
		IsActive:       true,
		TaskStatus:     TaskStatusActive,
		RequiresPhoto:  requiresPhoto,
		BasePoints:     basePoints,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.Title == "" {
		return ErrEmptyTaskTitle
	}
	if !t.Priority.IsValid() {
		return ErrInvalidTaskPriority
	}
	if !t.TaskStatus.IsValid() {
		return ErrInvalidTaskStatus
	}
	if t.ThresholdValue < 0 {
		return ErrNegativeThreshold
	}
	if t.BasePoints.IsNegative() {
		return ErrNegativeBasePoints
	}
	if t.TaskCompletionCount < 0 || t.TaskDistributionCount < 0 {
		return ErrNegativeTaskCounter
	}
	return nil
}

// IsDistributable is the single eligibility predicate for handing a task out:
// the task is active, its status is active, and both lifetime counters are
// strictly below the threshold. A completion count equal to the threshold
// means the task is exhausted.
func (t *Task) IsDistributable() bool {
	return t.IsActive &&
		t.TaskStatus == TaskStatusActive &&
		t.TaskDistributionCount < t.ThresholdValue &&
		t.TaskCompletionCount < t.ThresholdValue
}

// CandidateLess orders tasks for distribution: priority rank first, then
// oldest CreatedAt, then ID so that the order is total.
func CandidateLess(a, b *Task) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}
