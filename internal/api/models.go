package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/shopspring/decimal"
)

// CompleteAssignmentRequest is the optional body of the completion endpoint.
// A missing CompletedAt means now.
type CompleteAssignmentRequest struct {
	CompletedAt *time.Time `json:"completed_at"`
}

// listAssignmentsQuery holds the query parameters of the assignment listing.
type listAssignmentsQuery struct {
	Status string `validate:"omitempty,oneof=pending completed expired"`
}

// AssignmentResponse is the API form of an assignment.
type AssignmentResponse struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	TaskID        uuid.UUID       `json:"task_id"`
	MembershipID  *uuid.UUID      `json:"membership_id,omitempty"`
	Status        string          `json:"status"`
	AssignedAt    time.Time       `json:"assigned_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	BasePoints    decimal.Decimal `json:"base_points"`
	VIPMultiplier decimal.Decimal `json:"vip_multiplier"`
	FinalReward   decimal.Decimal `json:"final_reward"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// AssignmentListResponse wraps a list of assignments.
type AssignmentListResponse struct {
	Assignments []AssignmentResponse `json:"assignments"`
	Count       int                  `json:"count"`
}

// EligibilityResponse is the API form of the resolver output.
type EligibilityResponse struct {
	UserID           uuid.UUID       `json:"user_id"`
	MembershipID     uuid.UUID       `json:"membership_id"`
	MembershipName   string          `json:"membership_name"`
	TasksPerDay      int             `json:"tasks_per_day"`
	RewardMultiplier decimal.Decimal `json:"reward_multiplier"`
	AssignedToday    int             `json:"assigned_today"`
	Remaining        int             `json:"remaining"`
	AssignedTaskIDs  []uuid.UUID     `json:"assigned_task_ids"`
	WindowStart      time.Time       `json:"window_start"`
	WindowEnd        time.Time       `json:"window_end"`
}

func assignmentToResponse(a *domain.Assignment) AssignmentResponse {
	resp := AssignmentResponse{
		ID:            a.ID,
		UserID:        a.UserID,
		TaskID:        a.TaskID,
		Status:        string(a.Status),
		AssignedAt:    a.AssignedAt,
		ExpiresAt:     a.ExpiresAt,
		BasePoints:    a.BasePoints,
		VIPMultiplier: a.VIPMultiplier,
		FinalReward:   a.FinalReward,
		CompletedAt:   a.CompletedAt,
	}
	if a.MembershipID != uuid.Nil {
		id := a.MembershipID
		resp.MembershipID = &id
	}
	return resp
}

func assignmentsToResponse(list []*domain.Assignment) AssignmentListResponse {
	out := make([]AssignmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, assignmentToResponse(a))
	}
	return AssignmentListResponse{Assignments: out, Count: len(out)}
}
