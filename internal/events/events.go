package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types emitted by the services.
const (
	TypeUserRegistered      = "user.registered"
	TypeAssignmentCompleted = "assignment.completed"
	TypeReferralSettled     = "referral.settled"
)

// Event is a domain event with a JSON payload.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType string, payload any) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// UserRegisteredPayload is the payload of TypeUserRegistered.
type UserRegisteredPayload struct {
	UserID     uuid.UUID  `json:"user_id"`
	ReferredBy *uuid.UUID `json:"referred_by,omitempty"`
}

// AssignmentCompletedPayload is the payload of TypeAssignmentCompleted.
type AssignmentCompletedPayload struct {
	AssignmentID uuid.UUID       `json:"assignment_id"`
	UserID       uuid.UUID       `json:"user_id"`
	TaskID       uuid.UUID       `json:"task_id"`
	FinalReward  decimal.Decimal `json:"final_reward"`
	CompletedAt  time.Time       `json:"completed_at"`
}

// ReferralSettledPayload is the payload of TypeReferralSettled.
type ReferralSettledPayload struct {
	ReferredUserID     uuid.UUID       `json:"referred_user_id"`
	DirectReferrerID   *uuid.UUID      `json:"direct_referrer_id,omitempty"`
	IndirectReferrerID *uuid.UUID      `json:"indirect_referrer_id,omitempty"`
	DirectBonus        decimal.Decimal `json:"direct_bonus"`
	IndirectBonus      decimal.Decimal `json:"indirect_bonus"`
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *Event) error { return nil }
