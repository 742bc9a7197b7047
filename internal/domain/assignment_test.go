package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestNewAssignment(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	window := DayWindowAt(now, time.UTC)
	task := &Task{ID: uuid.New(), BasePoints: decimal.RequireFromString("10.50")}
	membership := &Membership{ID: uuid.New(), RewardMultiplier: decimal.RequireFromString("1.5")}
	userID := uuid.New()

	a, err := NewAssignment(userID, task, membership, now, window)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if a.Status != AssignmentStatusPending {
		t.Errorf("Expected status %s, got %s", AssignmentStatusPending, a.Status)
	}
	if !a.ExpiresAt.Equal(window.End) {
		t.Errorf("Expected expiry at %v, got %v", window.End, a.ExpiresAt)
	}
	if !a.FinalReward.Equal(decimal.RequireFromString("15.75")) {
		t.Errorf("Expected final reward 15.75, got %s", a.FinalReward)
	}
	if a.MembershipID != membership.ID {
		t.Errorf("Expected membership %s, got %s", membership.ID, a.MembershipID)
	}

	if _, err := NewAssignment(uuid.Nil, task, membership, now, window); err != ErrEmptyAssignmentUserID {
		t.Errorf("Expected error %v, got %v", ErrEmptyAssignmentUserID, err)
	}
	if _, err := NewAssignment(userID, nil, membership, now, window); err != ErrEmptyAssignmentTaskID {
		t.Errorf("Expected error %v, got %v", ErrEmptyAssignmentTaskID, err)
	}
	if _, err := NewAssignment(userID, task, membership, window.End, window); err != ErrAssignmentWindow {
		t.Errorf("Expected error %v, got %v", ErrAssignmentWindow, err)
	}
}

func TestNewAssignmentWithoutMembershipUsesUnitMultiplier(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	task := &Task{ID: uuid.New(), BasePoints: decimal.NewFromInt(4)}

	a, err := NewAssignment(uuid.New(), task, nil, now, DayWindowAt(now, time.UTC))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !a.FinalReward.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Expected final reward 4, got %s", a.FinalReward)
	}
}

func TestAssignmentComplete(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	window := DayWindowAt(now, time.UTC)
	newPending := func() *Assignment {
		a, err := NewAssignment(uuid.New(), &Task{ID: uuid.New(), BasePoints: decimal.NewFromInt(1)}, nil, now, window)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		return a
	}

	a := newPending()
	if err := a.Complete(now.Add(time.Hour)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if a.Status != AssignmentStatusCompleted || a.CompletedAt == nil {
		t.Errorf("Expected completed assignment with timestamp, got %s", a.Status)
	}
	if err := a.Complete(now.Add(2 * time.Hour)); err != ErrAssignmentNotPending {
		t.Errorf("Expected error %v, got %v", ErrAssignmentNotPending, err)
	}

	late := newPending()
	if err := late.Complete(window.End); err != ErrAssignmentExpired {
		t.Errorf("Expected error %v, got %v", ErrAssignmentExpired, err)
	}
	if !late.IsStale(window.End.Add(time.Second)) {
		t.Error("Expected pending assignment past expiry to be stale")
	}

	early := newPending()
	if err := early.Complete(now.Add(-time.Minute)); err != ErrCompletedBeforeAssigned {
		t.Errorf("Expected error %v, got %v", ErrCompletedBeforeAssigned, err)
	}
	if early.Status != AssignmentStatusPending || early.CompletedAt != nil {
		t.Errorf("Expected rejected completion to leave assignment pending, got %s", early.Status)
	}

	// The instant of assignment is inside the window.
	exact := newPending()
	if err := exact.Complete(now); err != nil {
		t.Errorf("Expected completion at assignment time to succeed, got %v", err)
	}
}

func TestAccountApply(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	acct := NewAccount(userID)
	acct.Apply(RewardCredit(&Assignment{UserID: userID, FinalReward: decimal.NewFromInt(6)}), time.Now())
	acct.Apply(BonusCredit(userID, decimal.NewFromInt(2)), time.Now())

	if !acct.Points.Equal(decimal.NewFromInt(6)) || !acct.EarnedTotal.Equal(decimal.NewFromInt(6)) {
		t.Errorf("Expected points and earned total of 6, got %s and %s", acct.Points, acct.EarnedTotal)
	}
	if !acct.Balance.Equal(decimal.NewFromInt(2)) || !acct.BonusTotal.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected balance and bonus total of 2, got %s and %s", acct.Balance, acct.BonusTotal)
	}
}
