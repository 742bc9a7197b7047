package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness wires every service over one set of fake stores and a settable clock.
type harness struct {
	stores  *fakeStores
	emitter *recordingEmitter

	mu  sync.Mutex
	now time.Time

	resolver     EligibilityResolver
	engine       DistributionEngine
	sweeper      ResetSweeper
	settlement   SettlementService
	catalog      CatalogService
	registration RegistrationService
}

func newHarness(t *testing.T, opts ...func(*DistributionOptions)) *harness {
	t.Helper()
	h := &harness{
		stores:  newFakeStores(),
		emitter: &recordingEmitter{},
		now:     testNow,
	}
	s, log := h.stores, discardLogger()

	var err error
	h.resolver, err = NewEligibilityResolver(s.memberships, s.assignments, time.UTC, h.clock, log)
	require.NoError(t, err)

	distOpts := DistributionOptions{Location: time.UTC, Concurrency: 4, MaxClaimRounds: 3, Now: h.clock}
	for _, opt := range opts {
		opt(&distOpts)
	}
	h.engine, err = NewDistributionEngine(s.db, s.memberships, s.tasks, s.assignments, h.resolver, distOpts, log)
	require.NoError(t, err)

	h.sweeper, err = NewResetSweeper(s.db, s.memberships, s.assignments, time.UTC, h.clock, log)
	require.NoError(t, err)

	bonuses := ReferralBonuses{Direct: decimal.NewFromInt(10), Indirect: decimal.NewFromInt(5)}
	h.settlement, err = NewSettlementService(s.db, s.users, s.memberships, s.tasks, s.assignments, s.accounts,
		bonuses, h.emitter, h.clock, log)
	require.NoError(t, err)

	h.catalog, err = NewCatalogService(s.db, s.users, s.memberships, s.tasks, h.clock, log)
	require.NoError(t, err)

	h.registration, err = NewRegistrationService(s.db, s.users, s.memberships, s.accounts,
		bonuses, h.emitter, h.clock, log)
	require.NoError(t, err)

	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) setNow(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = t
}

func (h *harness) membership(t *testing.T, name string, tasksPerDay, priority int, multiplier string) *domain.Membership {
	t.Helper()
	m, err := domain.NewMembership(name, tasksPerDay, decimal.RequireFromString(multiplier), priority)
	require.NoError(t, err)
	h.stores.db.addMembership(m)
	return m
}

// member creates a user bound to m since the day before testNow.
func (h *harness) member(t *testing.T, m *domain.Membership) (*domain.User, *domain.UserMembership) {
	t.Helper()
	u := h.stores.db.addUser(nil)
	b := h.bind(t, u.ID, m, testNow.Add(-24*time.Hour), nil)
	return u, b
}

func (h *harness) bind(
	t *testing.T,
	userID uuid.UUID,
	m *domain.Membership,
	startedAt time.Time,
	expiresAt *time.Time,
) *domain.UserMembership {
	t.Helper()
	b, err := domain.NewUserMembership(userID, m.ID, startedAt, expiresAt)
	require.NoError(t, err)
	h.stores.db.addBinding(b)
	return b
}

func (h *harness) task(
	t *testing.T,
	title string,
	priority domain.TaskPriority,
	threshold int,
	basePoints string,
	createdAt time.Time,
) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(title, priority, threshold, decimal.RequireFromString(basePoints), false)
	require.NoError(t, err)
	task.CreatedAt = createdAt
	h.stores.db.addTask(task)
	return task
}

// recordingEmitter implements events.EventEmitter for tests.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (e *recordingEmitter) EmitEvent(_ context.Context, event *events.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return e.err
}

func (e *recordingEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

func (e *recordingEmitter) last() *events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		return nil
	}
	return e.events[len(e.events)-1]
}

func ptr[T any](v T) *T {
	return &v
}
