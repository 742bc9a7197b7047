package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/store"
)

// memDB is an in-memory database shared by the fake stores. WithinTx
// serializes transactions and restores a snapshot when fn fails, which gives
// the fakes the isolation the Postgres stores get from locks.
type memDB struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users       map[uuid.UUID]domain.User
	memberships map[uuid.UUID]domain.Membership
	bindings    map[uuid.UUID]domain.UserMembership
	tasks       map[uuid.UUID]domain.Task
	assignments map[uuid.UUID]domain.Assignment
	accounts    map[uuid.UUID]domain.Account
	settlements map[uuid.UUID]domain.ReferralSettlement

	// failures injects an error into the named store operation.
	failures map[string]error
	// afterCandidates runs after ListCandidates has read the catalog, outside
	// any lock, so tests can line concurrent runs up on the same candidates.
	afterCandidates func()
}

type memSnapshot struct {
	users       map[uuid.UUID]domain.User
	memberships map[uuid.UUID]domain.Membership
	bindings    map[uuid.UUID]domain.UserMembership
	tasks       map[uuid.UUID]domain.Task
	assignments map[uuid.UUID]domain.Assignment
	accounts    map[uuid.UUID]domain.Account
	settlements map[uuid.UUID]domain.ReferralSettlement
}

func newMemDB() *memDB {
	return &memDB{
		users:       map[uuid.UUID]domain.User{},
		memberships: map[uuid.UUID]domain.Membership{},
		bindings:    map[uuid.UUID]domain.UserMembership{},
		tasks:       map[uuid.UUID]domain.Task{},
		assignments: map[uuid.UUID]domain.Assignment{},
		accounts:    map[uuid.UUID]domain.Account{},
		settlements: map[uuid.UUID]domain.ReferralSettlement{},
		failures:    map[string]error{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return memSnapshot{
		users:       copyMap(db.users),
		memberships: copyMap(db.memberships),
		bindings:    copyMap(db.bindings),
		tasks:       copyMap(db.tasks),
		assignments: copyMap(db.assignments),
		accounts:    copyMap(db.accounts),
		settlements: copyMap(db.settlements),
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = s.users
	db.memberships = s.memberships
	db.bindings = s.bindings
	db.tasks = s.tasks
	db.assignments = s.assignments
	db.accounts = s.accounts
	db.settlements = s.settlements
}

// WithinTx implements store.Transactor.
func (db *memDB) WithinTx(ctx context.Context, fn store.TxFn) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	if err := fn(ctx, nil); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func (db *memDB) fail(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures[op] = err
}

// failure must be called with mu held.
func (db *memDB) failure(op string) error {
	return db.failures[op]
}

// seeding helpers

func (db *memDB) addUser(referredBy *uuid.UUID) *domain.User {
	u := domain.User{ID: uuid.New(), ReferredBy: referredBy, CreatedAt: time.Now().UTC()}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[u.ID] = u
	return &u
}

func (db *memDB) addMembership(m *domain.Membership) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.memberships[m.ID] = *m
}

func (db *memDB) addBinding(b *domain.UserMembership) {
	db.mu.Lock()
	defer db.mu.Unlock()
	stored := *b
	stored.Membership = nil
	db.bindings[b.ID] = stored
}

func (db *memDB) addTask(t *domain.Task) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tasks[t.ID] = *t
}

func (db *memDB) addAssignment(a *domain.Assignment) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.assignments[a.ID] = *a
}

func (db *memDB) task(id uuid.UUID) domain.Task {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tasks[id]
}

func (db *memDB) assignment(id uuid.UUID) domain.Assignment {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.assignments[id]
}

func (db *memDB) binding(id uuid.UUID) domain.UserMembership {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.bindings[id]
}

func (db *memDB) account(userID uuid.UUID) (domain.Account, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	a, ok := db.accounts[userID]
	return a, ok
}

func (db *memDB) userAssignments(userID uuid.UUID) []domain.Assignment {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.Assignment
	for _, a := range db.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

func (db *memDB) assignmentCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.assignments)
}

func (db *memDB) joined(b domain.UserMembership) *domain.UserMembership {
	m, ok := db.memberships[b.MembershipID]
	if ok {
		b.Membership = &m
	}
	return &b
}

// fakeUserStore implements store.UserStore.
type fakeUserStore struct{ db *memDB }

var _ store.UserStore = (*fakeUserStore)(nil)

func (s *fakeUserStore) WithTx(*sql.Tx) store.UserStore { return s }

func (s *fakeUserStore) Create(_ context.Context, u *domain.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.failure("users.Create"); err != nil {
		return err
	}
	if _, ok := s.db.users[u.ID]; ok {
		return store.ErrUserExists
	}
	s.db.users[u.ID] = *u
	return nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &u, nil
}

// fakeMembershipStore implements store.MembershipStore.
type fakeMembershipStore struct{ db *memDB }

var _ store.MembershipStore = (*fakeMembershipStore)(nil)

func (s *fakeMembershipStore) WithTx(*sql.Tx) store.MembershipStore { return s }

func (s *fakeMembershipStore) Create(_ context.Context, m *domain.Membership) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.memberships[m.ID] = *m
	return nil
}

func (s *fakeMembershipStore) Update(_ context.Context, m *domain.Membership) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.memberships[m.ID]; !ok {
		return store.ErrMembershipNotFound
	}
	s.db.memberships[m.ID] = *m
	return nil
}

func (s *fakeMembershipStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Membership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.memberships[id]
	if !ok {
		return nil, store.ErrMembershipNotFound
	}
	return &m, nil
}

func (s *fakeMembershipStore) CreateBinding(_ context.Context, b *domain.UserMembership) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.bindings {
		if existing.IsActive && b.IsActive &&
			existing.UserID == b.UserID && existing.MembershipID == b.MembershipID {
			return store.ErrDuplicate
		}
	}
	stored := *b
	stored.Membership = nil
	s.db.bindings[b.ID] = stored
	return nil
}

func (s *fakeMembershipStore) DeactivateBindings(_ context.Context, userID, membershipID uuid.UUID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, b := range s.db.bindings {
		if b.UserID == userID && b.MembershipID == membershipID && b.IsActive {
			b.IsActive = false
			s.db.bindings[id] = b
			n++
		}
	}
	return n, nil
}

func (s *fakeMembershipStore) ListBindings(_ context.Context, userID uuid.UUID) ([]*domain.UserMembership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.failure("memberships.ListBindings"); err != nil {
		return nil, err
	}
	var out []*domain.UserMembership
	for _, b := range s.db.bindings {
		if b.UserID == userID {
			out = append(out, s.db.joined(b))
		}
	}
	return out, nil
}

func (s *fakeMembershipStore) ListEffectiveBindings(_ context.Context, now time.Time) ([]*domain.UserMembership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.failure("memberships.ListEffectiveBindings"); err != nil {
		return nil, err
	}
	var out []*domain.UserMembership
	for _, b := range s.db.bindings {
		joined := s.db.joined(b)
		if joined.Membership != nil && joined.IsEffectiveAt(now) {
			out = append(out, joined)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Membership.PriorityLevel != out[j].Membership.PriorityLevel {
			return out[i].Membership.PriorityLevel > out[j].Membership.PriorityLevel
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}

func (s *fakeMembershipStore) IncrementDailyCompleted(_ context.Context, userID, membershipID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for id, b := range s.db.bindings {
		if b.UserID == userID && b.MembershipID == membershipID && b.IsActive {
			b.DailyTasksCompleted++
			s.db.bindings[id] = b
			return nil
		}
	}
	return store.ErrBindingNotFound
}

func (s *fakeMembershipStore) ResetDailyCounters(_ context.Context, today time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.failure("memberships.ResetDailyCounters"); err != nil {
		return 0, err
	}
	var n int64
	for id, b := range s.db.bindings {
		if b.LastResetDate != nil && b.LastResetDate.Equal(today) {
			continue
		}
		date := today
		b.LastResetDate = &date
		b.DailyTasksCompleted = 0
		s.db.bindings[id] = b
		n++
	}
	return n, nil
}

// fakeTaskStore implements store.TaskStore.
type fakeTaskStore struct{ db *memDB }

var _ store.TaskStore = (*fakeTaskStore)(nil)

func (s *fakeTaskStore) WithTx(*sql.Tx) store.TaskStore { return s }

func (s *fakeTaskStore) Create(_ context.Context, t *domain.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.tasks[t.ID] = *t
	return nil
}

func (s *fakeTaskStore) Update(_ context.Context, t *domain.Task) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	existing, ok := s.db.tasks[t.ID]
	if !ok {
		return store.ErrTaskNotFound
	}
	updated := *t
	updated.TaskCompletionCount = existing.TaskCompletionCount
	updated.TaskDistributionCount = existing.TaskDistributionCount
	s.db.tasks[t.ID] = updated
	return nil
}

func (s *fakeTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return &t, nil
}

func (s *fakeTaskStore) ListCandidates(_ context.Context, userID uuid.UUID, limit int) ([]*domain.Task, error) {
	out, err := s.listCandidates(userID, limit)
	if err == nil && s.db.afterCandidates != nil {
		s.db.afterCandidates()
	}
	return out, err
}

func (s *fakeTaskStore) listCandidates(userID uuid.UUID, limit int) ([]*domain.Task, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.failure("tasks.ListCandidates"); err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]bool{}
	for _, a := range s.db.assignments {
		if a.UserID == userID {
			seen[a.TaskID] = true
		}
	}
	var out []*domain.Task
	for _, t := range s.db.tasks {
		if t.IsDistributable() && !seen[t.ID] {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return domain.CandidateLess(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeTaskStore) ClaimDistribution(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.failure("tasks.ClaimDistribution"); err != nil {
		return nil, err
	}
	t, ok := s.db.tasks[id]
	if !ok || !t.IsDistributable() {
		return nil, store.ErrTaskUnavailable
	}
	t.TaskDistributionCount++
	s.db.tasks[id] = t
	return &t, nil
}

func (s *fakeTaskStore) IncrementCompletion(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	t.TaskCompletionCount++
	s.db.tasks[id] = t
	return nil
}

// fakeAssignmentStore implements store.AssignmentStore.
type fakeAssignmentStore struct{ db *memDB }

var _ store.AssignmentStore = (*fakeAssignmentStore)(nil)

func (s *fakeAssignmentStore) WithTx(*sql.Tx) store.AssignmentStore { return s }

// LockUser is a no-op: fake transactions are already serialized.
func (s *fakeAssignmentStore) LockUser(context.Context, uuid.UUID) error { return nil }

func (s *fakeAssignmentStore) CountPendingInWindow(_ context.Context, userID uuid.UUID, window domain.DayWindow) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, a := range s.db.assignments {
		if a.UserID == userID && a.Status == domain.AssignmentStatusPending && window.Contains(a.AssignedAt) {
			n++
		}
	}
	return n, nil
}

func (s *fakeAssignmentStore) Create(_ context.Context, a *domain.Assignment) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.failure("assignments.Create"); err != nil {
		return err
	}
	for _, existing := range s.db.assignments {
		if existing.UserID == a.UserID && existing.TaskID == a.TaskID {
			return store.ErrAssignmentExists
		}
	}
	s.db.assignments[a.ID] = *a
	return nil
}

func (s *fakeAssignmentStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Assignment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.assignments[id]
	if !ok {
		return nil, store.ErrAssignmentNotFound
	}
	return &a, nil
}

func (s *fakeAssignmentStore) MarkCompleted(_ context.Context, id uuid.UUID, completedAt time.Time) (*domain.Assignment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.assignments[id]
	if !ok || a.Status != domain.AssignmentStatusPending || !a.CompletionWindow().Contains(completedAt) {
		return nil, store.ErrUpdateFailed
	}
	at := completedAt.UTC()
	a.Status = domain.AssignmentStatusCompleted
	a.CompletedAt = &at
	a.UpdatedAt = at
	s.db.assignments[id] = a
	return &a, nil
}

func (s *fakeAssignmentStore) ListByUser(_ context.Context, userID uuid.UUID, status *domain.AssignmentStatus) ([]*domain.Assignment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []*domain.Assignment{}
	for _, a := range s.db.assignments {
		if a.UserID != userID || (status != nil && a.Status != *status) {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.After(out[j].AssignedAt) })
	return out, nil
}

func (s *fakeAssignmentStore) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, a := range s.db.assignments {
		if a.IsStale(now) {
			a.Status = domain.AssignmentStatusExpired
			a.UpdatedAt = now
			s.db.assignments[id] = a
			n++
		}
	}
	return n, nil
}

// fakeAccountStore implements store.AccountStore.
type fakeAccountStore struct{ db *memDB }

var _ store.AccountStore = (*fakeAccountStore)(nil)

func (s *fakeAccountStore) WithTx(*sql.Tx) store.AccountStore { return s }

func (s *fakeAccountStore) Get(_ context.Context, userID uuid.UUID) (*domain.Account, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return &a, nil
}

func (s *fakeAccountStore) Credit(_ context.Context, c domain.AccountCredit) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.failure("accounts.Credit"); err != nil {
		return err
	}
	a, ok := s.db.accounts[c.UserID]
	if !ok {
		a = *domain.NewAccount(c.UserID)
	}
	a.Apply(c, time.Now())
	s.db.accounts[c.UserID] = a
	return nil
}

func (s *fakeAccountStore) CreateReferralSettlement(_ context.Context, rs *domain.ReferralSettlement) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.settlements[rs.ReferredUserID]; ok {
		return false, nil
	}
	s.db.settlements[rs.ReferredUserID] = *rs
	return true, nil
}

// fakeStores bundles the fakes over one memDB.
type fakeStores struct {
	db          *memDB
	users       *fakeUserStore
	memberships *fakeMembershipStore
	tasks       *fakeTaskStore
	assignments *fakeAssignmentStore
	accounts    *fakeAccountStore
}

func newFakeStores() *fakeStores {
	db := newMemDB()
	return &fakeStores{
		db:          db,
		users:       &fakeUserStore{db: db},
		memberships: &fakeMembershipStore{db: db},
		tasks:       &fakeTaskStore{db: db},
		assignments: &fakeAssignmentStore{db: db},
		accounts:    &fakeAccountStore{db: db},
	}
}
