package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/service"
	"github.com/stretchr/testify/require"
)

var (
	fixedUserID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	fixedTaskID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	fixedTime   = time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serve routes a single request through a chi router with handler mounted at
// pattern, so that URL parameters resolve as in production.
func serve(t *testing.T, method, pattern, path string, body any, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	r := chi.NewRouter()
	r.MethodFunc(method, pattern, handler)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), "body: %s", w.Body.String())
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeResponse(t, w, &body)
	msg, _ := body["error"].(string)
	return msg
}

// MockDistributionEngine is a mock implementation of service.DistributionEngine
type MockDistributionEngine struct {
	AssignDailyTasksFn  func(ctx context.Context) (*service.DistributionSummary, error)
	AssignTasksToUserFn func(ctx context.Context, userID uuid.UUID) *service.AssignResult
}

func (m *MockDistributionEngine) AssignDailyTasks(ctx context.Context) (*service.DistributionSummary, error) {
	if m.AssignDailyTasksFn != nil {
		return m.AssignDailyTasksFn(ctx)
	}
	return &service.DistributionSummary{}, nil
}

func (m *MockDistributionEngine) AssignTasksToUser(ctx context.Context, userID uuid.UUID) *service.AssignResult {
	if m.AssignTasksToUserFn != nil {
		return m.AssignTasksToUserFn(ctx, userID)
	}
	return &service.AssignResult{UserID: userID, Success: true}
}

// MockResetSweeper is a mock implementation of service.ResetSweeper
type MockResetSweeper struct {
	ResetDailyStateFn func(ctx context.Context) (*service.SweepResult, error)
}

func (m *MockResetSweeper) ResetDailyState(ctx context.Context) (*service.SweepResult, error) {
	if m.ResetDailyStateFn != nil {
		return m.ResetDailyStateFn(ctx)
	}
	return &service.SweepResult{}, nil
}

// MockEligibilityResolver is a mock implementation of service.EligibilityResolver
type MockEligibilityResolver struct {
	ResolveFn func(ctx context.Context, userID uuid.UUID) (*service.Eligibility, error)
}

func (m *MockEligibilityResolver) Resolve(ctx context.Context, userID uuid.UUID) (*service.Eligibility, error) {
	if m.ResolveFn != nil {
		return m.ResolveFn(ctx, userID)
	}
	return nil, service.ErrNoActiveMembership
}

// MockSettlementService is a mock implementation of service.SettlementService
type MockSettlementService struct {
	CompleteAssignmentFn   func(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Assignment, error)
	SettleSignupReferralFn func(ctx context.Context, userID uuid.UUID) (*domain.ReferralSettlement, error)
	GetAccountFn           func(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	ListAssignmentsFn      func(ctx context.Context, userID uuid.UUID, status *domain.AssignmentStatus) ([]*domain.Assignment, error)
}

func (m *MockSettlementService) CompleteAssignment(
	ctx context.Context,
	id uuid.UUID,
	at time.Time,
) (*domain.Assignment, error) {
	if m.CompleteAssignmentFn != nil {
		return m.CompleteAssignmentFn(ctx, id, at)
	}
	return nil, nil
}

func (m *MockSettlementService) SettleSignupReferral(
	ctx context.Context,
	userID uuid.UUID,
) (*domain.ReferralSettlement, error) {
	if m.SettleSignupReferralFn != nil {
		return m.SettleSignupReferralFn(ctx, userID)
	}
	return nil, nil
}

func (m *MockSettlementService) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	if m.GetAccountFn != nil {
		return m.GetAccountFn(ctx, userID)
	}
	return domain.NewAccount(userID), nil
}

func (m *MockSettlementService) ListAssignments(
	ctx context.Context,
	userID uuid.UUID,
	status *domain.AssignmentStatus,
) ([]*domain.Assignment, error) {
	if m.ListAssignmentsFn != nil {
		return m.ListAssignmentsFn(ctx, userID, status)
	}
	return nil, nil
}

// MockCatalogService is a mock implementation of service.CatalogService
type MockCatalogService struct {
	CreateMembershipFn func(ctx context.Context, cmd service.CreateMembershipCommand) (*domain.Membership, error)
	UpdateMembershipFn func(ctx context.Context, cmd service.UpdateMembershipCommand) (*domain.Membership, error)
	CreateTaskFn       func(ctx context.Context, cmd service.CreateTaskCommand) (*domain.Task, error)
	UpdateTaskFn       func(ctx context.Context, cmd service.UpdateTaskCommand) (*domain.Task, error)
	GetTaskFn          func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	BindMembershipFn   func(ctx context.Context, cmd service.BindMembershipCommand) (*domain.UserMembership, error)
}

func (m *MockCatalogService) CreateMembership(
	ctx context.Context,
	cmd service.CreateMembershipCommand,
) (*domain.Membership, error) {
	if m.CreateMembershipFn != nil {
		return m.CreateMembershipFn(ctx, cmd)
	}
	return nil, nil
}

func (m *MockCatalogService) UpdateMembership(
	ctx context.Context,
	cmd service.UpdateMembershipCommand,
) (*domain.Membership, error) {
	if m.UpdateMembershipFn != nil {
		return m.UpdateMembershipFn(ctx, cmd)
	}
	return nil, nil
}

func (m *MockCatalogService) CreateTask(ctx context.Context, cmd service.CreateTaskCommand) (*domain.Task, error) {
	if m.CreateTaskFn != nil {
		return m.CreateTaskFn(ctx, cmd)
	}
	return nil, nil
}

func (m *MockCatalogService) UpdateTask(ctx context.Context, cmd service.UpdateTaskCommand) (*domain.Task, error) {
	if m.UpdateTaskFn != nil {
		return m.UpdateTaskFn(ctx, cmd)
	}
	return nil, nil
}

func (m *MockCatalogService) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if m.GetTaskFn != nil {
		return m.GetTaskFn(ctx, id)
	}
	return nil, service.ErrTaskNotFound
}

func (m *MockCatalogService) BindMembership(
	ctx context.Context,
	cmd service.BindMembershipCommand,
) (*domain.UserMembership, error) {
	if m.BindMembershipFn != nil {
		return m.BindMembershipFn(ctx, cmd)
	}
	return nil, nil
}

// MockRegistrationService is a mock implementation of service.RegistrationService
type MockRegistrationService struct {
	RegisterUserFn func(ctx context.Context, cmd service.RegisterUserCommand) (*service.Registration, error)
}

func (m *MockRegistrationService) RegisterUser(
	ctx context.Context,
	cmd service.RegisterUserCommand,
) (*service.Registration, error) {
	if m.RegisterUserFn != nil {
		return m.RegisterUserFn(ctx, cmd)
	}
	return nil, nil
}

var (
	_ service.DistributionEngine  = (*MockDistributionEngine)(nil)
	_ service.ResetSweeper        = (*MockResetSweeper)(nil)
	_ service.EligibilityResolver = (*MockEligibilityResolver)(nil)
	_ service.SettlementService   = (*MockSettlementService)(nil)
	_ service.CatalogService      = (*MockCatalogService)(nil)
	_ service.RegistrationService = (*MockRegistrationService)(nil)
)
