package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/taskquota/internal/api/shared"
	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/service"
)

// UserHandler handles user registration, membership binding, assignment
// completion and the user's read endpoints.
type UserHandler struct {
	registration service.RegistrationService
	settlement   service.SettlementService
	catalog      service.CatalogService
	logger       *slog.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(
	registration service.RegistrationService,
	settlement service.SettlementService,
	catalog service.CatalogService,
	logger *slog.Logger,
) *UserHandler {
	if registration == nil || settlement == nil || catalog == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("user handler dependencies cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{
		registration: registration,
		settlement:   settlement,
		catalog:      catalog,
		logger:       logger.With(slog.String("component", "user_handler")),
	}
}

// Register handles POST /api/users.
// The first day's tasks are assigned in the background after the response.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var cmd service.RegisterUserCommand
	if !decodeBody(w, r, &cmd, true) {
		return
	}

	reg, err := h.registration.RegisterUser(r.Context(), cmd)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("user registered via API", slog.String("user_id", reg.User.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, reg)
}

// BindMembership handles POST /api/users/{id}/memberships.
func (h *UserHandler) BindMembership(w http.ResponseWriter, r *http.Request) {
	userID, ok := handlePathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}

	var cmd service.BindMembershipCommand
	if !decodeBody(w, r, &cmd, false) {
		return
	}
	cmd.UserID = userID

	binding, err := h.catalog.BindMembership(r.Context(), cmd)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, binding)
}

// ListAssignments handles GET /api/users/{id}/assignments?status=.
func (h *UserHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := handlePathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}

	query := listAssignmentsQuery{Status: r.URL.Query().Get("status")}
	if err := shared.ValidateRequest(&query); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid status filter", err)
		return
	}
	var status *domain.AssignmentStatus
	if query.Status != "" {
		s := domain.AssignmentStatus(query.Status)
		status = &s
	}

	assignments, err := h.settlement.ListAssignments(r.Context(), userID, status)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, assignmentsToResponse(assignments))
}

// GetAccount handles GET /api/users/{id}/account.
func (h *UserHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := handlePathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}

	account, err := h.settlement.GetAccount(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, account)
}

// CompleteAssignment handles POST /api/assignments/{id}/complete.
func (h *UserHandler) CompleteAssignment(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	assignmentID, ok := handlePathUUID(w, r, "id", log)
	if !ok {
		return
	}

	var req CompleteAssignmentRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	var completedAt time.Time
	if req.CompletedAt != nil {
		completedAt = *req.CompletedAt
	}

	a, err := h.settlement.CompleteAssignment(r.Context(), assignmentID, completedAt)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("assignment completed via API",
		slog.String("assignment_id", a.ID.String()),
		slog.String("final_reward", a.FinalReward.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, assignmentToResponse(a))
}
