package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/taskquota/internal/api/shared"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/service"
)

// DistributionHandler exposes the distribution engine, the day-boundary
// sweep and the eligibility resolver.
type DistributionHandler struct {
	engine   service.DistributionEngine
	sweeper  service.ResetSweeper
	resolver service.EligibilityResolver
	logger   *slog.Logger
}

// NewDistributionHandler creates a new DistributionHandler
func NewDistributionHandler(
	engine service.DistributionEngine,
	sweeper service.ResetSweeper,
	resolver service.EligibilityResolver,
	logger *slog.Logger,
) *DistributionHandler {
	if engine == nil || sweeper == nil || resolver == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("distribution handler dependencies cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DistributionHandler{
		engine:   engine,
		sweeper:  sweeper,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "distribution_handler")),
	}
}

// RunDistribution handles POST /api/distribution/runs.
// Per-user failures are part of the summary and do not change the status.
func (h *DistributionHandler) RunDistribution(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	summary, err := h.engine.AssignDailyTasks(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to run distribution")
		return
	}

	log.Info("distribution run finished via API",
		slog.String("run_id", summary.RunID.String()),
		slog.Int("users_processed", summary.UsersProcessed),
		slog.Int("tasks_assigned", summary.TasksAssigned),
		slog.Int("errors", len(summary.Errors)))
	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}

// RunSweep handles POST /api/distribution/sweeps.
func (h *DistributionHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.ResetDailyState(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to reset daily state")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// AssignUserTasks handles POST /api/users/{id}/assignments.
// It always answers 200 with the result; a user without an active
// membership is reported in the result's errors.
func (h *DistributionHandler) AssignUserTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := handlePathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.engine.AssignTasksToUser(r.Context(), userID))
}

// GetEligibility handles GET /api/users/{id}/eligibility.
func (h *DistributionHandler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	userID, ok := handlePathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}

	e, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	resp := EligibilityResponse{
		UserID:          e.UserID,
		AssignedToday:   e.AssignedToday,
		Remaining:       e.Remaining,
		AssignedTaskIDs: e.AssignedTaskIDs,
		WindowStart:     e.Window.Start,
		WindowEnd:       e.Window.End,
	}
	if e.Membership != nil {
		resp.MembershipID = e.Membership.ID
		resp.MembershipName = e.Membership.Name
		resp.TasksPerDay = e.Membership.TasksPerDay
		resp.RewardMultiplier = e.Membership.RewardMultiplier
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
