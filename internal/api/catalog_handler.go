package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/taskquota/internal/api/shared"
	"github.com/phrazzld/taskquota/internal/platform/logger"
	"github.com/phrazzld/taskquota/internal/service"
)

// CatalogHandler handles the membership and task catalog endpoints.
type CatalogHandler struct {
	catalog service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog service.CatalogService, logger *slog.Logger) *CatalogHandler {
	if catalog == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("catalog service cannot be nil for CatalogHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger.With(slog.String("component", "catalog_handler")),
	}
}

// CreateMembership handles POST /api/memberships.
func (h *CatalogHandler) CreateMembership(w http.ResponseWriter, r *http.Request) {
	var cmd service.CreateMembershipCommand
	if !decodeBody(w, r, &cmd, false) {
		return
	}
	m, err := h.catalog.CreateMembership(r.Context(), cmd)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, m)
}

// UpdateMembership handles PUT /api/memberships/{id}.
func (h *CatalogHandler) UpdateMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	var cmd service.UpdateMembershipCommand
	if !decodeBody(w, r, &cmd, false) {
		return
	}
	cmd.ID = id

	m, err := h.catalog.UpdateMembership(r.Context(), cmd)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, m)
}

// CreateTask handles POST /api/tasks.
func (h *CatalogHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var cmd service.CreateTaskCommand
	if !decodeBody(w, r, &cmd, false) {
		return
	}
	t, err := h.catalog.CreateTask(r.Context(), cmd)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, t)
}

// UpdateTask handles PUT /api/tasks/{id}.
func (h *CatalogHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	var cmd service.UpdateTaskCommand
	if !decodeBody(w, r, &cmd, false) {
		return
	}
	cmd.ID = id

	t, err := h.catalog.UpdateTask(r.Context(), cmd)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}

// GetTask handles GET /api/tasks/{id}.
func (h *CatalogHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}
	t, err := h.catalog.GetTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, t)
}
