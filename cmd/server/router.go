package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/taskquota/internal/api"
	apiMiddleware "github.com/phrazzld/taskquota/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)

	distributionHandler := api.NewDistributionHandler(app.engine, app.sweeper, app.resolver, app.logger)
	userHandler := api.NewUserHandler(app.registration, app.settlement, app.catalog, app.logger)
	catalogHandler := api.NewCatalogHandler(app.catalog, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/distribution/runs", distributionHandler.RunDistribution)
		r.Post("/distribution/sweeps", distributionHandler.RunSweep)

		r.Post("/users", userHandler.Register)
		r.Route("/users/{id}", func(r chi.Router) {
			r.Post("/assignments", distributionHandler.AssignUserTasks)
			r.Get("/assignments", userHandler.ListAssignments)
			r.Get("/eligibility", distributionHandler.GetEligibility)
			r.Get("/account", userHandler.GetAccount)
			r.Post("/memberships", userHandler.BindMembership)
		})

		r.Post("/assignments/{id}/complete", userHandler.CompleteAssignment)

		r.Post("/memberships", catalogHandler.CreateMembership)
		r.Put("/memberships/{id}", catalogHandler.UpdateMembership)

		r.Post("/tasks", catalogHandler.CreateTask)
		r.Put("/tasks/{id}", catalogHandler.UpdateTask)
		r.Get("/tasks/{id}", catalogHandler.GetTask)
	})

	r.Get("/health", app.handleHealth)

	return r
}

// handleHealth reports whether the database is reachable.
func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	if app.db != nil {
		if err := app.db.PingContext(r.Context()); err != nil {
			app.logger.Error("Health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		app.logger.Error("Failed to write health check response", "error", err)
	}
}
