package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/modelgate/internal/api"
	apimiddleware "github.com/phrazzld/modelgate/internal/api/middleware"
	"github.com/phrazzld/modelgate/internal/api/permission"
)

// routePermissions declares the permission each route requires. This is the
// single source of truth: routes absent from this table are public.
var routePermissions = []struct {
	method   string
	pattern  string
	resource string
	action   string
}{
	{http.MethodPost, "/tasks", "task", "create"},
	{http.MethodGet, "/tasks", "task", "list"},
	{http.MethodGet, "/tasks/{id}/status", "task", "read"},
	{http.MethodGet, "/tasks/{id}/result", "task", "read"},
	{http.MethodPost, "/tasks/{id}/cancel", "task", "cancel"},
}

// setupRouter builds the router, the permission registry, and the gating
// middleware chain. The registry is frozen before the router is returned.
func (app *application) setupRouter() (http.Handler, error) {
	registry := permission.NewRegistry()
	for _, rp := range routePermissions {
		if err := registry.Register(rp.method, rp.pattern, rp.resource, rp.action); err != nil {
			return nil, fmt.Errorf("failed to register route permission: %w", err)
		}
	}

	r := chi.NewRouter()

	gate := apimiddleware.NewGate(
		registry,
		app.authClient,
		r,
		app.config.Auth.ServiceName,
		app.config.Auth.Enabled,
	)

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)
	r.Use(gate.Middleware)

	taskHandler := api.NewTaskHandler(app.orchestrator, app.logger)
	healthHandler := api.NewHealthHandler(app.db)

	r.Post("/tasks", taskHandler.Create)
	r.Get("/tasks", taskHandler.List)
	r.Get("/tasks/{id}/status", taskHandler.Status)
	r.Get("/tasks/{id}/result", taskHandler.Result)
	r.Post("/tasks/{id}/cancel", taskHandler.Cancel)

	// Health stays unmapped in the permission registry: public by policy.
	r.Get("/health", healthHandler.Check)

	registry.Freeze()
	return r, nil
}
