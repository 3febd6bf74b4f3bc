// Package httpapi assembles the HTTP surface: middleware stack, public
// routes, and the authenticated API. Handlers stay thin; business rules
// live in the services.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	credithandler "peopleflow/internal/credit/handler"
	invitationhandler "peopleflow/internal/invitation/handler"
	"peopleflow/internal/platform/metrics"
	"peopleflow/internal/platform/middleware"
	workflowhandler "peopleflow/internal/workflow/handler"
	"peopleflow/pkg/platform/httputil"
)

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Sessions    middleware.SessionValidator
	Invitations *invitationhandler.Handler
	Credits     *credithandler.Handler
	Workflows   *workflowhandler.Handler

	// HealthChecks are probed by /readyz, keyed by dependency name.
	HealthChecks map[string]func(context.Context) error
}

// NewRouter wires the full HTTP surface.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Metadata)
	if deps.Metrics != nil {
		r.Use(middleware.Instrument(deps.Metrics))
	}

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(deps.HealthChecks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Redemption authenticates with the invitation token itself.
	deps.Invitations.RegisterPublic(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Sessions, deps.Logger))
		deps.Invitations.Register(r)
		deps.Credits.Register(r)
		deps.Workflows.Register(r)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady probes each backing dependency and reports per-dependency
// status, returning 503 when any probe fails.
func handleReady(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, results)
	}
}
