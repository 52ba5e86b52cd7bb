package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atelier-hq/atelier/internal/audit"
	"github.com/atelier-hq/atelier/internal/chat"
	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/notify"
	"github.com/atelier-hq/atelier/internal/observability"
	"github.com/atelier-hq/atelier/internal/realtime"
	"github.com/atelier-hq/atelier/internal/workflow"
	"github.com/atelier-hq/atelier/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Sessions        *identity.SessionStore
	Identity        *identity.Service
	IdentityHandler *identity.Handler
	WorkflowHandler *workflow.Handler
	ChatHandler     *chat.Handler
	NotifyHandler   *notify.Handler
	AuditHandler    *audit.Handler
	JobsHandler     *jobs.Handler
	Gateway         *realtime.Gateway
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		params.IdentityHandler.MountPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(params.Logger, params.Sessions, params.Identity))
			params.IdentityHandler.MountRoutes(r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(params.Logger, params.Sessions, params.Identity))

		params.WorkflowHandler.MountRoutes(r)
		params.ChatHandler.MountRoutes(r)
		r.Route("/notifications", params.NotifyHandler.MountRoutes)
		params.AuditHandler.MountRoutes(r)
		r.Route("/users", params.IdentityHandler.MountAdminRoutes)
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	// The websocket gateway authenticates on its own because browsers
	// cannot set headers during the upgrade.
	if params.Gateway != nil {
		r.Get("/ws", params.Gateway.ServeHTTP)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
