package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/campuslink/campuslink-admin/internal/broadcast"
	"github.com/campuslink/campuslink-admin/internal/guard"
	"github.com/campuslink/campuslink-admin/internal/identity"
	"github.com/campuslink/campuslink-admin/internal/observability"
	"github.com/campuslink/campuslink-admin/internal/shared"
	"github.com/campuslink/campuslink-admin/internal/users"
	"github.com/campuslink/campuslink-admin/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *identity.Handler
	BroadcastHandler *broadcast.Handler
	UsersHandler     *users.Handler
	Guard            guard.Middleware
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with CampusLink defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// Everything under the admin surface is gated behind the admin verdict.
	r.Group(func(r chi.Router) {
		r.Use(params.Guard.RequireAdmin)
		r.Route("/broadcasts", params.BroadcastHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
