package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/darklock-sec/darklock-console/internal/announce"
	"github.com/darklock-sec/darklock-console/internal/audit"
	"github.com/darklock-sec/darklock-console/internal/auth"
	"github.com/darklock-sec/darklock-console/internal/botstatus"
	"github.com/darklock-sec/darklock-console/internal/flags"
	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/maintenance"
	"github.com/darklock-sec/darklock-console/internal/observability"
	"github.com/darklock-sec/darklock-console/internal/shared"
	"github.com/darklock-sec/darklock-console/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	AuthHandler        *auth.Handler
	IdentityHandler    *identity.Handler
	MaintenanceHandler *maintenance.Handler
	FlagsHandler       *flags.Handler
	AnnounceHandler    *announce.Handler
	AuditHandler       *audit.Handler
	BotHandler         *botstatus.Handler
	JobHandler         *jobs.Handler
	Guard              identity.Middleware
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with console defaults.
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

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(params.Guard.RequireOperator)
			params.AuthHandler.MountSessionRoutes(r)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.Guard.RequireOperator)
		r.Route("/operators", params.IdentityHandler.MountRoutes)
		r.Route("/maintenance", params.MaintenanceHandler.MountRoutes)
		r.Route("/flags", params.FlagsHandler.MountRoutes)
		r.Route("/announcements", params.AnnounceHandler.MountRoutes)
		r.Route("/audit", params.AuditHandler.MountRoutes)
		r.Route("/bot", params.BotHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
