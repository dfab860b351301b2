package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/inms/inms/internal/articles"
	"github.com/inms/inms/internal/audit"
	"github.com/inms/inms/internal/auth"
	"github.com/inms/inms/internal/observability"
	"github.com/inms/inms/internal/roles"
	"github.com/inms/inms/internal/shared"
	"github.com/inms/inms/internal/users"
	"github.com/inms/inms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthService    *auth.Service
	AuthHandler    *auth.Handler
	ArticleHandler *articles.Handler
	UsersHandler   *users.Handler
	RolesHandler   *roles.Handler
	AuditHandler   *audit.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router for the JSON API.
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

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	loginLimit := 10
	loginWindow := time.Minute
	if params.Config != nil {
		if params.Config.LoginRateLimit > 0 {
			loginLimit = params.Config.LoginRateLimit
		}
		if params.Config.LoginRateWindow > 0 {
			loginWindow = params.Config.LoginRateWindow
		}
	}

	r.Route("/api", func(r chi.Router) {
		// Credential endpoints stay outside the principal middleware and
		// get a tighter per-IP rate limit.
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(loginLimit, loginWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
			params.AuthHandler.MountPublic(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(PrincipalMiddleware(params.Logger, params.AuthService, params.SessionManager))

			params.AuthHandler.MountProtected(r)
			r.Route("/articles", params.ArticleHandler.MountRoutes)
			r.Route("/users", params.UsersHandler.MountRoutes)
			r.Route("/roles", params.RolesHandler.MountRoutes)
			r.Route("/audit", params.AuditHandler.MountRoutes)
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}
