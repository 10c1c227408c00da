package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-admin/internal/auth"
	"github.com/odyssey-erp/odyssey-admin/internal/datascope"
	"github.com/odyssey-erp/odyssey-admin/internal/observability"
	"github.com/odyssey-erp/odyssey-admin/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-admin/internal/ratelimit"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/internal/shared"
	"github.com/odyssey-erp/odyssey-admin/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	PermissionsHandler *rbac.PermissionsHandler
	DataScopeHandler   *datascope.Handler
	JobHandler         *jobs.Handler
	RBACMiddleware     rbac.Middleware
	RateLimits         ratelimit.Middleware
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Odyssey defaults.
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
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r, auth.RouteGuards{
			Login:   params.RateLimits.Limit(params.Config.LoginRule()),
			Refresh: params.RateLimits.Limit(params.Config.RefreshRule()),
		})
	})

	// Authenticated API. RATE_BEFORE_AUTH trades per-user fairness for
	// shielding token validation from floods.
	r.Group(func(r chi.Router) {
		authn := params.AuthHandler.Authenticator().Middleware
		throttle := params.RateLimits.Limit(params.Config.APIRule())
		if params.Config.RateBeforeAuth {
			r.Use(throttle, authn)
		} else {
			r.Use(authn, throttle)
		}

		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.DataScopeHandler != nil {
			r.Route("/departments", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequirePermission(shared.PermDeptEdit))
				params.DataScopeHandler.MountRoutes(r)
			})
		}
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				params.JobHandler.MountRoutes(r, jobs.RouteGuards{
					List: params.RBACMiddleware.RequirePermission(shared.PermJobList),
					Run:  params.RBACMiddleware.RequirePermission(shared.PermJobRun),
				})
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
