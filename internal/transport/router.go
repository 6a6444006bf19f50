package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tixgate/actionset/internal/actionset"
	"github.com/tixgate/actionset/internal/config"
	"github.com/tixgate/actionset/internal/observability"
	"github.com/tixgate/actionset/internal/rights"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Sets         *actionset.Engine
	Rights       *rights.Engine
	Metrics      *observability.Metrics
	Authenticate func(http.Handler) http.Handler
	Ready        observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware, applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes, no authentication.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Ready))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	// Authenticated routes, full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.ClaimPaths))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Route("/v1/actionsets", func(r chi.Router) {
			r.Post("/", handleSetCreate(deps.Sets))
			r.Get("/", handleSetList(deps.Sets))
			r.Get("/{id}", handleSetGet(deps.Sets))
			r.Post("/{id}/actions", handleSetSubmit(deps.Sets))
			r.Post("/{id}/actions/{index}", handleSetSubmit(deps.Sets))
			r.Post("/{id}/actions/{index}/confirm", handleSetConfirm(deps.Sets))
			r.Post("/{id}/actions/{index}/fail", handleSetFail(deps.Sets))
			r.Get("/{id}/rights", handleRightList(deps.Rights))
			r.Post("/{id}/rights/grant", handleRightGrant(deps.Rights, deps.Metrics))
			r.Post("/{id}/rights/revoke", handleRightRevoke(deps.Rights, deps.Metrics))
		})
	})

	return r
}
