package api

import (
	"net/http"
	"workflowhook/internal/health"
	"workflowhook/internal/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Jobs          Jobs
	Loop          LoopStats
	Webhook       WebhookStats
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Jobs, cfg.Loop, cfg.Webhook, cfg.HealthChecker)

	r := chi.NewRouter()
	// Middleware chain, outermost first
	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware())
	r.Use(LoggingMiddleware())
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}

	// Probes - no auth required
	r.Get("/livez", handler.Livez)
	r.Get("/readyz", handler.Readyz)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIKey))
		r.Get("/v1/jobs", handler.ListJobs)
		r.Get("/v1/jobs/{name}", handler.GetJob)
		r.Get("/v1/stats", handler.Stats)
	})

	return r
}
