package handler

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/shortclick/shortclick/internal/middleware"
	"github.com/shortclick/shortclick/internal/ratelimit"
	"github.com/shortclick/shortclick/internal/telemetry"
)

// RouterConfig carries the handlers and cross-cutting settings for NewRouter.
type RouterConfig struct {
	Handler  *Handler
	Health   *HealthHandler
	URLs     *URLHandler
	Redirect *RedirectHandler
	Metrics  *MetricsHandler

	// Nil limiters disable rate limiting for that route group.
	APILimiter      ratelimit.Limiter
	RedirectLimiter ratelimit.Limiter

	IsDevelopment      bool
	CORSAllowedOrigins []string
	MaxRequestBodySize int64

	Logger    *slog.Logger
	Telemetry telemetry.Sink
}

// NewRouter assembles the HTTP surface.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger, cfg.Telemetry))
	r.Use(middleware.Recoverer(cfg.Logger, cfg.Telemetry))
	r.Use(middleware.Security(cfg.IsDevelopment))

	// Health endpoints
	r.Get("/healthz", cfg.Health.Healthz)
	r.Get("/readyz", cfg.Health.Readyz)
	if cfg.Metrics != nil {
		r.Get("/metrics", cfg.Metrics.Metrics)
	}

	// Root info endpoint
	r.Get("/", cfg.Handler.Hello)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
		r.Use(middleware.NoStore)
		r.Use(middleware.RateLimit(cfg.APILimiter, "api", cfg.Logger))

		r.Route("/urls", func(r chi.Router) {
			r.With(middleware.MaxBodySize(bodyLimit(cfg.MaxRequestBodySize))).Post("/", cfg.URLs.Create)
			r.Get("/", cfg.URLs.List)
			r.Get("/{shortCode}", cfg.URLs.Get)
		})
		r.Get("/stats", cfg.URLs.Stats)
		r.Post("/sweep", cfg.URLs.Sweep)
	})

	// Redirects are never cached so each visit is counted.
	r.With(
		middleware.NoStore,
		middleware.RateLimit(cfg.RedirectLimiter, "redirect", cfg.Logger),
	).Get("/{shortCode}", cfg.Redirect.Redirect)

	// 404 and 405 handlers
	r.NotFound(cfg.Handler.NotFound)
	r.MethodNotAllowed(cfg.Handler.MethodNotAllowed)

	return r
}

func bodyLimit(n int64) int64 {
	if n <= 0 {
		return 1 << 20
	}
	return n
}
