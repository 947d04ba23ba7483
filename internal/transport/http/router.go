package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fundtracker/internal/config"
	"fundtracker/internal/metrics"
	"fundtracker/internal/middleware"
)

// NewRouter assembles the full HTTP surface: middleware chain, the
// versioned API, health and Prometheus endpoints.
func NewRouter(cfg *config.Config, logger *slog.Logger, service SeriesService, collector *metrics.Collector) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Compress(5))
	if collector != nil {
		r.Use(collector.Instrument)
	}
	if cfg.Server.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst, logger)
		r.Use(limiter.Handler)
	}

	seriesHandler := NewSeriesHandler(service, logger)
	healthHandler := NewHealthHandler(service, logger)

	r.Mount("/api/v1", seriesHandler.Routes())
	r.Get("/healthz", healthHandler.HealthCheck)
	r.Get("/version", healthHandler.Version)
	if collector != nil {
		r.Handle("/metrics", collector.Handler())
	}

	return r
}
