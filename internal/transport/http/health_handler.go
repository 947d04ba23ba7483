package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"fundtracker/pkg/contracts"
)

// HealthHandler reports service liveness and the feed load outcome.
type HealthHandler struct {
	service SeriesService
	logger  *slog.Logger
	started time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(service SeriesService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
		started: time.Now(),
	}
}

// HealthCheck handles GET /healthz. The service is degraded when the
// mandatory transaction series could not be built.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !h.service.Healthy() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	render.Status(r, code)
	render.JSON(w, r, map[string]interface{}{
		"status":  status,
		"version": contracts.Version,
		"uptime":  time.Since(h.started).String(),
		"report":  h.service.LoadReport(),
	})
}

// Version handles GET /version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
