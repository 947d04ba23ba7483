// Package http exposes the tracker over a JSON API following the
// chi router and go-chi/render conventions used across the service.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "fundtracker/internal/errors"
	"fundtracker/internal/services"
	"fundtracker/internal/stats"
	"fundtracker/internal/timeseries"
	"fundtracker/pkg/contracts/domain"
)

// SeriesService is the slice of the tracker service the handlers need.
type SeriesService interface {
	DefaultFrequency() timeseries.Frequency
	CompleteSeries(freq timeseries.Frequency) (*timeseries.Series, error)
	Precedence(freq timeseries.Frequency, metric string, timestamp time.Time) (*domain.PrecedenceResult, error)
	TopRecords(freq timeseries.Frequency, metric string, n int, ascending bool) ([]stats.TopRecord, error)
	MainStatistics() (*domain.MainStatistics, error)
	PatchStats() ([]domain.PatchStat, error)
	YearView(year int) ([]domain.YearViewRow, error)
	FundingYears() ([]int, error)
	LoadReport() services.LoadReport
	Healthy() bool
}

// SeriesHandler serves the time series and statistics endpoints.
type SeriesHandler struct {
	service SeriesService
	logger  *slog.Logger
}

// NewSeriesHandler creates a series handler.
func NewSeriesHandler(service SeriesService, logger *slog.Logger) *SeriesHandler {
	return &SeriesHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "series")),
	}
}

// Routes returns the series routes.
func (h *SeriesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/series", h.GetSeries)
	r.Get("/precedence", h.GetPrecedence)
	r.Get("/records", h.GetRecords)
	r.Get("/statistics", h.GetStatistics)
	r.Get("/patches", h.GetPatches)
	r.Get("/years", h.GetYears)
	r.Get("/year-view", h.GetYearView)
	r.Get("/report", h.GetReport)

	return r
}

// frequencyParam reads the freq query parameter, falling back to the
// configured default.
func (h *SeriesHandler) frequencyParam(r *http.Request) (timeseries.Frequency, *apierrors.APIError) {
	raw := r.URL.Query().Get("freq")
	if raw == "" {
		return h.service.DefaultFrequency(), nil
	}
	freq, err := timeseries.ParseFrequency(raw)
	if err != nil {
		return 0, apierrors.InvalidParameterError("freq", err.Error())
	}
	return freq, nil
}

// GetSeries handles GET /api/v1/series.
func (h *SeriesHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	freq, apiErr := h.frequencyParam(r)
	if apiErr != nil {
		render.Render(w, r, apiErr)
		return
	}

	series, err := h.service.CompleteSeries(freq)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build series",
			slog.String("freq", freq.String()),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.FromEngineError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   newSeriesPayload(series),
	})
}

// GetPrecedence handles GET /api/v1/precedence. The timestamp is
// optional and defaults to the most recent period.
func (h *SeriesHandler) GetPrecedence(w http.ResponseWriter, r *http.Request) {
	freq, apiErr := h.frequencyParam(r)
	if apiErr != nil {
		render.Render(w, r, apiErr)
		return
	}

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		render.Render(w, r, apierrors.InvalidParameterError("metric", "metric is required"))
		return
	}

	var timestamp time.Time
	if raw := r.URL.Query().Get("timestamp"); raw != "" {
		parsed, err := parseTimestamp(raw)
		if err != nil {
			render.Render(w, r, apierrors.InvalidParameterError("timestamp", err.Error()))
			return
		}
		timestamp = parsed
	}

	result, err := h.service.Precedence(freq, metric, timestamp)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "precedence query failed",
			slog.String("metric", metric),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.FromEngineError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   newPrecedencePayload(result),
	})
}

// GetRecords handles GET /api/v1/records. Order is "desc" unless
// order=asc is given.
func (h *SeriesHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	freq, apiErr := h.frequencyParam(r)
	if apiErr != nil {
		render.Render(w, r, apiErr)
		return
	}

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		render.Render(w, r, apierrors.InvalidParameterError("metric", "metric is required"))
		return
	}

	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			render.Render(w, r, apierrors.InvalidParameterError("n", "n must be a positive integer"))
			return
		}
		n = parsed
	}

	ascending := false
	switch order := r.URL.Query().Get("order"); order {
	case "", "desc":
	case "asc":
		ascending = true
	default:
		render.Render(w, r, apierrors.InvalidParameterError("order", "order must be asc or desc"))
		return
	}

	records, err := h.service.TopRecords(freq, metric, n, ascending)
	if err != nil {
		render.Render(w, r, apierrors.FromEngineError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   records,
		"count":  len(records),
	})
}

// GetStatistics handles GET /api/v1/statistics.
func (h *SeriesHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	statistics, err := h.service.MainStatistics()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to compute statistics",
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.FromEngineError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   newStatisticsPayload(statistics),
	})
}

// GetPatches handles GET /api/v1/patches.
func (h *SeriesHandler) GetPatches(w http.ResponseWriter, r *http.Request) {
	patches, err := h.service.PatchStats()
	if err != nil {
		render.Render(w, r, apierrors.FromEngineError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   patches,
		"count":  len(patches),
	})
}

// GetYears handles GET /api/v1/years.
func (h *SeriesHandler) GetYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.FundingYears()
	if err != nil {
		render.Render(w, r, apierrors.FromEngineError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   years,
	})
}

// GetYearView handles GET /api/v1/year-view. Year 0 means the latest
// year the version feed covers.
func (h *SeriesHandler) GetYearView(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			render.Render(w, r, apierrors.InvalidParameterError("year", "year must be a non-negative integer"))
			return
		}
		year = parsed
	}

	rows, err := h.service.YearView(year)
	if err != nil {
		render.Render(w, r, apierrors.FromEngineError(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   rows,
		"count":  len(rows),
	})
}

// GetReport handles GET /api/v1/report.
func (h *SeriesHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   h.service.LoadReport(),
	})
}

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(timestampLayout, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
