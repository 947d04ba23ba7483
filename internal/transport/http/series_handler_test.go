package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundtracker/internal/config"
	enginerrors "fundtracker/internal/errors"
	"fundtracker/internal/metrics"
	"fundtracker/internal/services"
	"fundtracker/internal/stats"
	"fundtracker/internal/timeseries"
	"fundtracker/pkg/contracts/domain"
)

type stubService struct {
	series     *timeseries.Series
	seriesErr  error
	precedence *domain.PrecedenceResult
	records    []stats.TopRecord
	statistics *domain.MainStatistics
	patches    []domain.PatchStat
	yearView   []domain.YearViewRow
	years      []int
	report     services.LoadReport
	healthy    bool

	lastFreq      timeseries.Frequency
	lastMetric    string
	lastTimestamp time.Time
	lastN         int
	lastAscending bool
}

func (s *stubService) DefaultFrequency() timeseries.Frequency { return timeseries.Day }

func (s *stubService) CompleteSeries(freq timeseries.Frequency) (*timeseries.Series, error) {
	s.lastFreq = freq
	return s.series, s.seriesErr
}

func (s *stubService) Precedence(freq timeseries.Frequency, metric string, timestamp time.Time) (*domain.PrecedenceResult, error) {
	s.lastFreq, s.lastMetric, s.lastTimestamp = freq, metric, timestamp
	if s.precedence == nil {
		return nil, enginerrors.NewQueryError("metric %s not present", metric)
	}
	return s.precedence, nil
}

func (s *stubService) TopRecords(freq timeseries.Frequency, metric string, n int, ascending bool) ([]stats.TopRecord, error) {
	s.lastFreq, s.lastMetric, s.lastN, s.lastAscending = freq, metric, n, ascending
	return s.records, nil
}

func (s *stubService) MainStatistics() (*domain.MainStatistics, error) {
	if s.statistics == nil {
		return nil, enginerrors.NewConfigurationError("transaction series not built")
	}
	return s.statistics, nil
}

func (s *stubService) PatchStats() ([]domain.PatchStat, error)  { return s.patches, nil }
func (s *stubService) YearView(year int) ([]domain.YearViewRow, error) {
	return s.yearView, nil
}
func (s *stubService) FundingYears() ([]int, error)    { return s.years, nil }
func (s *stubService) LoadReport() services.LoadReport { return s.report }
func (s *stubService) Healthy() bool                   { return s.healthy }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func fixtureSeries(t *testing.T) *timeseries.Series {
	t.Helper()
	index := []time.Time{
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	s := timeseries.NewSeries(index, timeseries.Day)
	s.SetColumn("delta_pledge", []float64{100, math.NaN()})
	s.SetLabel("version_id", []string{"Alpha 3.17", "Alpha 3.17"})
	return s
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetSeriesEncodesMissingValuesAsNull(t *testing.T) {
	stub := &stubService{series: fixtureSeries(t)}
	handler := NewSeriesHandler(stub, testLogger())

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/series?freq=daily", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, timeseries.Day, stub.lastFreq)

	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "daily", data["frequency"])

	columns := data["columns"].(map[string]interface{})
	deltas := columns["delta_pledge"].([]interface{})
	require.Len(t, deltas, 2)
	assert.Equal(t, float64(100), deltas[0])
	assert.Nil(t, deltas[1])

	labels := data["labels"].(map[string]interface{})
	assert.Len(t, labels["version_id"].([]interface{}), 2)
}

func TestGetSeriesDefaultsToConfiguredFrequency(t *testing.T) {
	stub := &stubService{series: fixtureSeries(t)}
	handler := NewSeriesHandler(stub, testLogger())

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/series", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, timeseries.Day, stub.lastFreq)
}

func TestGetSeriesRejectsUnknownFrequency(t *testing.T) {
	handler := NewSeriesHandler(&stubService{}, testLogger())

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/series?freq=fortnightly", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INVALID_PARAMETER", body["error_code"])
}

func TestGetSeriesMapsEngineErrors(t *testing.T) {
	stub := &stubService{seriesErr: enginerrors.NewQueryError("frequency finer than base")}
	handler := NewSeriesHandler(stub, testLogger())

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/series?freq=hourly", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "QUERY_ERROR", body["error_code"])
}

func TestGetPrecedence(t *testing.T) {
	onSale := 1.0
	stub := &stubService{precedence: &domain.PrecedenceResult{
		Timestamp:       time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		Period:          "2023-01-02",
		Version:         "Alpha 3.18",
		OnSale:          &onSale,
		PeriodFrequency: "daily",
		Metric:          "delta_pledge",
		Value:           250,
		Percentile:      90,
		Rank:            1,
		NPeriods:        10,
		TotalPledge:     math.NaN(),
	}}
	handler := NewSeriesHandler(stub, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/precedence?metric=delta_pledge&timestamp=2023-01-02", nil)
	handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "delta_pledge", stub.lastMetric)
	assert.Equal(t, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), stub.lastTimestamp)

	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Alpha 3.18", data["version"])
	assert.Equal(t, float64(250), data["value"])
	assert.Equal(t, float64(90), data["percentile"])
	assert.Nil(t, data["total_pledge"])
}

func TestGetPrecedenceRequiresMetric(t *testing.T) {
	handler := NewSeriesHandler(&stubService{}, testLogger())

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/precedence", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPrecedenceUnknownMetricIsBadRequest(t *testing.T) {
	handler := NewSeriesHandler(&stubService{}, testLogger())

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/precedence?metric=nope", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "QUERY_ERROR", body["error_code"])
}

func TestGetRecordsParsesOrderAndLimit(t *testing.T) {
	stub := &stubService{records: []stats.TopRecord{
		{Period: "2023-01-02", Metric: "delta_pledge", Value: 250},
	}}
	handler := NewSeriesHandler(stub, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/records?metric=delta_pledge&n=5&order=asc", nil)
	handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, stub.lastN)
	assert.True(t, stub.lastAscending)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
}

func TestGetRecordsRejectsBadLimit(t *testing.T) {
	handler := NewSeriesHandler(&stubService{}, testLogger())

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records?metric=delta_pledge&n=0", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatisticsSanitizesNaN(t *testing.T) {
	stub := &stubService{statistics: &domain.MainStatistics{
		Pledges: domain.MetricStatistics{
			TotalHistorically:   4000,
			TotalThisYear:       400,
			TotalYearOnYear:     math.NaN(),
			PctChangeYearOnYear: math.NaN(),
		},
	}}
	handler := NewSeriesHandler(stub, testLogger())

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/statistics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	pledges := body["data"].(map[string]interface{})["pledges"].(map[string]interface{})
	assert.Equal(t, float64(4000), pledges["total_historically"])
	assert.Nil(t, pledges["total_year_on_year"])
}

func TestGetStatisticsConfigurationErrorIsConflict(t *testing.T) {
	handler := NewSeriesHandler(&stubService{}, testLogger())

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/statistics", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "CONFIGURATION_ERROR", body["error_code"])
}

func TestRouterEndToEnd(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.RateLimit.Enabled = false

	stub := &stubService{
		series:  fixtureSeries(t),
		years:   []int{2022, 2023},
		healthy: true,
		report:  services.LoadReport{TransactionsAccepted: 4},
	}
	collector := metrics.NewCollector()
	router := NewRouter(cfg, testLogger(), stub, collector)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/years", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, health.Code)
	body := decodeBody(t, health)
	assert.Equal(t, "ok", body["status"])

	prom := httptest.NewRecorder()
	router.ServeHTTP(prom, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, prom.Code)
	assert.Contains(t, prom.Body.String(), "fundtracker_http_requests_total")

	version := httptest.NewRecorder()
	router.ServeHTTP(version, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, version.Code)
	assert.Contains(t, version.Body.String(), "api_version")
}

func TestRouterHealthzDegraded(t *testing.T) {
	cfg := &config.Config{}
	router := NewRouter(cfg, testLogger(), &stubService{healthy: false}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
