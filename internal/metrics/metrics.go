// Package metrics exposes Prometheus instrumentation for the HTTP
// surface and the feed loaders.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the process registry and the application metrics.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	recordsAccepted *prometheus.GaugeVec
	recordsRejected *prometheus.GaugeVec
}

// NewCollector creates a collector with its own registry so tests can
// run several instances side by side.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundtracker_http_requests_total",
			Help: "HTTP requests handled, by method, path and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundtracker_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		recordsAccepted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fundtracker_feed_records_accepted",
			Help: "Rows accepted during the last feed load.",
		}, []string{"feed"}),
		recordsRejected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fundtracker_feed_records_rejected",
			Help: "Rows rejected during the last feed load.",
		}, []string{"feed"}),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.recordsAccepted,
		c.recordsRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Instrument records count and latency for every request.
func (c *Collector) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		c.requestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(ww.Status())).Inc()
		c.requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordFeedLoad publishes accepted and rejected row counts for a feed.
func (c *Collector) RecordFeedLoad(feed string, accepted, rejected int) {
	c.recordsAccepted.WithLabelValues(feed).Set(float64(accepted))
	c.recordsRejected.WithLabelValues(feed).Set(float64(rejected))
}
