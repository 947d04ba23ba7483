// Package services wires the feed sources, the merger and the
// analyzers behind one facade consumed by the CLI and the HTTP
// transport.
package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fundtracker/internal/config"
	"fundtracker/internal/errors"
	"fundtracker/internal/loader"
	"fundtracker/internal/merge"
	"fundtracker/internal/stats"
	"fundtracker/internal/timeseries"
	"fundtracker/pkg/contracts/domain"
)

// TrackerService owns the three feed sources and answers every
// series, statistics and version query. Sources are loaded once at
// construction; queries resample from the in-memory base series.
type TrackerService struct {
	cfg    *config.Config
	logger *slog.Logger

	transactions *loader.TransactionSource
	annotations  *loader.AnnotationSource
	versions     *loader.VersionSource

	merger   *merge.Merger
	analyzer *stats.Analyzer

	mu       sync.Mutex
	combined map[timeseries.Frequency]*timeseries.Series
}

// NewTrackerService loads all three feeds. The transaction feed is
// mandatory; a broken annotation or version feed degrades the service
// to transaction-only output.
func NewTrackerService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*TrackerService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	weekAnchor, err := timeseries.ParseWeekday(cfg.Series.WeekAnchor)
	if err != nil {
		return nil, errors.NewConfigurationError("series.week_anchor: %v", err)
	}
	opts := []loader.SourceOption{
		loader.WithLogger(logger),
		loader.WithRollingPeriods(cfg.Series.RollingPeriods),
		loader.WithWeekAnchor(weekAnchor),
	}

	transactions, err := loader.NewTransactionSource(ctx, cfg.Feeds.TransactionsFile, opts...)
	if err != nil {
		return nil, err
	}

	annotations, err := loader.NewAnnotationSource(cfg.Feeds.AnnotationsFile, opts...)
	if err != nil {
		logger.Error("annotation feed unavailable", "error", err)
		annotations = nil
	}
	versions, err := loader.NewVersionSource(cfg.Feeds.VersionsFile, opts...)
	if err != nil {
		logger.Error("version feed unavailable", "error", err)
		versions = nil
	}

	return &TrackerService{
		cfg:          cfg,
		logger:       logger,
		transactions: transactions,
		annotations:  annotations,
		versions:     versions,
		merger:       merge.NewMerger(logger),
		analyzer:     stats.NewAnalyzer(stats.WithLogger(logger)),
		combined:     make(map[timeseries.Frequency]*timeseries.Series),
	}, nil
}

// DefaultFrequency returns the configured output frequency.
func (s *TrackerService) DefaultFrequency() timeseries.Frequency {
	freq, err := timeseries.ParseFrequency(s.cfg.Series.DefaultFrequency)
	if err != nil {
		return timeseries.Day
	}
	return freq
}

// CompleteSeries joins the three sources at the requested frequency.
// Results are cached per frequency; the sources never change after
// load.
func (s *TrackerService) CompleteSeries(freq timeseries.Frequency) (*timeseries.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.combined[freq]; ok {
		return cached, nil
	}

	var annotations, versions *timeseries.Series
	if s.annotations != nil {
		annotations = s.annotations.GetTimeSeries(freq, false)
	}
	if s.versions != nil {
		versions = s.versions.GetTimeSeriesEnriched(freq, false)
	}

	combined, err := s.merger.Combine(s.transactions.GetTimeSeries(freq, false), annotations, versions)
	if err != nil {
		return nil, err
	}
	s.combined[freq] = combined
	return combined, nil
}

// TransactionSeries resamples the transaction source alone.
func (s *TrackerService) TransactionSeries(freq timeseries.Frequency, appendTimeMetrics bool) *timeseries.Series {
	return s.transactions.GetTimeSeries(freq, appendTimeMetrics)
}

// Precedence ranks a metric's value at a timestamp against the full
// history of the combined series.
func (s *TrackerService) Precedence(freq timeseries.Frequency, metric string, timestamp time.Time) (*domain.PrecedenceResult, error) {
	combined, err := s.CompleteSeries(freq)
	if err != nil {
		return nil, err
	}
	return s.analyzer.Precedence(combined, metric, timestamp)
}

// TopRecords returns the best (or worst) periods by a metric.
func (s *TrackerService) TopRecords(freq timeseries.Frequency, metric string, n int, ascending bool) ([]stats.TopRecord, error) {
	combined, err := s.CompleteSeries(freq)
	if err != nil {
		return nil, err
	}
	return s.analyzer.TopRecords(combined, metric, n, ascending)
}

// MainStatistics returns the headline indicators.
func (s *TrackerService) MainStatistics() (*domain.MainStatistics, error) {
	return s.transactions.MainStatistics()
}

// PatchStats summarises citizen growth per game version over the
// combined daily series.
func (s *TrackerService) PatchStats() ([]domain.PatchStat, error) {
	if s.versions == nil {
		return nil, errors.NewQueryError("patch stats: version feed unavailable")
	}
	combined, err := s.CompleteSeries(timeseries.Day)
	if err != nil {
		return nil, err
	}
	return s.merger.PatchStats(combined, s.versions.Intervals()), nil
}

// YearView lists the patches live during a year.
func (s *TrackerService) YearView(year int) ([]domain.YearViewRow, error) {
	if s.versions == nil {
		return nil, errors.NewQueryError("year view: version feed unavailable")
	}
	return s.versions.YearView(year), nil
}

// FundingYears lists the calendar years the combined daily series
// covers.
func (s *TrackerService) FundingYears() ([]int, error) {
	combined, err := s.CompleteSeries(timeseries.Day)
	if err != nil {
		return nil, err
	}
	return merge.FundingYears(combined), nil
}

// LoadReport summarises validation and repair outcomes across all
// three feeds.
type LoadReport struct {
	TransactionsAccepted int `json:"transactions_accepted"`
	TransactionsRejected int `json:"transactions_rejected"`
	TimestampsRepaired   int `json:"timestamps_repaired"`
	UnresolvedDates      int `json:"unresolved_dates"`
	AnnotationsAccepted  int `json:"annotations_accepted"`
	AnnotationsRejected  int `json:"annotations_rejected"`
	VersionsAccepted     int `json:"versions_accepted"`
	VersionsRejected     int `json:"versions_rejected"`
}

// LoadReport returns the outcome of the initial feed load.
func (s *TrackerService) LoadReport() LoadReport {
	report := LoadReport{
		TransactionsAccepted: s.transactions.Report.Accepted,
		TransactionsRejected: len(s.transactions.Report.Rejections),
		TimestampsRepaired:   s.transactions.Chronology.SpanRepairs + s.transactions.Chronology.GroupRepairs,
		UnresolvedDates:      len(s.transactions.Chronology.Unresolved),
	}
	if s.annotations != nil {
		report.AnnotationsAccepted = s.annotations.Report.Accepted
		report.AnnotationsRejected = len(s.annotations.Report.Rejections)
	}
	if s.versions != nil {
		report.VersionsAccepted = s.versions.Report.Accepted
		report.VersionsRejected = len(s.versions.Report.Rejections)
	}
	return report
}

// Healthy reports whether the mandatory transaction series was built.
func (s *TrackerService) Healthy() bool {
	return !s.transactions.GetTimeSeries(timeseries.Hour, false).Empty()
}
