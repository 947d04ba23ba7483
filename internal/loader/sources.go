package loader

import (
	"context"
	"log/slog"
	"time"

	"fundtracker/internal/chronology"
	"fundtracker/internal/records"
	"fundtracker/internal/stats"
	"fundtracker/internal/timeseries"
	"fundtracker/internal/versions"
	"fundtracker/pkg/contracts/domain"
)

// SourceOption configures a feed source.
type SourceOption func(*sourceConfig)

type sourceConfig struct {
	logger         *slog.Logger
	now            func() time.Time
	rollingPeriods int
	weekAnchor     time.Weekday
}

func newSourceConfig(opts []SourceOption) sourceConfig {
	cfg := sourceConfig{
		logger:         slog.Default(),
		now:            time.Now,
		rollingPeriods: 30,
		weekAnchor:     time.Sunday,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) SourceOption {
	return func(c *sourceConfig) { c.logger = l }
}

// WithClock overrides the wall clock used for sentinel resolution and
// freshness statistics.
func WithClock(now func() time.Time) SourceOption {
	return func(c *sourceConfig) { c.now = now }
}

// WithRollingPeriods sets the window of the rolling prior-period
// totals appended at resample time.
func WithRollingPeriods(n int) SourceOption {
	return func(c *sourceConfig) { c.rollingPeriods = n }
}

// WithWeekAnchor sets the weekday weekly buckets close on.
func WithWeekAnchor(d time.Weekday) SourceOption {
	return func(c *sourceConfig) { c.weekAnchor = d }
}

// TransactionSource parses, repairs and constructs the hourly
// transaction feed.
type TransactionSource struct {
	cfg      sourceConfig
	builder  *timeseries.Builder
	analyzer *stats.Analyzer

	// Report carries the per-row validation outcome of the last load.
	Report records.BatchReport
	// Chronology carries the timestamp repair outcome of the last load.
	Chronology chronology.Report
}

// NewTransactionSource loads the transaction feed file. Read failures
// are fatal; per-row validation failures and unrepairable timestamps
// are logged and excluded.
func NewTransactionSource(ctx context.Context, path string, opts ...SourceOption) (*TransactionSource, error) {
	cfg := newSourceConfig(opts)
	cfg.logger.Info("loading transaction feed", "path", path)

	raws, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}

	validator := records.NewValidator(
		records.WithLogger(cfg.logger),
		records.WithClock(cfg.now),
	)
	txs, report := validator.ValidateTransactions(ctx, raws)

	repairer := chronology.NewRepairer(cfg.logger)
	txs, chronReport := repairer.Repair(txs)

	builder := timeseries.NewBuilder(
		[]string{"total_pledge", "total_citizens"},
		[]string{"delta_pledge", "delta_citizens"},
		[]timeseries.Rule{
			{Column: "delta_pledge", As: "delta_pledge", Agg: timeseries.Sum},
			{Column: "delta_citizens", As: "delta_citizens", Agg: timeseries.Sum},
			{Column: "total_pledge_in_year", As: "total_pledge_in_year", Agg: timeseries.Max},
			{Column: "total_citizens_in_year", As: "total_citizens_in_year", Agg: timeseries.Max},
		},
		timeseries.WithBaseFrequency(timeseries.Hour),
		timeseries.WithInterpolation(timeseries.Linear),
		timeseries.WithWeekAnchor(cfg.weekAnchor),
		timeseries.WithLogger(cfg.logger),
	)

	observations := make([]timeseries.Observation, len(txs))
	for i, tx := range txs {
		observations[i] = timeseries.Observation{
			Timestamp: tx.Timestamp,
			Values: map[string]float64{
				"total_pledge":   tx.TotalPledge,
				"total_citizens": float64(tx.TotalCitizens),
			},
		}
	}
	if err := builder.Process(observations); err != nil {
		cfg.logger.Error("transaction series construction failed", "error", err)
	}

	return &TransactionSource{
		cfg:        cfg,
		builder:    builder,
		analyzer:   stats.NewAnalyzer(stats.WithLogger(cfg.logger), stats.WithClock(cfg.now)),
		Report:     report,
		Chronology: chronReport,
	}, nil
}

// GetTimeSeries resamples the transaction series. Failures are logged
// and yield an empty series, never an error; a dashboard render must
// not die because one panel's query was off.
func (s *TransactionSource) GetTimeSeries(freq timeseries.Frequency, appendTimeMetrics bool) *timeseries.Series {
	series, err := s.builder.Get(freq, s.cfg.rollingPeriods, appendTimeMetrics)
	if err != nil {
		s.cfg.logger.Error("transaction series query failed", "freq", freq.String(), "error", err)
		return timeseries.NewSeries(nil, freq)
	}
	return series
}

// MainStatistics computes the headline indicators from the hourly
// series.
func (s *TransactionSource) MainStatistics() (*domain.MainStatistics, error) {
	hourly, err := s.builder.Get(timeseries.Hour, s.cfg.rollingPeriods, true)
	if err != nil {
		return nil, err
	}
	return s.analyzer.Summarize(hourly)
}

// AnnotationSource parses the daily sale and milestone markers.
type AnnotationSource struct {
	cfg     sourceConfig
	builder *timeseries.Builder

	Report records.BatchReport
}

// NewAnnotationSource loads the annotation feed file. The feed's
// first column is a free-text date header and is renamed before
// parsing.
func NewAnnotationSource(path string, opts ...SourceOption) (*AnnotationSource, error) {
	cfg := newSourceConfig(opts)
	cfg.logger.Info("loading annotation feed", "path", path)

	raws, err := ReadRecords(path, WithFirstColumn("datetime_utc"))
	if err != nil {
		return nil, err
	}

	validator := records.NewValidator(
		records.WithLogger(cfg.logger),
		records.WithClock(cfg.now),
	)
	days, report := validator.ValidateAnnotations(raws)

	builder := timeseries.NewBuilder(
		[]string{"on_sale", "store_event", "concept_launch", "milestone", "has_comment"},
		[]string{"on_sale"},
		[]timeseries.Rule{
			{Column: "on_sale", As: "on_sale", Agg: timeseries.Sum},
			{Column: "store_event", As: "store_event", Agg: timeseries.Sum},
			{Column: "concept_launch", As: "concept_launch", Agg: timeseries.Sum},
			{Column: "milestone", As: "milestone", Agg: timeseries.Sum},
			{Column: "has_comment", As: "has_comment", Agg: timeseries.Sum},
		},
		timeseries.WithBaseFrequency(timeseries.Day),
		timeseries.WithInterpolation(timeseries.ForwardFill),
		timeseries.WithWeekAnchor(cfg.weekAnchor),
		timeseries.WithLogger(cfg.logger),
	)

	observations := make([]timeseries.Observation, len(days))
	for i, day := range days {
		observations[i] = timeseries.Observation{
			Timestamp: day.Date,
			Values: map[string]float64{
				"on_sale":        boolToFloat(day.OnSale),
				"store_event":    boolToFloat(day.StoreEvent),
				"concept_launch": boolToFloat(day.ConceptLaunch),
				"milestone":      boolToFloat(day.Milestone),
				"has_comment":    boolToFloat(day.HasComment),
			},
		}
	}
	if err := builder.Process(observations); err != nil {
		cfg.logger.Error("annotation series construction failed", "error", err)
	}

	return &AnnotationSource{cfg: cfg, builder: builder, Report: report}, nil
}

// GetTimeSeries resamples the annotation series; failures yield an
// empty series.
func (s *AnnotationSource) GetTimeSeries(freq timeseries.Frequency, appendTimeMetrics bool) *timeseries.Series {
	series, err := s.builder.Get(freq, s.cfg.rollingPeriods, appendTimeMetrics)
	if err != nil {
		s.cfg.logger.Error("annotation series query failed", "freq", freq.String(), "error", err)
		return timeseries.NewSeries(nil, freq)
	}
	return series
}

// VersionSource parses the game-version release intervals.
type VersionSource struct {
	cfg       sourceConfig
	builder   *timeseries.Builder
	expander  *versions.Expander
	intervals []domain.VersionInterval

	Report records.BatchReport
}

// NewVersionSource loads the version feed file.
func NewVersionSource(path string, opts ...SourceOption) (*VersionSource, error) {
	cfg := newSourceConfig(opts)
	cfg.logger.Info("loading version feed", "path", path)

	raws, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}

	validator := records.NewValidator(
		records.WithLogger(cfg.logger),
		records.WithClock(cfg.now),
	)
	intervals, report := validator.ValidateVersionIntervals(raws)

	expander := versions.NewExpander(versions.WithLogger(cfg.logger), versions.WithClock(cfg.now))
	builder := timeseries.NewBuilder(
		versions.Measurements(),
		nil,
		versions.AggregationRules(),
		timeseries.WithBaseFrequency(timeseries.Day),
		timeseries.WithInterpolation(timeseries.ForwardFill),
		timeseries.WithWeekAnchor(cfg.weekAnchor),
		timeseries.WithLogger(cfg.logger),
	)
	if err := builder.Process(versions.Observations(expander.Expand(intervals))); err != nil {
		cfg.logger.Error("version series construction failed", "error", err)
	}

	return &VersionSource{
		cfg:       cfg,
		builder:   builder,
		expander:  expander,
		intervals: intervals,
		Report:    report,
	}, nil
}

// Intervals returns the validated release intervals sorted by start
// date.
func (s *VersionSource) Intervals() []domain.VersionInterval {
	return s.intervals
}

// GetTimeSeries resamples the version series; failures yield an empty
// series.
func (s *VersionSource) GetTimeSeries(freq timeseries.Frequency, appendTimeMetrics bool) *timeseries.Series {
	series, err := s.builder.Get(freq, s.cfg.rollingPeriods, appendTimeMetrics)
	if err != nil {
		s.cfg.logger.Error("version series query failed", "freq", freq.String(), "error", err)
		return timeseries.NewSeries(nil, freq)
	}
	return series
}

// GetTimeSeriesEnriched resamples the version series and swaps the
// numeric version key for its human-readable label.
func (s *VersionSource) GetTimeSeriesEnriched(freq timeseries.Frequency, appendTimeMetrics bool) *timeseries.Series {
	series := s.GetTimeSeries(freq, appendTimeMetrics)
	versions.Enrich(series, versions.PatchCountVersionMap(s.intervals))
	return series
}

// YearView lists the patches live during a year; a zero year defaults
// to the latest one on record.
func (s *VersionSource) YearView(year int) []domain.YearViewRow {
	return s.expander.YearView(s.intervals, year)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
