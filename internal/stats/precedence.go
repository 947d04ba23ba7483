// Package stats answers read-only questions over a constructed
// series: precedence ranking, record tables and headline indicators.
package stats

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"fundtracker/internal/errors"
	"fundtracker/internal/timeseries"
	"fundtracker/pkg/contracts/domain"
)

// Analyzer runs distribution queries against a series. It never
// mutates its input.
type Analyzer struct {
	logger *slog.Logger
	now    func() time.Time
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.logger = l }
}

// WithClock overrides the wall clock. Tests pin it.
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Precedence ranks the metric's value at the given timestamp against
// the metric's full historical distribution. A zero timestamp
// resolves to the series' last entry. The percentile uses the
// percentile-of-score convention with ties counted at half weight;
// the rank is dense and descending, so rank 1 is the highest value
// and ties share a rank.
func (a *Analyzer) Precedence(s *timeseries.Series, metric string, timestamp time.Time) (*domain.PrecedenceResult, error) {
	if s == nil || s.Empty() {
		return nil, errors.NewQueryError("precedence: series is empty")
	}
	if !s.HasColumn(metric) {
		return nil, errors.NewQueryError("precedence: metric %q not found in series", metric)
	}

	index := s.Index()
	if timestamp.IsZero() {
		timestamp = index[len(index)-1]
	}
	pos, ok := s.Pos(timestamp)
	if !ok {
		return nil, errors.NewQueryError("precedence: timestamp %s not found in series index",
			timestamp.Format(time.RFC3339))
	}

	values := s.Column(metric)
	value := values[pos]

	higherOrEqual := 0
	higherOrEqualPrior := 0
	lower, equal, present := 0, 0, 0
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		present++
		switch {
		case v < value:
			lower++
		case v == value:
			equal++
		}
		if v >= value {
			higherOrEqual++
			if i < pos {
				higherOrEqualPrior++
			}
		}
	}

	percentile := 0.0
	if present > 0 {
		percentile = 100 * (float64(lower) + float64(equal)/2) / float64(present)
	}
	pctPrior := 0.0
	if pos > 0 {
		pctPrior = float64(higherOrEqualPrior) / float64(pos)
	}

	result := &domain.PrecedenceResult{
		Timestamp:             timestamp,
		Period:                s.LabelAt(timestamp, "period"),
		PeriodFrequency:       s.Frequency().String(),
		Metric:                metric,
		Value:                 value,
		PctBetterPeriods:      float64(higherOrEqual) / float64(s.Len()),
		PctBetterPeriodsPrior: pctPrior,
		Percentile:            percentile,
		Rank:                  denseDescendingRank(values, value),
		NPeriods:              s.Len(),
	}

	if s.HasLabel("version_id") {
		result.Version = s.LabelAt(timestamp, "version_id")
	}
	if s.HasColumn("on_sale") {
		onSale := s.Column("on_sale")[pos]
		result.OnSale = &onSale
	}
	if s.HasColumn("total_pledge") {
		result.TotalPledge = s.Column("total_pledge")[pos]
	}
	if s.HasColumn("total_citizens") {
		result.TotalCitizens = s.Column("total_citizens")[pos]
	}
	return result, nil
}

// denseDescendingRank returns 1 for the highest distinct value.
func denseDescendingRank(values []float64, value float64) int {
	distinct := make(map[float64]bool)
	for _, v := range values {
		if !math.IsNaN(v) {
			distinct[v] = true
		}
	}
	sorted := make([]float64, 0, len(distinct))
	for v := range distinct {
		sorted = append(sorted, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	for i, v := range sorted {
		if v == value {
			return i + 1
		}
	}
	return 0
}

// TopRecord is one row of a record table.
type TopRecord struct {
	Timestamp      time.Time     `json:"timestamp"`
	Period         string        `json:"period"`
	Metric         string        `json:"metric"`
	Value          float64       `json:"value"`
	TimeSinceEvent time.Duration `json:"time_since_event"`
}

// TopRecords returns the n periods with the highest (or, with
// ascending set, lowest) metric values. Missing values sort last
// either way.
func (a *Analyzer) TopRecords(s *timeseries.Series, metric string, n int, ascending bool) ([]TopRecord, error) {
	if s == nil || s.Empty() {
		return nil, errors.NewQueryError("records: series is empty")
	}
	if !s.HasColumn(metric) {
		return nil, errors.NewQueryError("records: metric %q not found in series", metric)
	}
	if n < 1 {
		return nil, errors.NewQueryError("records: n must be positive, got %d", n)
	}

	values := s.Column(metric)
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		vi, vj := values[order[i]], values[order[j]]
		if math.IsNaN(vj) {
			return !math.IsNaN(vi)
		}
		if math.IsNaN(vi) {
			return false
		}
		if ascending {
			return vi < vj
		}
		return vi > vj
	})

	if n > len(order) {
		n = len(order)
	}
	now := a.now()
	index := s.Index()
	records := make([]TopRecord, n)
	for i := 0; i < n; i++ {
		pos := order[i]
		records[i] = TopRecord{
			Timestamp:      index[pos],
			Period:         s.LabelAt(index[pos], "period"),
			Metric:         metric,
			Value:          values[pos],
			TimeSinceEvent: now.Sub(index[pos]),
		}
	}
	return records, nil
}
