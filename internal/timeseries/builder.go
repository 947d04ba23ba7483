package timeseries

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"fundtracker/internal/errors"
)

// Interpolation selects how gaps in measurement columns are filled
// when the base series is reindexed.
type Interpolation int

const (
	// Linear fills interior gaps by linear interpolation. Used for
	// continuous running totals.
	Linear Interpolation = iota
	// ForwardFill carries the last known value forward. Used for
	// categorical or interval-derived measurements.
	ForwardFill
)

// Aggregation selects how a column collapses into a coarser period.
type Aggregation int

const (
	// Sum adds the period's values. For incremental deltas.
	Sum Aggregation = iota
	// Max keeps the period's maximum. For running totals and counters.
	Max
	// CountDistinct counts distinct non-missing values in the period.
	CountDistinct
)

// Rule maps a base column onto an output column at resample time.
// One source column may feed several outputs under different names.
type Rule struct {
	Column string
	As     string
	Agg    Aggregation
}

// Observation is one validated input row keyed by timestamp.
type Observation struct {
	Timestamp time.Time
	Values    map[string]float64
}

// Builder collapses validated observations into a canonical gap-free
// base series at the deepest supported granularity and derives
// resampled views from it. The base series is the single source of
// truth: every requested frequency is computed from it, never from
// the raw input again.
type Builder struct {
	measurements  []string
	summables     []string
	baseFreq      Frequency
	interpolation Interpolation
	rules         []Rule
	weekAnchor    time.Weekday
	logger        *slog.Logger

	base *Series
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithInterpolation sets the gap-fill method for measurement columns.
func WithInterpolation(i Interpolation) BuilderOption {
	return func(b *Builder) { b.interpolation = i }
}

// WithBaseFrequency sets the deepest granularity of the base series.
func WithBaseFrequency(f Frequency) BuilderOption {
	return func(b *Builder) { b.baseFreq = f }
}

// WithWeekAnchor sets the weekday on which weekly periods end.
func WithWeekAnchor(d time.Weekday) BuilderOption {
	return func(b *Builder) { b.weekAnchor = d }
}

// WithLogger sets the builder's logger.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder for the given measurement columns,
// their paired delta columns and resample rules.
func NewBuilder(measurements, summables []string, rules []Rule, opts ...BuilderOption) *Builder {
	b := &Builder{
		measurements:  measurements,
		summables:     summables,
		baseFreq:      Hour,
		interpolation: Linear,
		rules:         rules,
		weekAnchor:    time.Sunday,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.rules) == 0 {
		b.logger.Warn("builder created without aggregation rules, using hardcoded defaults")
		b.rules = []Rule{
			{Column: "delta_pledge", As: "delta_pledge", Agg: Sum},
			{Column: "delta_citizens", As: "delta_citizens", Agg: Sum},
			{Column: "total_pledge_in_year", As: "total_pledge_in_year", Agg: Max},
			{Column: "total_citizens_in_year", As: "total_citizens_in_year", Agg: Max},
		}
	}
	return b
}

// Base returns the base series, or nil if Process has not run.
func (b *Builder) Base() *Series {
	return b.base
}

// Process builds the base series: deduplicates observations sharing a
// timestamp (keeping the latest), reindexes onto a continuous grid at
// the base frequency, fills measurement gaps, recomputes missing
// delta columns from their paired totals and appends per-calendar-
// year running totals.
func (b *Builder) Process(observations []Observation) error {
	if len(observations) == 0 {
		return errors.NewConfigurationError("no observations to process")
	}

	type keyed struct {
		t   time.Time
		row int
		obs Observation
	}
	rows := make([]keyed, len(observations))
	for i, obs := range observations {
		rows[i] = keyed{t: b.baseFreq.Truncate(obs.Timestamp), row: i, obs: obs}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].t.Before(rows[j].t) })

	// keep the latest record for each timestamp
	byTime := make(map[time.Time]Observation, len(rows))
	for _, r := range rows {
		byTime[r.t] = r.obs
	}

	start, end := rows[0].t, rows[len(rows)-1].t
	var index []time.Time
	for t := start; !t.After(end); t = b.baseFreq.Step(t) {
		index = append(index, t)
	}

	base := NewSeries(index, b.baseFreq)
	for _, m := range b.measurements {
		values := nanSlice(len(index))
		for i, t := range index {
			if obs, ok := byTime[t]; ok {
				if v, ok := obs.Values[m]; ok {
					values[i] = v
				}
			}
		}
		switch b.interpolation {
		case ForwardFill:
			forwardFill(values)
		default:
			interpolateLinear(values)
		}
		base.SetColumn(m, values)
	}

	b.recomputeSummables(base)
	b.addInYearTotals(base)

	b.base = base
	return nil
}

// recomputeSummables derives each missing delta column as the first
// difference of its paired total column. The first period's delta is
// the total itself: there is no prior total to subtract.
func (b *Builder) recomputeSummables(s *Series) {
	for _, summable := range b.summables {
		if s.HasColumn(summable) || !strings.HasPrefix(summable, "delta_") {
			continue
		}
		total := "total_" + strings.TrimPrefix(summable, "delta_")
		totals := s.Column(total)
		if totals == nil {
			continue
		}
		deltas := nanSlice(s.Len())
		for i := range totals {
			if i == 0 {
				deltas[i] = totals[i]
				continue
			}
			deltas[i] = totals[i] - totals[i-1]
		}
		s.SetColumn(summable, deltas)
	}
}

// addInYearTotals appends per-calendar-year running totals for each
// delta column. These reset to zero at every year boundary.
func (b *Builder) addInYearTotals(s *Series) {
	for _, summable := range b.summables {
		if !strings.HasPrefix(summable, "delta_") {
			continue
		}
		deltas := s.Column(summable)
		if deltas == nil {
			continue
		}
		name := "total_" + strings.TrimPrefix(summable, "delta_") + "_in_year"
		s.SetColumn(name, cumulativeSumByYear(s.Index(), deltas))
	}
}

// Get resamples the base series to the target frequency and derives
// running totals, ratio averages, trailing rolling sums over
// lastPeriods periods (current period excluded) and, optionally, the
// calendar attribute columns appropriate for the frequency.
func (b *Builder) Get(freq Frequency, lastPeriods int, appendTimeMetrics bool) (*Series, error) {
	if b.base == nil {
		return nil, errors.NewConfigurationError("base series has not been built")
	}
	if freq.rank() < b.baseFreq.rank() {
		return nil, errors.NewConfigurationError(
			"cannot resample %s base series to finer frequency %s", b.baseFreq, freq)
	}
	if lastPeriods < 1 {
		return nil, errors.NewConfigurationError("lastPeriods must be positive, got %d", lastPeriods)
	}

	b.logger.Info("providing time series at desired frequency", "frequency", freq.String())

	out, err := b.resample(freq)
	if err != nil {
		return nil, err
	}

	b.addTotals(out)
	b.addAverages(out)
	b.addRollingTotals(out, lastPeriods)

	if appendTimeMetrics {
		AddTimeMetrics(out)
	}

	return out, nil
}

// resample collapses the base series into buckets at the target
// frequency using the configured per-column rules, then forward-fills
// any bucket left without a value.
func (b *Builder) resample(freq Frequency) (*Series, error) {
	baseIndex := b.base.Index()

	var buckets []time.Time
	positions := make([]int, len(baseIndex))
	seen := make(map[time.Time]int)
	for i, t := range baseIndex {
		bucket := freq.Bucket(t, b.weekAnchor)
		pos, ok := seen[bucket]
		if !ok {
			pos = len(buckets)
			seen[bucket] = pos
			buckets = append(buckets, bucket)
		}
		positions[i] = pos
	}

	out := NewSeries(buckets, freq)
	for _, rule := range b.rules {
		source := b.base.Column(rule.Column)
		if source == nil {
			return nil, errors.NewConfigurationError("aggregation rule references unknown column %q", rule.Column)
		}
		values, err := aggregate(source, positions, len(buckets), rule.Agg)
		if err != nil {
			return nil, fmt.Errorf("aggregate %q: %w", rule.Column, err)
		}
		forwardFill(values)
		out.SetColumn(rule.As, values)
	}

	return out, nil
}

func aggregate(source []float64, positions []int, n int, agg Aggregation) ([]float64, error) {
	out := nanSlice(n)
	switch agg {
	case Sum:
		for i, v := range source {
			if math.IsNaN(v) {
				continue
			}
			p := positions[i]
			if math.IsNaN(out[p]) {
				out[p] = 0
			}
			out[p] += v
		}
	case Max:
		for i, v := range source {
			if math.IsNaN(v) {
				continue
			}
			p := positions[i]
			if math.IsNaN(out[p]) || v > out[p] {
				out[p] = v
			}
		}
	case CountDistinct:
		distinct := make([]map[float64]struct{}, n)
		for i, v := range source {
			if math.IsNaN(v) {
				continue
			}
			p := positions[i]
			if distinct[p] == nil {
				distinct[p] = make(map[float64]struct{})
			}
			distinct[p][v] = struct{}{}
		}
		for p, set := range distinct {
			if set != nil {
				out[p] = float64(len(set))
			}
		}
	default:
		return nil, fmt.Errorf("unknown aggregation %d", agg)
	}
	return out, nil
}

// addTotals appends running cumulative totals for each delta column,
// skipped when a total column of the same name already exists.
func (b *Builder) addTotals(s *Series) {
	for _, summable := range b.summables {
		if !strings.HasPrefix(summable, "delta_") {
			continue
		}
		total := "total_" + strings.TrimPrefix(summable, "delta_")
		if s.HasColumn(total) {
			continue
		}
		deltas := s.Column(summable)
		if deltas == nil {
			continue
		}
		s.SetColumn(total, cumulativeSum(deltas))
	}
}

// addAverages appends the cumulative and per-period pledge-per-citizen
// ratios. Division by zero yields NaN, never an error.
func (b *Builder) addAverages(s *Series) {
	if s.HasColumn("total_pledge") && s.HasColumn("total_citizens") {
		s.SetColumn("cumulative_avg_pledge_total", ratio(s.Column("total_pledge"), s.Column("total_citizens")))
	}
	if s.HasColumn("delta_pledge") && s.HasColumn("delta_citizens") {
		s.SetColumn("local_avg_pledge_total", ratio(s.Column("delta_pledge"), s.Column("delta_citizens")))
	}
}

// addRollingTotals appends trailing rolling sums over the previous
// lastPeriods periods for each delta column. The window is shifted by
// one so the current period never contributes to its own value.
func (b *Builder) addRollingTotals(s *Series, lastPeriods int) {
	for _, summable := range b.summables {
		values := s.Column(summable)
		if values == nil {
			continue
		}
		name := fmt.Sprintf("%s_prior_%d_periods", strings.TrimPrefix(summable, "delta_"), lastPeriods)
		s.SetColumn(name, rollingPriorSum(values, lastPeriods))
	}
}

// AddTimeMetrics appends calendar attribute columns down to the
// granularity implied by the series frequency, plus the formatted
// period label. An annual series receives only the year; an hourly
// series everything down to the hour.
func AddTimeMetrics(s *Series) {
	n := s.Len()
	index := s.Index()
	rank := s.Frequency().rank()

	if rank <= 8 {
		col := make([]float64, n)
		for i, t := range index {
			col[i] = float64(t.Year())
		}
		s.SetColumn("year", col)
	}
	if rank <= 7 {
		col := make([]float64, n)
		for i, t := range index {
			col[i] = float64((int(t.Month())-1)/3 + 1)
		}
		s.SetColumn("quarter", col)
	}
	if rank <= 6 {
		col := make([]float64, n)
		for i, t := range index {
			col[i] = float64(t.Month())
		}
		s.SetColumn("month", col)
	}
	if rank <= 5 {
		col := make([]float64, n)
		for i, t := range index {
			_, week := t.ISOWeek()
			col[i] = float64(week)
		}
		s.SetColumn("week_of_year", col)
	}
	if rank <= 4 {
		dayOfYear := make([]float64, n)
		dayOfWeek := make([]float64, n)
		isWeekend := make([]float64, n)
		for i, t := range index {
			dayOfYear[i] = float64(t.YearDay())
			// Monday=0 .. Sunday=6
			dow := (int(t.Weekday()) + 6) % 7
			dayOfWeek[i] = float64(dow)
			if dow >= 5 {
				isWeekend[i] = 1
			}
		}
		s.SetColumn("day_of_year", dayOfYear)
		s.SetColumn("day_of_week", dayOfWeek)
		s.SetColumn("is_weekend", isWeekend)
	}
	if s.Frequency() == Hour {
		col := make([]float64, n)
		for i, t := range index {
			col[i] = float64(t.Hour())
		}
		s.SetColumn("hour", col)
	}

	labels := make([]string, n)
	for i, t := range index {
		labels[i] = s.Frequency().FormatPeriod(t)
	}
	s.SetLabel("period", labels)
}
