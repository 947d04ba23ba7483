package timeseries

import (
	"math"
	"sort"
	"time"

	"fundtracker/internal/errors"
)

// Series is a time-indexed table of float64 columns plus optional
// string-valued label columns sharing the same index. The index is
// strictly increasing; missing values are NaN. A Series produced by a
// Builder or Merger is never mutated by readers.
type Series struct {
	index      []time.Time
	order      []string
	data       map[string][]float64
	labelOrder []string
	labels     map[string][]string
	freq       Frequency
}

// NewSeries creates an empty series over the given index.
func NewSeries(index []time.Time, freq Frequency) *Series {
	return &Series{
		index:  index,
		data:   make(map[string][]float64),
		labels: make(map[string][]string),
		freq:   freq,
	}
}

// Len returns the number of periods in the series.
func (s *Series) Len() int {
	return len(s.index)
}

// Empty reports whether the series has no periods.
func (s *Series) Empty() bool {
	return len(s.index) == 0
}

// Frequency returns the resolution of the index.
func (s *Series) Frequency() Frequency {
	return s.freq
}

// Index returns the time index. Callers must not modify it.
func (s *Series) Index() []time.Time {
	return s.index
}

// Columns returns numeric column names in insertion order.
func (s *Series) Columns() []string {
	return s.order
}

// LabelColumns returns label column names in insertion order.
func (s *Series) LabelColumns() []string {
	return s.labelOrder
}

// HasColumn reports whether a numeric column exists.
func (s *Series) HasColumn(name string) bool {
	_, ok := s.data[name]
	return ok
}

// HasLabel reports whether a label column exists.
func (s *Series) HasLabel(name string) bool {
	_, ok := s.labels[name]
	return ok
}

// Column returns the values of a numeric column, or nil if absent.
// Callers must not modify the returned slice.
func (s *Series) Column(name string) []float64 {
	return s.data[name]
}

// Label returns the values of a label column, or nil if absent.
func (s *Series) Label(name string) []string {
	return s.labels[name]
}

// SetColumn adds or replaces a numeric column. The slice length must
// match the index.
func (s *Series) SetColumn(name string, values []float64) {
	if len(values) != len(s.index) {
		panic("timeseries: column length does not match index")
	}
	if _, exists := s.data[name]; !exists {
		s.order = append(s.order, name)
	}
	s.data[name] = values
}

// SetLabel adds or replaces a label column.
func (s *Series) SetLabel(name string, values []string) {
	if len(values) != len(s.index) {
		panic("timeseries: label length does not match index")
	}
	if _, exists := s.labels[name]; !exists {
		s.labelOrder = append(s.labelOrder, name)
	}
	s.labels[name] = values
}

// Pos returns the index position of a timestamp, if present.
func (s *Series) Pos(t time.Time) (int, bool) {
	i := sort.Search(len(s.index), func(i int) bool { return !s.index[i].Before(t) })
	if i < len(s.index) && s.index[i].Equal(t) {
		return i, true
	}
	return 0, false
}

// At returns the value of a numeric column at a timestamp.
func (s *Series) At(t time.Time, column string) (float64, error) {
	vals, ok := s.data[column]
	if !ok {
		return 0, errors.NewQueryError("metric %q not found in series", column)
	}
	i, ok := s.Pos(t)
	if !ok {
		return 0, errors.NewQueryError("timestamp %s not found in series index", t.Format(time.RFC3339))
	}
	return vals[i], nil
}

// LabelAt returns the value of a label column at a timestamp, or ""
// if the column or timestamp is absent.
func (s *Series) LabelAt(t time.Time, column string) string {
	vals, ok := s.labels[column]
	if !ok {
		return ""
	}
	i, ok := s.Pos(t)
	if !ok {
		return ""
	}
	return vals[i]
}

// MaxTimestamp returns the last index entry.
func (s *Series) MaxTimestamp() (time.Time, bool) {
	if len(s.index) == 0 {
		return time.Time{}, false
	}
	return s.index[len(s.index)-1], true
}

// Truncate returns a view of the series cut to index entries at or
// before max.
func (s *Series) Truncate(max time.Time) *Series {
	n := sort.Search(len(s.index), func(i int) bool { return s.index[i].After(max) })
	out := NewSeries(s.index[:n], s.freq)
	for _, name := range s.order {
		out.SetColumn(name, s.data[name][:n])
	}
	for _, name := range s.labelOrder {
		out.SetLabel(name, s.labels[name][:n])
	}
	return out
}

// nanSlice returns a slice of n NaNs.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// forwardFill replaces each NaN with the most recent non-NaN value.
// Leading NaNs are left in place.
func forwardFill(values []float64) {
	last := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			if !math.IsNaN(last) {
				values[i] = last
			}
		} else {
			last = v
		}
	}
}

// interpolateLinear fills interior NaN runs by linear interpolation
// between the surrounding valid points; NaNs after the last valid
// point take its value, leading NaNs are left in place.
func interpolateLinear(values []float64) {
	prev := -1
	for i := 0; i < len(values); i++ {
		if math.IsNaN(values[i]) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			span := float64(i - prev)
			step := (values[i] - values[prev]) / span
			for j := prev + 1; j < i; j++ {
				values[j] = values[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	if prev >= 0 {
		for j := prev + 1; j < len(values); j++ {
			values[j] = values[prev]
		}
	}
}

// cumulativeSum accumulates values, skipping NaNs. A NaN input
// position receives the running total accumulated so far.
func cumulativeSum(values []float64) []float64 {
	out := make([]float64, len(values))
	total := 0.0
	for i, v := range values {
		if !math.IsNaN(v) {
			total += v
		}
		out[i] = total
	}
	return out
}

// cumulativeSumByYear accumulates values with a reset at each
// calendar-year boundary of the index.
func cumulativeSumByYear(index []time.Time, values []float64) []float64 {
	out := make([]float64, len(values))
	total := 0.0
	year := 0
	for i, v := range values {
		if y := index[i].Year(); y != year {
			year = y
			total = 0
		}
		if !math.IsNaN(v) {
			total += v
		}
		out[i] = total
	}
	return out
}

// rollingPriorSum computes a trailing rolling sum over the previous
// window periods, excluding the current one: out[i] covers
// values[i-window .. i-1]. The first entry has no history and is NaN.
func rollingPriorSum(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		sum := 0.0
		for j := lo; j < i; j++ {
			if !math.IsNaN(values[j]) {
				sum += values[j]
			}
		}
		out[i] = sum
	}
	return out
}

// ratio divides numerator by denominator elementwise, yielding NaN
// where the denominator is zero or either side is NaN.
func ratio(numerator, denominator []float64) []float64 {
	out := nanSlice(len(numerator))
	for i := range numerator {
		n, d := numerator[i], denominator[i]
		if math.IsNaN(n) || math.IsNaN(d) || d == 0 {
			continue
		}
		out[i] = n / d
	}
	return out
}
