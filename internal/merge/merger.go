// Package merge joins the transaction, annotation and version series
// into one table on a shared time axis.
package merge

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"fundtracker/internal/errors"
	"fundtracker/internal/timeseries"
	"fundtracker/pkg/contracts/domain"
)

// Merger outer-joins resampled series and propagates the last known
// sale and version state forward. The transaction series is the
// anchor: the merged output never extends past its last timestamp,
// because a later date would claim knowledge the accounting snapshot
// does not have.
type Merger struct {
	logger *slog.Logger
}

// NewMerger creates a Merger.
func NewMerger(logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{logger: logger}
}

// Combine joins the three sources on the union of their time indexes,
// forward-fills the gaps, appends calendar metrics and drops rows
// that precede the first computed pledge delta. Annotation and
// version series may be nil or empty; the transaction series must
// not be.
func (m *Merger) Combine(transactions, annotations, versions *timeseries.Series) (*timeseries.Series, error) {
	if transactions == nil || transactions.Empty() {
		return nil, errors.NewQueryError("combine: transaction series is empty")
	}
	maxDate, _ := transactions.MaxTimestamp()

	sources := []*timeseries.Series{transactions, annotations, versions}
	index := unionIndex(sources)

	combined := timeseries.NewSeries(index, transactions.Frequency())
	for _, src := range sources {
		if src == nil || src.Empty() {
			continue
		}
		alignSource(combined, src)
	}

	for _, name := range combined.Columns() {
		values := combined.Column(name)
		forwardFillFloats(values)
		combined.SetColumn(name, values)
	}
	for _, name := range combined.LabelColumns() {
		labels := combined.Label(name)
		forwardFillLabels(labels)
		combined.SetLabel(name, labels)
	}

	if unionMax, ok := combined.MaxTimestamp(); ok && unionMax.After(maxDate) {
		m.logger.Warn("dates beyond the transaction horizon introduced by series combination",
			"combined_max", unionMax.Format(time.RFC3339),
			"transaction_max", maxDate.Format(time.RFC3339))
	}
	combined = combined.Truncate(maxDate)

	timeseries.AddTimeMetrics(combined)

	return dropLeadingWithoutDelta(combined), nil
}

// unionIndex merges the source indexes, sorted and deduplicated.
func unionIndex(sources []*timeseries.Series) []time.Time {
	seen := make(map[time.Time]bool)
	var index []time.Time
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, t := range src.Index() {
			if seen[t] {
				continue
			}
			seen[t] = true
			index = append(index, t)
		}
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })
	return index
}

// alignSource copies the source's columns onto the combined index;
// timestamps the source does not cover stay missing.
func alignSource(combined, src *timeseries.Series) {
	positions := make([]int, combined.Len())
	for i, t := range combined.Index() {
		if p, ok := src.Pos(t); ok {
			positions[i] = p
		} else {
			positions[i] = -1
		}
	}

	for _, name := range src.Columns() {
		source := src.Column(name)
		values := make([]float64, combined.Len())
		for i, p := range positions {
			if p >= 0 {
				values[i] = source[p]
			} else {
				values[i] = math.NaN()
			}
		}
		combined.SetColumn(name, values)
	}
	for _, name := range src.LabelColumns() {
		source := src.Label(name)
		labels := make([]string, combined.Len())
		for i, p := range positions {
			if p >= 0 {
				labels[i] = source[p]
			}
		}
		combined.SetLabel(name, labels)
	}
}

// dropLeadingWithoutDelta removes rows that precede the first pledge
// delta. Annotations and versions can start earlier than the
// transaction history; those rows carry no funding signal.
func dropLeadingWithoutDelta(s *timeseries.Series) *timeseries.Series {
	if !s.HasColumn("delta_pledge") {
		return s
	}
	deltas := s.Column("delta_pledge")
	first := len(deltas)
	for i, v := range deltas {
		if !math.IsNaN(v) {
			first = i
			break
		}
	}
	if first == 0 {
		return s
	}

	index := s.Index()[first:]
	out := timeseries.NewSeries(index, s.Frequency())
	for _, name := range s.Columns() {
		out.SetColumn(name, append([]float64(nil), s.Column(name)[first:]...))
	}
	for _, name := range s.LabelColumns() {
		out.SetLabel(name, append([]string(nil), s.Label(name)[first:]...))
	}
	return out
}

func forwardFillFloats(values []float64) {
	last := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = last
		} else {
			last = v
		}
	}
}

func forwardFillLabels(labels []string) {
	last := ""
	for i, l := range labels {
		if l == "" {
			labels[i] = last
		} else {
			last = l
		}
	}
}

// PatchStats summarises the merged series per game version: first
// live date, average new citizens per day and duration in days. The
// window starts at the first major release so the pre-campaign
// prototype era does not skew the averages.
func (m *Merger) PatchStats(s *timeseries.Series, intervals []domain.VersionInterval) []domain.PatchStat {
	if s == nil || s.Empty() || !s.HasLabel("version_id") {
		return nil
	}

	var firstMajor time.Time
	found := false
	for _, iv := range intervals {
		if iv.Major >= 1 && (!found || iv.DateStart.Before(firstMajor)) {
			firstMajor = iv.DateStart
			found = true
		}
	}
	if !found {
		m.logger.Warn("no major release in version intervals, patch stats unavailable")
		return nil
	}

	type acc struct {
		first    time.Time
		citizens float64
		days     int
		duration float64
	}
	byVersion := make(map[string]*acc)
	var order []string

	index := s.Index()
	versionIDs := s.Label("version_id")
	deltas := columnOrNil(s, "delta_citizens")
	durations := columnOrNil(s, "days_since_current_patch_launch")

	for i, t := range index {
		if t.Before(firstMajor) || versionIDs[i] == "" {
			continue
		}
		a, ok := byVersion[versionIDs[i]]
		if !ok {
			a = &acc{first: t}
			byVersion[versionIDs[i]] = a
			order = append(order, versionIDs[i])
		}
		if deltas != nil && !math.IsNaN(deltas[i]) {
			a.citizens += deltas[i]
		}
		if durations != nil && !math.IsNaN(durations[i]) && durations[i] > a.duration {
			a.duration = durations[i]
		}
		a.days++
	}

	stats := make([]domain.PatchStat, 0, len(order))
	for _, version := range order {
		a := byVersion[version]
		stats = append(stats, domain.PatchStat{
			Version:           version,
			Date:              a.first,
			NewCitizensPerDay: a.citizens / float64(a.days),
			DurationDays:      int(a.duration),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Date.Before(stats[j].Date) })
	return stats
}

// FundingYears lists the distinct calendar years the merged series
// covers, ascending.
func FundingYears(s *timeseries.Series) []int {
	if s == nil {
		return nil
	}
	seen := make(map[int]bool)
	var years []int
	for _, t := range s.Index() {
		if !seen[t.Year()] {
			seen[t.Year()] = true
			years = append(years, t.Year())
		}
	}
	sort.Ints(years)
	return years
}

func columnOrNil(s *timeseries.Series, name string) []float64 {
	if !s.HasColumn(name) {
		return nil
	}
	return s.Column(name)
}
