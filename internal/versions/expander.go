// Package versions turns game-version release intervals into dense
// per-day series and convenience views over them.
package versions

import (
	"log/slog"
	"sort"
	"strconv"
	"time"

	"fundtracker/internal/timeseries"
	"fundtracker/pkg/contracts/domain"
)

// Expander expands start/end version intervals into one row per
// calendar day. The source feed stores only interval boundaries; the
// expansion is what makes the version dimension joinable against the
// daily transaction series.
type Expander struct {
	logger *slog.Logger
	now    func() time.Time
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExpanderOption {
	return func(e *Expander) { e.logger = l }
}

// WithClock overrides the wall clock. Tests pin it.
func WithClock(now func() time.Time) ExpanderOption {
	return func(e *Expander) { e.now = now }
}

// NewExpander creates an Expander.
func NewExpander(opts ...ExpanderOption) *Expander {
	e := &Expander{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExpandInterval produces one row per calendar day in the closed
// range [DateStart, DateEnd], carrying the interval's labels plus a
// zero-based days-since-launch counter.
func (e *Expander) ExpandInterval(iv domain.VersionInterval) []domain.VersionDay {
	days := make([]domain.VersionDay, 0, iv.Days())
	for d, cur := 0, iv.DateStart; !cur.After(iv.DateEnd); d, cur = d+1, cur.AddDate(0, 0, 1) {
		days = append(days, domain.VersionDay{
			Date:                        cur,
			Version:                     iv.Version,
			Major:                       iv.Major,
			Minor:                       iv.Minor,
			Patch:                       iv.Patch,
			PatchCount:                  iv.PatchCount,
			DaysSinceCurrentPatchLaunch: d,
		})
	}
	return days
}

// Expand sorts the intervals by start date and concatenates their
// expansions into a dense daily sequence. Overlapping intervals
// violate the feed's contract; the violation is logged and every
// interval is still expanded as given.
func (e *Expander) Expand(intervals []domain.VersionInterval) []domain.VersionDay {
	sorted := make([]domain.VersionInterval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DateStart.Before(sorted[j].DateStart)
	})

	var out []domain.VersionDay
	for i, iv := range sorted {
		if i > 0 && !sorted[i-1].DateEnd.Before(iv.DateStart) {
			e.logger.Error("version intervals overlap",
				"version", iv.Version,
				"date_start", iv.DateStart.Format("2006-01-02"),
				"previous_end", sorted[i-1].DateEnd.Format("2006-01-02"))
		}
		out = append(out, e.ExpandInterval(iv)...)
	}
	return out
}

// Observations converts expanded days into builder input rows.
func Observations(days []domain.VersionDay) []timeseries.Observation {
	obs := make([]timeseries.Observation, len(days))
	for i, d := range days {
		obs[i] = timeseries.Observation{
			Timestamp: d.Date,
			Values: map[string]float64{
				"days_since_current_patch_launch": float64(d.DaysSinceCurrentPatchLaunch),
				"patch_count":                     float64(d.PatchCount),
			},
		}
	}
	return obs
}

// Measurements lists the columns Observations emits.
func Measurements() []string {
	return []string{"days_since_current_patch_launch", "patch_count"}
}

// AggregationRules resamples the version measurements: the in-period
// maximum of the launch counter, the number of distinct patches seen
// during the period and the latest patch count as a version key.
func AggregationRules() []timeseries.Rule {
	return []timeseries.Rule{
		{Column: "days_since_current_patch_launch", As: "days_since_current_patch_launch", Agg: timeseries.Max},
		{Column: "patch_count", As: "patches_during_period", Agg: timeseries.CountDistinct},
		{Column: "patch_count", As: "version_id", Agg: timeseries.Max},
	}
}

// PatchCountVersionMap maps each patch count onto its cleaned version
// label.
func PatchCountVersionMap(intervals []domain.VersionInterval) map[int]string {
	m := make(map[int]string, len(intervals))
	for _, iv := range intervals {
		m[iv.PatchCount] = iv.Version
	}
	return m
}

// Enrich replaces the numeric version_id column with a label column
// carrying the human-readable version name. Unmapped counts keep
// their numeric form.
func Enrich(s *timeseries.Series, countToVersion map[int]string) {
	if s == nil || !s.HasColumn("version_id") {
		return
	}
	ids := s.Column("version_id")
	labels := make([]string, len(ids))
	for i, id := range ids {
		if version, ok := countToVersion[int(id)]; ok {
			labels[i] = version
		} else if id == id { // not NaN
			labels[i] = strconv.Itoa(int(id))
		}
	}
	s.SetLabel("version_id", labels)
}

// YearView lists the patches live during a year, each with its first
// live date in that year, the days it stayed live and the fraction of
// the year it covered. A zero year defaults to the year of the latest
// interval end.
func (e *Expander) YearView(intervals []domain.VersionInterval, year int) []domain.YearViewRow {
	if year == 0 {
		for _, iv := range intervals {
			if iv.DateEnd.Year() > year {
				year = iv.DateEnd.Year()
			}
		}
		e.logger.Info("year view defaulting to latest year", "year", year)
	}

	type key struct {
		version, patch string
		major, minor   int
	}
	seen := make(map[key]bool)
	var rows []domain.YearViewRow
	for _, d := range e.Expand(intervals) {
		if d.Date.Year() != year {
			continue
		}
		k := key{d.Version, d.Patch, d.Major, d.Minor}
		if seen[k] {
			continue
		}
		seen[k] = true
		rows = append(rows, domain.YearViewRow{
			Version: d.Version,
			Date:    d.Date,
			Major:   d.Major,
			Minor:   d.Minor,
			Patch:   d.Patch,
		})
	}
	if len(rows) == 0 {
		return rows
	}

	endOfYear := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		var until time.Time
		if i+1 < len(rows) {
			until = rows[i+1].Date
		} else {
			until = endOfYear
			if today := dateOnly(e.now()); today.Before(endOfYear) {
				until = today
			}
		}
		rows[i].DaysLive = int(until.Sub(rows[i].Date).Hours() / 24)
		rows[i].PctLive = float64(rows[i].DaysLive) / float64(endOfYear.YearDay())
	}
	return rows
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
