package stats

import (
	"math"
	"time"

	"fundtracker/internal/errors"
	"fundtracker/internal/timeseries"
	"fundtracker/pkg/contracts/domain"
)

// SameTimeInOtherYear finds the last row of the series sharing the
// reference date's day of year in the given year. A zero date
// defaults to the series' last entry; a zero year to the year before
// the reference date. The second return value reports whether a match
// exists.
func SameTimeInOtherYear(s *timeseries.Series, date time.Time, year int) (int, bool) {
	if s == nil || s.Empty() {
		return 0, false
	}
	index := s.Index()
	if date.IsZero() {
		date = index[len(index)-1]
	}
	if year == 0 {
		year = date.Year() - 1
	}

	pos, found := 0, false
	for i, t := range index {
		if t.Year() == year && t.YearDay() == date.YearDay() {
			pos, found = i, true
		}
	}
	return pos, found
}

// Summarize computes the headline indicators from the hourly series:
// feed freshness plus all-time, year-to-date and year-over-year
// totals for pledges and citizens. Year-over-year fields are NaN when
// the series does not reach back a full year.
func (a *Analyzer) Summarize(hourly *timeseries.Series) (*domain.MainStatistics, error) {
	if hourly == nil || hourly.Empty() {
		return nil, errors.NewQueryError("statistics: series is empty")
	}

	index := hourly.Index()
	last := len(index) - 1
	lastUpdated := index[last]
	now := a.now().UTC()

	columnAt := func(name string, pos int) float64 {
		if !hourly.HasColumn(name) {
			return math.NaN()
		}
		return hourly.Column(name)[pos]
	}

	out := &domain.MainStatistics{
		Time: domain.TimeStatistics{
			Now:                      now,
			LastUpdated:              lastUpdated,
			TimeSinceMeasure:         now.Sub(lastUpdated),
			YearCompletionPercentage: float64(lastUpdated.YearDay()) / 365.25,
		},
		Pledges: domain.MetricStatistics{
			TotalHistorically: columnAt("total_pledge", last),
			TotalThisYear:     columnAt("total_pledge_in_year", last),
			TotalYearOnYear:   math.NaN(),
		},
		Citizens: domain.MetricStatistics{
			TotalHistorically: columnAt("total_citizens", last),
			TotalThisYear:     columnAt("total_citizens_in_year", last),
			TotalYearOnYear:   math.NaN(),
		},
	}

	if pos, ok := SameTimeInOtherYear(hourly, lastUpdated, 0); ok {
		out.Pledges.TotalYearOnYear = columnAt("total_pledge_in_year", pos)
		out.Citizens.TotalYearOnYear = columnAt("total_citizens_in_year", pos)
	}
	out.Pledges.PctChangeYearOnYear = out.Pledges.TotalThisYear/out.Pledges.TotalYearOnYear - 1
	out.Citizens.PctChangeYearOnYear = out.Citizens.TotalThisYear/out.Citizens.TotalYearOnYear - 1

	return out, nil
}
