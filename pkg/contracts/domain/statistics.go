package domain

import (
	"time"
)

// TimeStatistics describes the freshness of the underlying feed.
// TimeSinceMeasure is computed against the injected clock at the call
// boundary and must never be cached with the series itself.
type TimeStatistics struct {
	Now                      time.Time     `json:"now"`
	LastUpdated              time.Time     `json:"last_updated"`
	TimeSinceMeasure         time.Duration `json:"time_since_measure"`
	YearCompletionPercentage float64       `json:"year_completion_percentage"`
}

// MetricStatistics summarises one cumulative metric (pledges or
// citizens): all-time total, year-to-date, the same point last year
// and the year-over-year change.
type MetricStatistics struct {
	TotalHistorically   float64 `json:"total_historically"`
	TotalThisYear       float64 `json:"total_this_year"`
	TotalYearOnYear     float64 `json:"total_year_on_year"`
	PctChangeYearOnYear float64 `json:"pct_change_year_on_year"`
}

// MainStatistics is the headline summary consumed by the dashboard.
type MainStatistics struct {
	Time     TimeStatistics   `json:"time"`
	Pledges  MetricStatistics `json:"pledges"`
	Citizens MetricStatistics `json:"citizens"`
}

// PrecedenceResult ranks one period's metric value against the full
// and the strictly-prior historical distribution.
type PrecedenceResult struct {
	Timestamp             time.Time `json:"timestamp"`
	Period                string    `json:"period"`
	Version               string    `json:"version,omitempty"`
	OnSale                *float64  `json:"on_sale,omitempty"`
	PeriodFrequency       string    `json:"period_frequency"`
	Metric                string    `json:"metric"`
	Value                 float64   `json:"value"`
	PctBetterPeriods      float64   `json:"pct_better_periods"`
	PctBetterPeriodsPrior float64   `json:"pct_better_periods_prior"`
	Percentile            float64   `json:"percentile"`
	Rank                  int       `json:"rank"`
	NPeriods              int       `json:"n_periods"`
	TotalPledge           float64   `json:"total_pledge"`
	TotalCitizens         float64   `json:"total_citizens"`
}

// PatchStat summarises one game version over its live window.
type PatchStat struct {
	Version           string    `json:"version"`
	Date              time.Time `json:"date"`
	NewCitizensPerDay float64   `json:"new_citizens_per_day"`
	DurationDays      int       `json:"duration_days"`
}

// YearViewRow lists one patch that was live during a requested year.
type YearViewRow struct {
	Version  string    `json:"version"`
	Date     time.Time `json:"date"`
	DaysLive int       `json:"days_live"`
	PctLive  float64   `json:"pct_live"`
	Major    int       `json:"major"`
	Minor    int       `json:"minor"`
	Patch    string    `json:"patch"`
}
