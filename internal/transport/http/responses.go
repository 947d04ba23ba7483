package http

import (
	"math"
	"time"

	"fundtracker/internal/timeseries"
	"fundtracker/pkg/contracts/domain"
)

const timestampLayout = "2006-01-02 15:04:05"

// nullableFloat maps NaN to a JSON null. Observation columns keep NaN
// for missing values internally, which encoding/json cannot express.
func nullableFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func nullableSlice(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = nullableFloat(v)
	}
	return out
}

// seriesPayload is the wire form of a series: a shared index plus
// per-column value arrays aligned to it.
type seriesPayload struct {
	Frequency string                `json:"frequency"`
	Index     []string              `json:"index"`
	Columns   map[string][]*float64 `json:"columns"`
	Labels    map[string][]string   `json:"labels,omitempty"`
}

func newSeriesPayload(s *timeseries.Series) seriesPayload {
	payload := seriesPayload{
		Frequency: s.Frequency().String(),
		Index:     make([]string, 0, s.Len()),
		Columns:   make(map[string][]*float64, len(s.Columns())),
	}
	for _, t := range s.Index() {
		payload.Index = append(payload.Index, t.Format(timestampLayout))
	}
	for _, name := range s.Columns() {
		payload.Columns[name] = nullableSlice(s.Column(name))
	}
	if labels := s.LabelColumns(); len(labels) > 0 {
		payload.Labels = make(map[string][]string, len(labels))
		for _, name := range labels {
			payload.Labels[name] = s.Label(name)
		}
	}
	return payload
}

type metricStatisticsPayload struct {
	TotalHistorically   *float64 `json:"total_historically"`
	TotalThisYear       *float64 `json:"total_this_year"`
	TotalYearOnYear     *float64 `json:"total_year_on_year"`
	PctChangeYearOnYear *float64 `json:"pct_change_year_on_year"`
}

func newMetricStatisticsPayload(m domain.MetricStatistics) metricStatisticsPayload {
	return metricStatisticsPayload{
		TotalHistorically:   nullableFloat(m.TotalHistorically),
		TotalThisYear:       nullableFloat(m.TotalThisYear),
		TotalYearOnYear:     nullableFloat(m.TotalYearOnYear),
		PctChangeYearOnYear: nullableFloat(m.PctChangeYearOnYear),
	}
}

type statisticsPayload struct {
	Time     domain.TimeStatistics   `json:"time"`
	Pledges  metricStatisticsPayload `json:"pledges"`
	Citizens metricStatisticsPayload `json:"citizens"`
}

func newStatisticsPayload(s *domain.MainStatistics) statisticsPayload {
	return statisticsPayload{
		Time:     s.Time,
		Pledges:  newMetricStatisticsPayload(s.Pledges),
		Citizens: newMetricStatisticsPayload(s.Citizens),
	}
}

type precedencePayload struct {
	Timestamp             time.Time `json:"timestamp"`
	Period                string    `json:"period"`
	Version               string    `json:"version,omitempty"`
	OnSale                *float64  `json:"on_sale,omitempty"`
	PeriodFrequency       string    `json:"period_frequency"`
	Metric                string    `json:"metric"`
	Value                 *float64  `json:"value"`
	PctBetterPeriods      float64   `json:"pct_better_periods"`
	PctBetterPeriodsPrior float64   `json:"pct_better_periods_prior"`
	Percentile            float64   `json:"percentile"`
	Rank                  int       `json:"rank"`
	NPeriods              int       `json:"n_periods"`
	TotalPledge           *float64  `json:"total_pledge"`
	TotalCitizens         *float64  `json:"total_citizens"`
}

func newPrecedencePayload(r *domain.PrecedenceResult) precedencePayload {
	onSale := r.OnSale
	if onSale != nil && math.IsNaN(*onSale) {
		onSale = nil
	}
	return precedencePayload{
		Timestamp:             r.Timestamp,
		Period:                r.Period,
		Version:               r.Version,
		OnSale:                onSale,
		PeriodFrequency:       r.PeriodFrequency,
		Metric:                r.Metric,
		Value:                 nullableFloat(r.Value),
		PctBetterPeriods:      r.PctBetterPeriods,
		PctBetterPeriodsPrior: r.PctBetterPeriodsPrior,
		Percentile:            r.Percentile,
		Rank:                  r.Rank,
		NPeriods:              r.NPeriods,
		TotalPledge:           nullableFloat(r.TotalPledge),
		TotalCitizens:         nullableFloat(r.TotalCitizens),
	}
}
