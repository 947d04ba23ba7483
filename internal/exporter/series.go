// Package exporter writes constructed series and summary tables to
// disk for spreadsheet and downstream consumption.
package exporter

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"fundtracker/internal/timeseries"
	"fundtracker/pkg/contracts/domain"
)

const timestampHeader = "datetime_utc"

// SeriesRecords flattens a series into a header row plus one record
// per timestamp. Numeric columns come first, label columns after;
// missing values render as empty cells.
func SeriesRecords(s *timeseries.Series) ([]string, [][]string) {
	columns := s.Columns()
	labels := s.LabelColumns()

	headers := make([]string, 0, 1+len(columns)+len(labels))
	headers = append(headers, timestampHeader)
	headers = append(headers, columns...)
	headers = append(headers, labels...)

	index := s.Index()
	records := make([][]string, s.Len())
	for i, t := range index {
		row := make([]string, 0, len(headers))
		row = append(row, t.Format("2006-01-02 15:04:05"))
		for _, name := range columns {
			row = append(row, formatValue(s.Column(name)[i]))
		}
		for _, name := range labels {
			row = append(row, s.Label(name)[i])
		}
		records[i] = row
	}
	return headers, records
}

// WriteSeries writes a series as CSV under the output directory.
func (w *CSVWriter) WriteSeries(filePath string, s *timeseries.Series) error {
	headers, records := SeriesRecords(s)
	return w.WriteCSV(filePath, WriteOptions{
		Headers:   headers,
		Records:   records,
		BOMPrefix: true,
	})
}

// WriteJSON writes any summary structure as indented JSON under the
// output directory. NaN values must be cleared by the caller first;
// encoding/json rejects them.
func (w *CSVWriter) WriteJSON(filePath string, v any) error {
	fullPath := w.resolvePath(filePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// StatisticsDocument converts headline statistics into a JSON-safe
// map. Metrics that could not be computed carry NaN internally and
// become null here.
func StatisticsDocument(s *domain.MainStatistics) map[string]any {
	metric := func(m domain.MetricStatistics) map[string]any {
		return map[string]any{
			"total_historically":      jsonFloat(m.TotalHistorically),
			"total_this_year":         jsonFloat(m.TotalThisYear),
			"total_year_on_year":      jsonFloat(m.TotalYearOnYear),
			"pct_change_year_on_year": jsonFloat(m.PctChangeYearOnYear),
		}
	}
	return map[string]any{
		"time": map[string]any{
			"now":                        s.Time.Now,
			"last_updated":               s.Time.LastUpdated,
			"time_since_measure":         s.Time.TimeSinceMeasure.String(),
			"year_completion_percentage": jsonFloat(s.Time.YearCompletionPercentage),
		},
		"pledges":  metric(s.Pledges),
		"citizens": metric(s.Citizens),
	}
}

func jsonFloat(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// formatValue renders a float for CSV output. Missing values become
// empty cells; everything else keeps full precision.
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
