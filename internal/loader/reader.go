// Package loader reads the three tracker feed files and exposes each
// as a time-series source.
package loader

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"fundtracker/internal/records"
)

// ReaderOption adjusts how a feed file is read.
type ReaderOption func(*readerConfig)

type readerConfig struct {
	firstColumn string
}

// WithFirstColumn renames the first header cell before rows are
// keyed. The annotation feed labels its date column with free text.
func WithFirstColumn(name string) ReaderOption {
	return func(c *readerConfig) { c.firstColumn = name }
}

// ReadRecords loads a feed file into raw records keyed by normalized
// column name. CSV and XLSX files are supported; spreadsheet export
// artifacts ("Unnamed: N" columns) are dropped.
func ReadRecords(path string, opts ...ReaderOption) ([]records.RawRecord, error) {
	var cfg readerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("feed file %s has no header row", path)
	}

	header := rows[0]
	if cfg.firstColumn != "" && len(header) > 0 {
		header[0] = cfg.firstColumn
	}

	keys := make([]string, len(header))
	for i, h := range header {
		if strings.HasPrefix(h, "Unnamed") {
			continue
		}
		keys[i] = records.NormalizeColumn(h)
	}

	out := make([]records.RawRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(records.RawRecord, len(keys))
		for i, key := range keys {
			if key == "" || i >= len(row) {
				continue
			}
			record[key] = row[i]
		}
		out = append(out, record)
	}
	return out, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read feed file %s: %w", path, err)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open feed file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("feed file %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read feed file %s: %w", path, err)
	}
	return rows, nil
}
