package records

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// RawRecord is one untyped feed row keyed by normalized column name.
// An absent or empty field means "not present", never zero.
type RawRecord map[string]string

var columnSeparators = regexp.MustCompile(`[ -]+`)

// NormalizeColumn conforms a source column header to lowercase with
// underscore separation, e.g. "Total Pledge" -> "total_pledge".
func NormalizeColumn(text string) string {
	return strings.ToLower(columnSeparators.ReplaceAllString(text, "_"))
}

// Field returns the trimmed value of a column and whether it conveys
// a value at all. Empty cells and NaN placeholders count as absent.
func (r RawRecord) Field(name string) (string, bool) {
	v, ok := r[name]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "nan") {
		return "", false
	}
	return v, true
}

// Present reports whether a column conveys any value. Used for the
// annotation feed, where presence itself is the boolean signal.
func (r RawRecord) Present(name string) bool {
	_, ok := r.Field(name)
	return ok
}

// parseCurrency converts a locale-formatted currency string to a
// float. The source uses "." as thousands separator and "," as
// decimal separator; currency symbols are stripped first.
func parseCurrency(v string) (float64, error) {
	v = strings.TrimSpace(strings.ReplaceAll(v, "$", ""))
	v = swapSeparators(v)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) {
		return 0, &parseError{value: v, kind: "currency"}
	}
	return f, nil
}

// parseInteger converts a locale-formatted integer string, tolerating
// a decimal part introduced by spreadsheet exports.
func parseInteger(v string) (int64, error) {
	v = swapSeparators(strings.TrimSpace(v))
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) {
		return 0, &parseError{value: v, kind: "integer"}
	}
	return int64(f), nil
}

// swapSeparators drops "." thousands separators and turns the ","
// decimal separator into the "." Go expects.
func swapSeparators(v string) string {
	v = strings.ReplaceAll(v, ".", "")
	return strings.ReplaceAll(v, ",", ".")
}

type parseError struct {
	value string
	kind  string
}

func (e *parseError) Error() string {
	return "invalid value for " + e.kind + " conversion: " + e.value
}
