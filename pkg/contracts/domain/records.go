package domain

import (
	"time"
)

// Transaction is a validated hourly funding-tracker observation.
// TotalPledge and TotalCitizens already reflect any data-correction
// override present in the source row; the caller cannot tell which
// field the value came from.
type Transaction struct {
	Timestamp     time.Time `json:"datetime_utc" validate:"required"`
	TotalPledge   float64   `json:"total_pledge" validate:"gte=0"`
	DeltaPledge   float64   `json:"delta_pledge"`
	TotalCitizens int64     `json:"total_citizens" validate:"gte=0"`
	DeltaCitizens int64     `json:"delta_citizens"`
}

// AnnotationDay carries the daily sale/event markers. A marker is set
// when the corresponding source cell is non-empty; the cell's value is
// never interpreted.
type AnnotationDay struct {
	Date          time.Time `json:"datetime_utc" validate:"required"`
	OnSale        bool      `json:"on_sale"`
	StoreEvent    bool      `json:"store_event"`
	ConceptLaunch bool      `json:"concept_launch"`
	Milestone     bool      `json:"milestone"`
	HasComment    bool      `json:"has_comment"`
}

// VersionInterval is one game-version release window. DateEnd is
// inclusive; an interval that is still current has its sentinel end
// date already resolved to "today" at parse time.
type VersionInterval struct {
	DateStart  time.Time `json:"date_start" validate:"required"`
	DateEnd    time.Time `json:"date_end" validate:"required,gtefield=DateStart"`
	Version    string    `json:"version" validate:"required"`
	Major      int       `json:"major" validate:"gte=0"`
	Minor      int       `json:"minor" validate:"gte=0"`
	Patch      string    `json:"patch"`
	PatchCount int       `json:"patch_count" validate:"gte=0"`
}

// Days returns the number of calendar days covered by the interval,
// counting both endpoints.
func (v VersionInterval) Days() int {
	return int(v.DateEnd.Sub(v.DateStart).Hours()/24) + 1
}

// VersionDay is a single day of an expanded version interval.
type VersionDay struct {
	Date                        time.Time `json:"datetime_utc"`
	Version                     string    `json:"version"`
	Major                       int       `json:"major"`
	Minor                       int       `json:"minor"`
	Patch                       string    `json:"patch"`
	PatchCount                  int       `json:"patch_count"`
	DaysSinceCurrentPatchLaunch int       `json:"days_since_current_patch_launch"`
}
