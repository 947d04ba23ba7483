package timeseries

import (
	"fmt"
	"strings"
	"time"
)

// Frequency identifies a supported series resolution. Hour is the
// deepest granularity; everything coarser is derived by resampling.
type Frequency int

const (
	Hour Frequency = iota
	Day
	Week
	Month
	Quarter
	Year
)

// ParseFrequency converts a config/API string into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hourly", "hour", "h":
		return Hour, nil
	case "daily", "day", "d":
		return Day, nil
	case "weekly", "week", "w":
		return Week, nil
	case "monthly", "month", "m":
		return Month, nil
	case "quarterly", "quarter", "q":
		return Quarter, nil
	case "annual", "yearly", "year", "y", "a":
		return Year, nil
	}
	return 0, fmt.Errorf("unknown frequency %q", s)
}

// String returns the canonical name of the frequency.
func (f Frequency) String() string {
	switch f {
	case Hour:
		return "hourly"
	case Day:
		return "daily"
	case Week:
		return "weekly"
	case Month:
		return "monthly"
	case Quarter:
		return "quarterly"
	case Year:
		return "annual"
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

// rank orders frequencies from fine to coarse. Used to decide which
// calendar attribute columns apply at a given resolution.
func (f Frequency) rank() int {
	switch f {
	case Hour:
		return 3
	case Day:
		return 4
	case Week:
		return 5
	case Month:
		return 6
	case Quarter:
		return 7
	default:
		return 8
	}
}

// Step advances a base-granularity timestamp by one period. Only Hour
// and Day are valid base granularities; coarser frequencies are
// reached through resampling, never by stepping.
func (f Frequency) Step(t time.Time) time.Time {
	switch f {
	case Hour:
		return t.Add(time.Hour)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Truncate floors a timestamp onto the base grid for the frequency.
func (f Frequency) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch f {
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Bucket maps a timestamp to its period label for resampling. Weekly
// periods are labelled by the anchor weekday that closes the week, so
// that weeks are comparable across the whole history; monthly,
// quarterly and annual periods are labelled by their last calendar
// day, daily and hourly by their start.
func (f Frequency) Bucket(t time.Time, weekAnchor time.Weekday) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch f {
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case Day:
		return day
	case Week:
		offset := (int(weekAnchor) - int(day.Weekday()) + 7) % 7
		return day.AddDate(0, 0, offset)
	case Month:
		firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		return firstOfNext.AddDate(0, 0, -1)
	case Quarter:
		qEndMonth := ((int(t.Month())-1)/3)*3 + 3
		firstOfNext := time.Date(t.Year(), time.Month(qEndMonth), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		return firstOfNext.AddDate(0, 0, -1)
	default:
		return time.Date(t.Year(), 12, 31, 0, 0, 0, 0, time.UTC)
	}
}

// FormatPeriod renders the human-readable label for a period at this
// frequency, e.g. "2023 W14" or "January 2023".
func (f Frequency) FormatPeriod(t time.Time) string {
	switch f {
	case Year:
		return t.Format("2006")
	case Quarter:
		return fmt.Sprintf("%d Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case Month:
		return t.Format("January 2006")
	case Week:
		isoYear, isoWeek := t.ISOWeek()
		return fmt.Sprintf("%d W%d", isoYear, isoWeek)
	case Day:
		return t.Format("Mon 02 Jan 2006")
	default:
		return t.Format("2006-01-02 15:04:05")
	}
}

// ParseWeekday converts a config string into a weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}
