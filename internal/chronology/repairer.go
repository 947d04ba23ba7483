// Package chronology corrects a recurring day/month transposition
// defect in the transaction feed. Some historical rows were recorded
// as YYYY-DD-MM instead of YYYY-MM-DD; the defect shows up either as
// timestamps running backward or as two different true dates
// collapsing onto the same claimed date. Row order is trusted as a
// chronology proxy: the feed appends records in time order even when
// the date component is wrong.
package chronology

import (
	"log/slog"
	"time"

	"fundtracker/pkg/contracts/domain"
)

// Report summarises a repair pass.
type Report struct {
	// SpanRepairs counts timestamps rewritten by the backward-step scan.
	SpanRepairs int
	// GroupRepairs counts timestamps rewritten by the duplicate-date scan.
	GroupRepairs int
	// Unresolved lists dates whose duplication could not be repaired
	// with confidence; their records were left untouched.
	Unresolved []time.Time
	// ResidualDuplicates counts timestamps still duplicated after the
	// pass. Non-zero is a warning, not an error.
	ResidualDuplicates int
}

// Repairer detects and corrects transposed day/month timestamps.
type Repairer struct {
	logger *slog.Logger
}

// NewRepairer creates a Repairer.
func NewRepairer(logger *slog.Logger) *Repairer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repairer{logger: logger}
}

// Repair runs both correction passes over the transactions, which
// must be in original feed row order. It returns the repaired slice
// (a copy) and a report; it never fails, ambiguous cases are logged
// and left as they were.
func (r *Repairer) Repair(txs []domain.Transaction) ([]domain.Transaction, Report) {
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)

	var report Report
	report.SpanRepairs = r.repairBackwardSpans(out)
	r.repairDuplicateDates(out, &report)

	report.ResidualDuplicates = countDuplicates(out)
	if report.ResidualDuplicates > 0 {
		r.logger.Warn("duplicate timestamps remain after chronology repair",
			"count", report.ResidualDuplicates)
	}

	return out, report
}

// repairBackwardSpans handles the case where the transposition makes
// the sequence temporarily run backward. Each backward step marks a
// suspect position; suspects pair up as the start and end of a
// corrupted span. A pair is confirmed when swapping day and month of
// the end suspect matches the start suspect's day AND the end suspect
// does not itself chain the same match with the next suspect, in
// which case every timestamp in the span is reinterpreted as
// (year, day, month). A chained match is ambiguous and left alone.
func (r *Repairer) repairBackwardSpans(txs []domain.Transaction) int {
	var suspects []int
	for i := 1; i < len(txs); i++ {
		if txs[i].Timestamp.Before(txs[i-1].Timestamp) {
			suspects = append(suspects, i)
		}
	}
	if len(suspects) == 0 {
		return 0
	}
	if len(suspects)%2 != 0 {
		r.logger.Warn("odd number of backward timestamp steps, corrupted dates may be unresolved",
			"count", len(suspects))
	}

	repaired := 0
	for i := 0; i+1 < len(suspects); i += 2 {
		start, end := suspects[i], suspects[i+1]
		if int(txs[end].Timestamp.Month()) != txs[start].Timestamp.Day() {
			continue
		}
		if i+2 < len(suspects) &&
			int(txs[suspects[i+2]].Timestamp.Month()) == txs[end].Timestamp.Day() {
			r.logger.Warn("ambiguous chained backward steps, span left unrepaired",
				"start", txs[start].Timestamp.Format(time.RFC3339),
				"end", txs[end].Timestamp.Format(time.RFC3339))
			continue
		}
		for j := start; j < end; j++ {
			if swapped, ok := swapDayMonth(txs[j].Timestamp); ok {
				txs[j].Timestamp = swapped
				repaired++
			} else {
				r.logger.Error("cannot swap day and month",
					"timestamp", txs[j].Timestamp.Format(time.RFC3339))
			}
		}
	}
	return repaired
}

// repairDuplicateDates handles the case where the transposition lands
// two different true dates on the same claimed calendar date. Records
// nominally cover one hour each and arrive in chronological row
// order, so two records sharing a date but more than 24 row positions
// apart cannot truly share it. That gap is the rupture point splitting
// the group into two chronological islands; which island carries the
// transposed date follows from comparing month and day of the claimed
// date. Zero or multiple rupture points leave the group unresolved.
func (r *Repairer) repairDuplicateDates(txs []domain.Transaction, report *Report) {
	positionsByDate := make(map[time.Time][]int)
	var order []time.Time
	for i, tx := range txs {
		d := dateOf(tx.Timestamp)
		if len(positionsByDate[d]) == 0 {
			order = append(order, d)
		}
		positionsByDate[d] = append(positionsByDate[d], i)
	}

	for _, date := range order {
		positions := positionsByDate[date]
		if len(positions) < 2 || !hasDuplicateTimestamp(txs, positions) {
			continue
		}

		var ruptures []int
		for k := 1; k < len(positions); k++ {
			if positions[k]-positions[k-1] >= 24 {
				ruptures = append(ruptures, k)
			}
		}

		switch len(ruptures) {
		case 0:
			r.logger.Error("no point of rupture found for duplicated date",
				"date", date.Format("2006-01-02"))
			report.Unresolved = append(report.Unresolved, date)
			continue
		case 1:
		default:
			r.logger.Error("more than one point of rupture for duplicated date",
				"date", date.Format("2006-01-02"))
			report.Unresolved = append(report.Unresolved, date)
			continue
		}

		firstIsland := positions[:ruptures[0]]
		secondIsland := positions[ruptures[0]:]

		// One island is in the expected YYYY-MM-DD, the other in the
		// transposed YYYY-DD-MM; the claimed date tells which.
		var wrong []int
		switch {
		case int(date.Month()) > date.Day():
			wrong = firstIsland
		case int(date.Month()) < date.Day():
			wrong = secondIsland
		default:
			// month == day: the transposition is invisible and harmless
			continue
		}

		for _, idx := range wrong {
			if swapped, ok := swapDayMonth(txs[idx].Timestamp); ok {
				txs[idx].Timestamp = swapped
				report.GroupRepairs++
			} else {
				r.logger.Error("cannot swap day and month",
					"timestamp", txs[idx].Timestamp.Format(time.RFC3339))
			}
		}
	}
}

// swapDayMonth reinterprets the date component of a timestamp as
// (year, day, month). It fails when the day cannot be a month.
func swapDayMonth(t time.Time) (time.Time, bool) {
	day := t.Day()
	if day > 12 {
		return t, false
	}
	return time.Date(t.Year(), time.Month(day), int(t.Month()),
		t.Hour(), t.Minute(), t.Second(), 0, time.UTC), true
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func hasDuplicateTimestamp(txs []domain.Transaction, positions []int) bool {
	seen := make(map[time.Time]struct{}, len(positions))
	for _, p := range positions {
		ts := txs[p].Timestamp
		if _, ok := seen[ts]; ok {
			return true
		}
		seen[ts] = struct{}{}
	}
	return false
}

func countDuplicates(txs []domain.Transaction) int {
	seen := make(map[time.Time]int, len(txs))
	for _, tx := range txs {
		seen[tx.Timestamp]++
	}
	dups := 0
	for _, n := range seen {
		if n > 1 {
			dups += n - 1
		}
	}
	return dups
}
