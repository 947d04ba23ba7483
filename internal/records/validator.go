package records

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"fundtracker/internal/errors"
	"fundtracker/pkg/contracts/domain"
)

const (
	transactionTimeLayout = "2006-01-02 15:04:05"
	dateLayout            = "2006-01-02"

	// versionEndSentinel marks a version interval that is still
	// current; it is resolved to "today" at parse time.
	versionEndSentinel = "3000-01-01"
)

// Cutoffs for the historical version-numbering scheme. Releases
// ending on or before these dates predate the standard major/minor
// numbering.
var (
	oldNumberingCutoff = time.Date(2014, 6, 4, 0, 0, 0, 0, time.UTC)
	rawLabelCutoff     = time.Date(2013, 8, 30, 0, 0, 0, 0, time.UTC)
)

// BatchReport summarises a batch validation pass. Rejections never
// abort the batch; they are collected here and logged.
type BatchReport struct {
	Accepted   int
	Rejections []errors.RecordRejection
}

// Validator turns raw feed rows into typed domain records. Each row
// is handled independently; a malformed row yields a rejection with a
// reason, never a panic or batch abort.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
	workers  int
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock injects the wall clock used to resolve the open version
// interval. Defaults to time.Now.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// WithLogger sets the validator's logger.
func WithLogger(l *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = l }
}

// WithWorkers sets the parallelism of batch validation. Results are
// always reassembled in original row order.
func WithWorkers(n int) ValidatorOption {
	return func(v *Validator) {
		if n > 0 {
			v.workers = n
		}
	}
}

// NewValidator creates a Validator.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		validate: validator.New(),
		logger:   slog.Default(),
		now:      time.Now,
		workers:  runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateTransaction parses one transaction feed row. When a primary
// total is absent but its correction column carries a value, the
// correction substitutes transparently; a row with neither is
// rejected.
func (v *Validator) ValidateTransaction(raw RawRecord, row int) (domain.Transaction, *errors.RecordRejection) {
	ts, ok := raw.Field("datetime_utc")
	if !ok {
		return domain.Transaction{}, &errors.RecordRejection{Row: row, Field: "datetime_utc", Reason: "missing timestamp"}
	}
	timestamp, err := time.ParseInLocation(transactionTimeLayout, ts, time.UTC)
	if err != nil {
		return domain.Transaction{}, &errors.RecordRejection{Row: row, Field: "datetime_utc", Reason: "invalid datetime format: " + ts}
	}

	totalPledge, rej := v.currencyWithFallback(raw, row, "total_pledge", "data_correction_total_pledge")
	if rej != nil {
		return domain.Transaction{}, rej
	}
	totalCitizens, rej := v.integerWithFallback(raw, row, "total_citizens", "data_correction_total_citizen")
	if rej != nil {
		return domain.Transaction{}, rej
	}

	deltaPledgeStr, ok := raw.Field("delta_pledge")
	if !ok {
		return domain.Transaction{}, &errors.RecordRejection{Row: row, Field: "delta_pledge", Reason: "missing required field"}
	}
	deltaPledge, err := parseCurrency(deltaPledgeStr)
	if err != nil {
		return domain.Transaction{}, &errors.RecordRejection{Row: row, Field: "delta_pledge", Reason: err.Error()}
	}

	deltaCitizensStr, ok := raw.Field("delta_citizens")
	if !ok {
		return domain.Transaction{}, &errors.RecordRejection{Row: row, Field: "delta_citizens", Reason: "missing required field"}
	}
	deltaCitizens, err := parseInteger(deltaCitizensStr)
	if err != nil {
		return domain.Transaction{}, &errors.RecordRejection{Row: row, Field: "delta_citizens", Reason: err.Error()}
	}

	tx := domain.Transaction{
		Timestamp:     timestamp,
		TotalPledge:   totalPledge,
		DeltaPledge:   deltaPledge,
		TotalCitizens: totalCitizens,
		DeltaCitizens: deltaCitizens,
	}
	if err := v.validate.Struct(tx); err != nil {
		return domain.Transaction{}, &errors.RecordRejection{Row: row, Reason: err.Error()}
	}
	return tx, nil
}

func (v *Validator) currencyWithFallback(raw RawRecord, row int, primary, correction string) (float64, *errors.RecordRejection) {
	if s, ok := raw.Field(correction); ok {
		val, err := parseCurrency(s)
		if err != nil {
			return 0, &errors.RecordRejection{Row: row, Field: correction, Reason: err.Error()}
		}
		return val, nil
	}
	if s, ok := raw.Field(primary); ok {
		val, err := parseCurrency(s)
		if err != nil {
			return 0, &errors.RecordRejection{Row: row, Field: primary, Reason: err.Error()}
		}
		return val, nil
	}
	return 0, &errors.RecordRejection{Row: row, Field: primary, Reason: "neither " + primary + " nor " + correction + " present"}
}

func (v *Validator) integerWithFallback(raw RawRecord, row int, primary, correction string) (int64, *errors.RecordRejection) {
	if s, ok := raw.Field(correction); ok {
		val, err := parseInteger(s)
		if err != nil {
			return 0, &errors.RecordRejection{Row: row, Field: correction, Reason: err.Error()}
		}
		return val, nil
	}
	if s, ok := raw.Field(primary); ok {
		val, err := parseInteger(s)
		if err != nil {
			return 0, &errors.RecordRejection{Row: row, Field: primary, Reason: err.Error()}
		}
		return val, nil
	}
	return 0, &errors.RecordRejection{Row: row, Field: primary, Reason: "neither " + primary + " nor " + correction + " present"}
}

// ValidateTransactions validates a batch in parallel, preserving the
// original row order in the output. Row order is chronological in the
// source feed and downstream chronology repair depends on it.
func (v *Validator) ValidateTransactions(ctx context.Context, raws []RawRecord) ([]domain.Transaction, BatchReport) {
	type result struct {
		row int
		tx  domain.Transaction
		rej *errors.RecordRejection
	}

	results := make([]result, len(raws))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)

	for i := range raws {
		i := i
		g.Go(func() error {
			tx, rej := v.ValidateTransaction(raws[i], i)
			results[i] = result{row: i, tx: tx, rej: rej}
			return nil
		})
	}
	g.Wait()

	var (
		txs    []domain.Transaction
		report BatchReport
	)
	for _, r := range results {
		if r.rej != nil {
			report.Rejections = append(report.Rejections, *r.rej)
			continue
		}
		txs = append(txs, r.tx)
	}
	report.Accepted = len(txs)

	v.logger.Info("validated hourly transactions", "accepted", report.Accepted, "rejected", len(report.Rejections))
	for _, rej := range report.Rejections {
		v.logger.Warn("transaction record rejected", "row", rej.Row, "reason", rej.Error())
	}

	return txs, report
}

// ValidateAnnotation parses one annotation feed row. A marker column
// is true when the source cell carries any value at all.
func (v *Validator) ValidateAnnotation(raw RawRecord, row int) (domain.AnnotationDay, *errors.RecordRejection) {
	ds, ok := raw.Field("datetime_utc")
	if !ok {
		return domain.AnnotationDay{}, &errors.RecordRejection{Row: row, Field: "datetime_utc", Reason: "missing date"}
	}
	date, err := parseDate(ds)
	if err != nil {
		return domain.AnnotationDay{}, &errors.RecordRejection{Row: row, Field: "datetime_utc", Reason: "invalid date: " + ds}
	}

	return domain.AnnotationDay{
		Date:          date,
		OnSale:        raw.Present("sale_type"),
		StoreEvent:    raw.Present("store_sales"),
		ConceptLaunch: raw.Present("concept_sale"),
		Milestone:     raw.Present("game_milestones"),
		HasComment:    raw.Present("comments"),
	}, nil
}

// ValidateAnnotations validates the annotation batch in row order.
func (v *Validator) ValidateAnnotations(raws []RawRecord) ([]domain.AnnotationDay, BatchReport) {
	var (
		days   []domain.AnnotationDay
		report BatchReport
	)
	for i, raw := range raws {
		day, rej := v.ValidateAnnotation(raw, i)
		if rej != nil {
			report.Rejections = append(report.Rejections, *rej)
			continue
		}
		days = append(days, day)
	}
	report.Accepted = len(days)
	v.logger.Info("validated annotation records", "accepted", report.Accepted, "rejected", len(report.Rejections))
	return days, report
}

// ValidateVersionInterval parses one version feed row. A missing end
// date rejects the row; the far-future sentinel resolves to today.
func (v *Validator) ValidateVersionInterval(raw RawRecord, row int) (domain.VersionInterval, *errors.RecordRejection) {
	startStr, ok := raw.Field("date_start")
	if !ok {
		return domain.VersionInterval{}, &errors.RecordRejection{Row: row, Field: "date_start", Reason: "missing start date"}
	}
	endStr, ok := raw.Field("date_end")
	if !ok {
		return domain.VersionInterval{}, &errors.RecordRejection{Row: row, Field: "date_end", Reason: "missing end date"}
	}
	if endStr == versionEndSentinel {
		endStr = v.now().UTC().Format(dateLayout)
	}

	start, err := parseDate(startStr)
	if err != nil {
		return domain.VersionInterval{}, &errors.RecordRejection{Row: row, Field: "date_start", Reason: "invalid date: " + startStr}
	}
	end, err := parseDate(endStr)
	if err != nil {
		return domain.VersionInterval{}, &errors.RecordRejection{Row: row, Field: "date_end", Reason: "invalid date: " + endStr}
	}

	label, ok := raw.Field("version")
	if !ok {
		return domain.VersionInterval{}, &errors.RecordRejection{Row: row, Field: "version", Reason: "missing version label"}
	}
	countStr, ok := raw.Field("patch_count")
	if !ok {
		return domain.VersionInterval{}, &errors.RecordRejection{Row: row, Field: "patch_count", Reason: "missing patch count"}
	}
	count, err := parseInteger(countStr)
	if err != nil {
		return domain.VersionInterval{}, &errors.RecordRejection{Row: row, Field: "patch_count", Reason: err.Error()}
	}

	major, minor, patch := ParseVersionLabel(label)

	interval := domain.VersionInterval{
		DateStart:  start,
		DateEnd:    end,
		Version:    CleanVersionLabel(label),
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		PatchCount: int(count),
	}
	if err := v.validate.Struct(interval); err != nil {
		return domain.VersionInterval{}, &errors.RecordRejection{Row: row, Reason: err.Error()}
	}
	return interval, nil
}

// ValidateVersionIntervals validates the version batch, sorts it by
// start date and conforms the pre-cutoff releases to the historical
// numbering scheme.
func (v *Validator) ValidateVersionIntervals(raws []RawRecord) ([]domain.VersionInterval, BatchReport) {
	var (
		intervals []domain.VersionInterval
		report    BatchReport
	)
	for i, raw := range raws {
		interval, rej := v.ValidateVersionInterval(raw, i)
		if rej != nil {
			report.Rejections = append(report.Rejections, *rej)
			continue
		}
		intervals = append(intervals, interval)
	}
	report.Accepted = len(intervals)

	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].DateStart.Before(intervals[j].DateStart)
	})
	conformOlderVersionNumbers(intervals)

	v.logger.Info("validated game-version records", "accepted", report.Accepted, "rejected", len(report.Rejections))
	return intervals, report
}

// conformOlderVersionNumbers rewrites releases that predate the
// standard numbering: up to the old-numbering cutoff they are keyed
// by "major.minor" with major/minor zeroed, and the very earliest
// releases by their raw label.
func conformOlderVersionNumbers(intervals []domain.VersionInterval) {
	for i := range intervals {
		iv := &intervals[i]
		if iv.DateEnd.After(oldNumberingCutoff) {
			continue
		}
		if !iv.DateEnd.After(rawLabelCutoff) {
			iv.Patch = iv.Version
		} else {
			iv.Patch = formatMajorMinor(iv.Major, iv.Minor)
		}
		iv.Major = 0
		iv.Minor = 0
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.ParseInLocation(transactionTimeLayout, s, time.UTC)
}
