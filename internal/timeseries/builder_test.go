package timeseries

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundtracker/internal/errors"
)

func hourlyObservations(start time.Time, totals []float64, citizens []float64) []Observation {
	obs := make([]Observation, len(totals))
	for i := range totals {
		obs[i] = Observation{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Values: map[string]float64{
				"total_pledge":   totals[i],
				"total_citizens": citizens[i],
			},
		}
	}
	return obs
}

func transactionBuilder() *Builder {
	return NewBuilder(
		[]string{"total_pledge", "total_citizens"},
		[]string{"delta_pledge", "delta_citizens"},
		[]Rule{
			{Column: "delta_pledge", As: "delta_pledge", Agg: Sum},
			{Column: "delta_citizens", As: "delta_citizens", Agg: Sum},
			{Column: "total_pledge_in_year", As: "total_pledge_in_year", Agg: Max},
			{Column: "total_citizens_in_year", As: "total_citizens_in_year", Agg: Max},
		},
	)
}

func TestGetBeforeProcessFails(t *testing.T) {
	b := transactionBuilder()
	_, err := b.Get(Day, 30, false)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestProcessEmptyFails(t *testing.T) {
	b := transactionBuilder()
	err := b.Process(nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestProcessDeduplicatesKeepingLatest(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := []Observation{
		{Timestamp: start, Values: map[string]float64{"total_pledge": 100, "total_citizens": 10}},
		{Timestamp: start, Values: map[string]float64{"total_pledge": 120, "total_citizens": 12}},
	}
	b := transactionBuilder()
	require.NoError(t, b.Process(obs))

	v, err := b.Base().At(start, "total_pledge")
	require.NoError(t, err)
	assert.Equal(t, 120.0, v)
}

func TestProcessGapFillInterpolates(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := []Observation{
		{Timestamp: start, Values: map[string]float64{"total_pledge": 100, "total_citizens": 10}},
		// hour 1 missing
		{Timestamp: start.Add(2 * time.Hour), Values: map[string]float64{"total_pledge": 200, "total_citizens": 30}},
	}
	b := transactionBuilder()
	require.NoError(t, b.Process(obs))

	base := b.Base()
	assert.Equal(t, 3, base.Len())

	v, err := base.At(start.Add(time.Hour), "total_pledge")
	require.NoError(t, err)
	assert.Equal(t, 150.0, v)

	c, err := base.At(start.Add(time.Hour), "total_citizens")
	require.NoError(t, err)
	assert.Equal(t, 20.0, c)
}

func TestRecomputedDeltaFirstPeriodEqualsTotal(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	b := transactionBuilder()
	require.NoError(t, b.Process(hourlyObservations(start,
		[]float64{100, 150, 175},
		[]float64{10, 15, 18},
	)))

	deltas := b.Base().Column("delta_pledge")
	require.NotNil(t, deltas)
	assert.Equal(t, []float64{100, 50, 25}, deltas)
}

// Resampled deltas must reconcile with the running totals: the sum of
// delta_pledge over any resampled period equals the total at the
// period end minus the total at the end of the prior period.
func TestResampledDeltasReconcileWithTotals(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	totals := make([]float64, 72)
	citizens := make([]float64, 72)
	for i := range totals {
		totals[i] = 1000 + 7.5*float64(i)
		citizens[i] = 100 + float64(i)
	}
	b := transactionBuilder()
	require.NoError(t, b.Process(hourlyObservations(start, totals, citizens)))

	for _, freq := range []Frequency{Day, Week, Month, Year} {
		daily, err := b.Get(freq, 30, false)
		require.NoError(t, err)

		deltas := daily.Column("delta_pledge")
		recomputedTotals := daily.Column("total_pledge")
		require.NotNil(t, deltas, freq.String())
		require.NotNil(t, recomputedTotals, freq.String())

		running := 0.0
		for i := range deltas {
			running += deltas[i]
			assert.InDelta(t, running, recomputedTotals[i], 1e-9, "frequency %s period %d", freq, i)
		}
		// the final total equals the last base total
		assert.InDelta(t, totals[len(totals)-1], recomputedTotals[len(recomputedTotals)-1], 1e-9)
	}
}

func TestEndToEndHourlyToDaily(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := []Observation{
		{Timestamp: start, Values: map[string]float64{"total_pledge": 100, "total_citizens": 1}},
		{Timestamp: start.Add(time.Hour), Values: map[string]float64{"total_pledge": 150, "total_citizens": 2}},
	}
	b := transactionBuilder()
	require.NoError(t, b.Process(obs))

	daily, err := b.Get(Day, 30, false)
	require.NoError(t, err)
	require.Equal(t, 1, daily.Len())

	assert.Equal(t, 150.0, daily.Column("delta_pledge")[0])
	assert.Equal(t, 150.0, daily.Column("total_pledge")[0])
}

func TestInYearTotalsResetAtYearBoundary(t *testing.T) {
	// 48 hours spanning the 2022 → 2023 boundary
	start := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)
	totals := make([]float64, 48)
	citizens := make([]float64, 48)
	for i := range totals {
		totals[i] = 500 + 10*float64(i)
		citizens[i] = 50 + float64(i)
	}
	b := transactionBuilder()
	require.NoError(t, b.Process(hourlyObservations(start, totals, citizens)))

	daily, err := b.Get(Day, 30, false)
	require.NoError(t, err)
	require.Equal(t, 2, daily.Len())

	inYear := daily.Column("total_pledge_in_year")
	deltas := daily.Column("delta_pledge")
	require.NotNil(t, inYear)

	// first period of the new year restarts from its own delta
	assert.InDelta(t, deltas[1], inYear[1], 1e-9)
	// and the pre-boundary period keeps its own year's accumulation
	assert.InDelta(t, deltas[0], inYear[0], 1e-9)
}

func TestInYearTotalsNonDecreasingWithinYear(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	totals := make([]float64, 24*10)
	citizens := make([]float64, 24*10)
	for i := range totals {
		totals[i] = 1000 + 3*float64(i)
		citizens[i] = 10 + float64(i)
	}
	b := transactionBuilder()
	require.NoError(t, b.Process(hourlyObservations(start, totals, citizens)))

	daily, err := b.Get(Day, 30, false)
	require.NoError(t, err)

	inYear := daily.Column("total_pledge_in_year")
	for i := 1; i < len(inYear); i++ {
		assert.GreaterOrEqual(t, inYear[i], inYear[i-1])
	}
}

// The trailing rolling sum at period k covers periods k-N .. k-1 and
// never period k itself.
func TestRollingPriorSumExcludesCurrentPeriod(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	totals := make([]float64, 24*8)
	citizens := make([]float64, 24*8)
	running := 0.0
	for i := range totals {
		running += float64(i % 24)
		totals[i] = running
		citizens[i] = float64(i + 1)
	}
	b := transactionBuilder()
	require.NoError(t, b.Process(hourlyObservations(start, totals, citizens)))

	window := 3
	daily, err := b.Get(Day, window, false)
	require.NoError(t, err)

	deltas := daily.Column("delta_pledge")
	rolling := daily.Column("pledge_prior_3_periods")
	require.NotNil(t, rolling)

	assert.True(t, math.IsNaN(rolling[0]))
	for k := 1; k < len(deltas); k++ {
		lo := k - window
		if lo < 0 {
			lo = 0
		}
		want := 0.0
		for j := lo; j < k; j++ {
			want += deltas[j]
		}
		assert.InDelta(t, want, rolling[k], 1e-9, "period %d", k)
	}
}

func TestAveragesGuardDivisionByZero(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := []Observation{
		{Timestamp: start, Values: map[string]float64{"total_pledge": 100, "total_citizens": 0}},
		{Timestamp: start.Add(time.Hour), Values: map[string]float64{"total_pledge": 150, "total_citizens": 0}},
	}
	b := transactionBuilder()
	require.NoError(t, b.Process(obs))

	hourly, err := b.Get(Hour, 30, false)
	require.NoError(t, err)

	avg := hourly.Column("cumulative_avg_pledge_total")
	require.NotNil(t, avg)
	for _, v := range avg {
		assert.True(t, math.IsNaN(v))
	}
}

func TestTimeMetricsGranularity(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	totals := make([]float64, 24*400)
	citizens := make([]float64, 24*400)
	for i := range totals {
		totals[i] = float64(i)
		citizens[i] = float64(i)
	}
	b := transactionBuilder()
	require.NoError(t, b.Process(hourlyObservations(start, totals, citizens)))

	annual, err := b.Get(Year, 30, true)
	require.NoError(t, err)
	assert.True(t, annual.HasColumn("year"))
	assert.False(t, annual.HasColumn("quarter"))
	assert.False(t, annual.HasColumn("day_of_week"))
	assert.False(t, annual.HasColumn("hour"))
	assert.True(t, annual.HasLabel("period"))

	daily, err := b.Get(Day, 30, true)
	require.NoError(t, err)
	assert.True(t, daily.HasColumn("year"))
	assert.True(t, daily.HasColumn("week_of_year"))
	assert.True(t, daily.HasColumn("day_of_week"))
	assert.True(t, daily.HasColumn("is_weekend"))
	assert.False(t, daily.HasColumn("hour"))

	hourly, err := b.Get(Hour, 30, true)
	require.NoError(t, err)
	assert.True(t, hourly.HasColumn("hour"))
}

func TestWeeklySeriesAnchoredOnSunday(t *testing.T) {
	start := time.Date(2023, 6, 12, 0, 0, 0, 0, time.UTC) // a Monday
	totals := make([]float64, 24*14)
	citizens := make([]float64, 24*14)
	for i := range totals {
		totals[i] = float64(i)
		citizens[i] = float64(i)
	}
	b := transactionBuilder()
	require.NoError(t, b.Process(hourlyObservations(start, totals, citizens)))

	weekly, err := b.Get(Week, 4, false)
	require.NoError(t, err)
	for _, ts := range weekly.Index() {
		assert.Equal(t, time.Sunday, ts.Weekday())
	}
}

func TestResampleToFinerFrequencyFails(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBuilder(
		[]string{"on_sale"},
		[]string{"on_sale"},
		[]Rule{{Column: "on_sale", As: "on_sale", Agg: Sum}},
		WithBaseFrequency(Day),
		WithInterpolation(ForwardFill),
	)
	require.NoError(t, b.Process([]Observation{
		{Timestamp: start, Values: map[string]float64{"on_sale": 1}},
	}))

	_, err := b.Get(Hour, 30, false)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestCountDistinctAggregation(t *testing.T) {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC) // a Monday
	obs := make([]Observation, 10)
	for i := range obs {
		patch := 1.0
		if i >= 4 {
			patch = 2.0
		}
		obs[i] = Observation{
			Timestamp: start.AddDate(0, 0, i),
			Values:    map[string]float64{"patch_count": patch},
		}
	}
	b := NewBuilder(
		[]string{"patch_count"},
		nil,
		[]Rule{
			{Column: "patch_count", As: "patches_during_period", Agg: CountDistinct},
			{Column: "patch_count", As: "version_id", Agg: Max},
		},
		WithBaseFrequency(Day),
		WithInterpolation(ForwardFill),
	)
	require.NoError(t, b.Process(obs))

	weekly, err := b.Get(Week, 4, false)
	require.NoError(t, err)
	require.Equal(t, 2, weekly.Len())

	assert.Equal(t, 2.0, weekly.Column("patches_during_period")[0])
	assert.Equal(t, 2.0, weekly.Column("version_id")[0])
	assert.Equal(t, 1.0, weekly.Column("patches_during_period")[1])
}
