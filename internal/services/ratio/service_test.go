package ratio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haolin-w/pulse/internal/cache"
	"github.com/haolin-w/pulse/internal/common"
	"github.com/haolin-w/pulse/internal/interfaces"
	"github.com/haolin-w/pulse/internal/models"
	"github.com/haolin-w/pulse/internal/symbols"
)

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

type fakeHistory struct {
	mu     sync.Mutex
	series map[string]models.TimeSeries
	calls  int
}

func (f *fakeHistory) History(ctx context.Context, symbol, period string) (models.TimeSeries, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	s, ok := f.series[symbol]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return s, nil
}

func goldSilverRegistry() *symbols.Registry {
	r, err := symbols.Load("")
	if err != nil {
		panic(err)
	}
	return r
}

func newTestService(h *fakeHistory) *Service {
	return NewService(goldSilverRegistry(), cache.New(), h, common.NewSilentLogger())
}

func TestAlignBasic(t *testing.T) {
	num := models.TimeSeries{
		{Date: day(2), Value: 2000},
		{Date: day(3), Value: 2040},
	}
	den := models.TimeSeries{
		{Date: day(2), Value: 25},
		{Date: day(3), Value: 25.5},
	}

	series, reason := align(num, den)
	require.Empty(t, reason)
	require.Len(t, series, 2)
	assert.Equal(t, 80.0, series[0].Value)
	assert.Equal(t, 80.0, series[1].Value)
}

func TestAlignRestrictsToSharedDates(t *testing.T) {
	// A date only one exchange traded contributes nothing, so the
	// denominator's lone holiday gap drops that day from the axis.
	num := models.TimeSeries{
		{Date: day(2), Value: 2000},
		{Date: day(3), Value: 2100},
		{Date: day(4), Value: 2200},
	}
	den := models.TimeSeries{
		{Date: day(2), Value: 25},
		{Date: day(4), Value: 27.5},
	}

	series, reason := align(num, den)
	require.Empty(t, reason)
	require.Len(t, series, 2)
	assert.Equal(t, day(2), series[0].Date)
	assert.Equal(t, 80.0, series[0].Value)
	assert.Equal(t, day(4), series[1].Date)
	assert.Equal(t, 80.0, series[1].Value)
}

func TestAlignShortDenominator(t *testing.T) {
	// A late-starting denominator shrinks the shared range; the early
	// numerator dates never produce points.
	num := models.TimeSeries{
		{Date: day(2), Value: 100},
		{Date: day(3), Value: 110},
		{Date: day(4), Value: 120},
	}
	den := models.TimeSeries{
		{Date: day(3), Value: 10},
		{Date: day(4), Value: 12},
	}

	series, reason := align(num, den)
	require.Empty(t, reason)
	require.Len(t, series, 2)
	assert.Equal(t, day(3), series[0].Date)
	assert.Equal(t, 11.0, series[0].Value)
	assert.Equal(t, 10.0, series[1].Value)
}

func TestAlignDropsNonPositive(t *testing.T) {
	num := models.TimeSeries{
		{Date: day(2), Value: 2000},
		{Date: day(3), Value: 2040},
	}
	den := models.TimeSeries{
		{Date: day(2), Value: 0}, // bad tick
		{Date: day(3), Value: 25.5},
	}

	series, reason := align(num, den)
	require.Empty(t, reason)
	require.Len(t, series, 1)
	assert.Equal(t, day(3), series[0].Date)
}

func TestAlignNoOverlap(t *testing.T) {
	num := models.TimeSeries{{Date: day(2), Value: 1}, {Date: day(3), Value: 2}}
	den := models.TimeSeries{{Date: day(10), Value: 3}, {Date: day(11), Value: 4}}

	_, reason := align(num, den)
	assert.Equal(t, errNoOverlap, reason)
}

func TestAlignInterleavedDatesNeverShare(t *testing.T) {
	// Overlapping calendar ranges but no common trading date is still
	// an alignment failure, not a fabricated series.
	num := models.TimeSeries{{Date: day(2), Value: 1}, {Date: day(4), Value: 2}}
	den := models.TimeSeries{{Date: day(3), Value: 3}, {Date: day(5), Value: 4}}

	_, reason := align(num, den)
	assert.Equal(t, errNoOverlap, reason)
}

func TestAlignNoValidPoints(t *testing.T) {
	num := models.TimeSeries{{Date: day(2), Value: -1}}
	den := models.TimeSeries{{Date: day(2), Value: 5}}

	_, reason := align(num, den)
	assert.Equal(t, errNoPoints, reason)
}

func TestAlignEmptySeries(t *testing.T) {
	_, reason := align(nil, models.TimeSeries{{Date: day(2), Value: 5}})
	assert.Equal(t, errMissingData, reason)
}

func TestAlignRoundsToFourDecimals(t *testing.T) {
	num := models.TimeSeries{{Date: day(2), Value: 1}}
	den := models.TimeSeries{{Date: day(2), Value: 3}}

	series, reason := align(num, den)
	require.Empty(t, reason)
	assert.Equal(t, 0.3333, series[0].Value)
}

func TestAlignNormalizesTimestamps(t *testing.T) {
	// Crypto bars at midnight UTC, futures bars at the session close:
	// both collapse to the same calendar date.
	num := models.TimeSeries{{Date: time.Date(2026, 3, 2, 21, 30, 0, 0, time.UTC), Value: 2000}}
	den := models.TimeSeries{{Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Value: 25}}

	series, reason := align(num, den)
	require.Empty(t, reason)
	require.Len(t, series, 1)
	assert.Equal(t, 80.0, series[0].Value)
}

func TestResampleMonthly(t *testing.T) {
	series := models.TimeSeries{
		{Date: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), Value: 1},
		{Date: time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC), Value: 2},
		{Date: time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC), Value: 3},
	}

	sampled := resample(series, "1M")
	require.Len(t, sampled, 2)
	assert.Equal(t, 2.0, sampled[0].Value) // last point of January
	assert.Equal(t, 3.0, sampled[1].Value)
}

func TestResampleWeekly(t *testing.T) {
	series := models.TimeSeries{
		{Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Value: 1},  // Monday
		{Date: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), Value: 2},  // Friday, same week
		{Date: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), Value: 3},  // next Monday
	}

	sampled := resample(series, "1W")
	require.Len(t, sampled, 2)
	assert.Equal(t, 2.0, sampled[0].Value)
}

func TestResampleDailyPassthrough(t *testing.T) {
	series := models.TimeSeries{{Date: day(2), Value: 1}, {Date: day(3), Value: 2}}
	assert.Len(t, resample(series, "1d"), 2)
}

func TestGetRatiosSummary(t *testing.T) {
	h := &fakeHistory{series: map[string]models.TimeSeries{
		"GC=F": {{Date: day(2), Value: 2000}, {Date: day(3), Value: 2040}},
		"SI=F": {{Date: day(2), Value: 25}, {Date: day(3), Value: 24}},
	}}
	svc := newTestService(h)

	summary, err := svc.GetRatiosSummary(context.Background(), false)
	require.NoError(t, err)
	require.NotEmpty(t, summary.Ratios)

	var goldSilver *models.RatioResult
	for i := range summary.Ratios {
		if summary.Ratios[i].ID == "gold_silver" {
			goldSilver = &summary.Ratios[i]
		} else {
			// Legs without data fail with a reason, never a fake number.
			assert.NotEmpty(t, summary.Ratios[i].Error)
			assert.Nil(t, summary.Ratios[i].Current)
		}
	}
	require.NotNil(t, goldSilver)
	assert.Empty(t, goldSilver.Error)
	require.NotNil(t, goldSilver.Current)
	assert.Equal(t, 85.0, *goldSilver.Current)
	assert.Equal(t, 80.0, *goldSilver.RangeLow)
	assert.Equal(t, 85.0, *goldSilver.RangeHigh)
}

func TestGetRatiosSummaryCached(t *testing.T) {
	h := &fakeHistory{series: map[string]models.TimeSeries{
		"GC=F": {{Date: day(2), Value: 2000}},
		"SI=F": {{Date: day(2), Value: 25}},
	}}
	svc := newTestService(h)

	ctx := context.Background()
	_, err := svc.GetRatiosSummary(ctx, false)
	require.NoError(t, err)
	callsAfterFirst := h.calls

	_, err = svc.GetRatiosSummary(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, h.calls)

	// forceRefresh recomputes, but leg histories stay cached.
	_, err = svc.GetRatiosSummary(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, h.calls)
}

func TestGetRatioHistory(t *testing.T) {
	h := &fakeHistory{series: map[string]models.TimeSeries{
		"GC=F": {
			{Date: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), Value: 2000},
			{Date: time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), Value: 2100},
		},
		"SI=F": {
			{Date: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), Value: 25},
			{Date: time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), Value: 26.25},
		},
	}}
	svc := newTestService(h)

	history, err := svc.GetRatioHistory(context.Background(), "gold_silver", "1M")
	require.NoError(t, err)

	assert.Equal(t, "gold_silver", history.ID)
	assert.Equal(t, "20y", history.PeriodLabel)
	assert.Equal(t, []string{"2026-01-15", "2026-02-16"}, history.Dates)
	assert.Equal(t, []float64{80.0, 80.0}, history.Values)
}

func TestGetRatioHistoryUnknownID(t *testing.T) {
	svc := newTestService(&fakeHistory{})
	_, err := svc.GetRatioHistory(context.Background(), "nope", "1M")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestGetRatioHistoryAlignmentFailureIsNotFound(t *testing.T) {
	// Legs that never share a trading date produce no series, which is
	// not-found to the caller, not an upstream fault.
	h := &fakeHistory{series: map[string]models.TimeSeries{
		"GC=F": {{Date: day(2), Value: 2000}},
		"SI=F": {{Date: day(3), Value: 25}},
	}}
	svc := newTestService(h)

	_, err := svc.GetRatioHistory(context.Background(), "gold_silver", "1M")
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
	assert.Contains(t, err.Error(), errNoOverlap)

	_, err = svc.RenderHistoryChart(context.Background(), "gold_silver", "1M")
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestRenderHistoryChart(t *testing.T) {
	h := &fakeHistory{series: map[string]models.TimeSeries{
		"GC=F": {
			{Date: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), Value: 2000},
			{Date: time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), Value: 2100},
			{Date: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), Value: 2150},
		},
		"SI=F": {
			{Date: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), Value: 25},
			{Date: time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), Value: 26},
			{Date: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), Value: 24},
		},
	}}
	svc := newTestService(h)

	png, err := svc.RenderHistoryChart(context.Background(), "gold_silver", "1M")
	require.NoError(t, err)
	require.NotEmpty(t, png)
	// PNG magic bytes
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestRenderHistoryChartUnknownID(t *testing.T) {
	svc := newTestService(&fakeHistory{})
	_, err := svc.RenderHistoryChart(context.Background(), "nope", "1M")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}
