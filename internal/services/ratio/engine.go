// Package ratio computes derived price ratios (gold/silver, ETH/BTC and
// friends) from two aligned daily close histories.
package ratio

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/haolin-w/pulse/internal/models"
)

// Alignment failure reasons, surfaced verbatim in the API payload.
const (
	errMissingData = "missing price data"
	errNoOverlap   = "no overlapping trading days"
	errNoPoints    = "no valid ratio points"
)

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// fillSeries reindexes a normalized series onto the given date axis,
// forward filling gaps and back filling dates before the first point.
// The fill is unbounded, so an isolated missing bar holds the prior
// close rather than discarding an otherwise good date.
func fillSeries(axis []time.Time, series models.TimeSeries) []float64 {
	byDate := make(map[time.Time]float64, len(series))
	for _, p := range series {
		byDate[p.Date] = p.Value
	}

	out := make([]float64, len(axis))
	carry := series[0].Value
	for i, d := range axis {
		if v, ok := byDate[d]; ok {
			carry = v
		}
		out[i] = carry
	}
	return out
}

// align restricts two histories to their shared trading dates and
// divides them. Returns the aligned ratio series, or a reason string
// when no honest series can be produced. Restricting to the
// intersection keeps different exchange calendars comparable: a date
// only one side traded never contributes a point.
func align(num, den models.TimeSeries) (models.TimeSeries, string) {
	num = num.Normalize()
	den = den.Normalize()
	if len(num) == 0 || len(den) == 0 {
		return nil, errMissingData
	}

	inDen := make(map[time.Time]bool, len(den))
	for _, p := range den {
		inDen[p.Date] = true
	}
	axis := make([]time.Time, 0, len(num))
	for _, p := range num {
		if inDen[p.Date] {
			axis = append(axis, p.Date)
		}
	}
	if len(axis) == 0 {
		return nil, errNoOverlap
	}
	sort.Slice(axis, func(i, j int) bool { return axis[i].Before(axis[j]) })

	numVals := fillSeries(axis, num)
	denVals := fillSeries(axis, den)

	ratio := make(models.TimeSeries, 0, len(axis))
	for i, d := range axis {
		// Zero or negative closes are data errors upstream; a ratio built
		// on them is meaningless, so those dates are dropped.
		if numVals[i] <= 0 || denVals[i] <= 0 {
			continue
		}
		ratio = append(ratio, models.SeriesPoint{Date: d, Value: round4(numVals[i] / denVals[i])})
	}
	if len(ratio) == 0 {
		return nil, errNoPoints
	}
	return ratio, ""
}

// result summarizes an aligned series into the API shape.
func result(def models.RatioDefinition, series models.TimeSeries, reason string) models.RatioResult {
	res := models.RatioResult{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Unit:        def.Unit,
		PeriodLabel: def.PeriodLabel(),
	}
	if reason != "" {
		res.Error = reason
		return res
	}

	low, high := series[0].Value, series[0].Value
	for _, p := range series[1:] {
		if p.Value < low {
			low = p.Value
		}
		if p.Value > high {
			high = p.Value
		}
	}
	res.Current = models.Float64(series[len(series)-1].Value)
	res.RangeLow = models.Float64(low)
	res.RangeHigh = models.Float64(high)
	return res
}

// resample reduces a daily series for plotting. "1M" keeps the last
// point of each calendar month, "1W" the last point of each ISO week;
// anything else passes the dailies through.
func resample(series models.TimeSeries, rule string) models.TimeSeries {
	switch rule {
	case "1M":
		return lastPerBucket(series, func(t time.Time) string {
			return t.Format("2006-01")
		})
	case "1W":
		return lastPerBucket(series, func(t time.Time) string {
			year, week := t.ISOWeek()
			return fmt.Sprintf("%04d-W%02d", year, week)
		})
	default:
		return series
	}
}

// lastPerBucket keeps the final point of each bucket, in date order.
// Input is already sorted, so the last write per bucket wins.
func lastPerBucket(series models.TimeSeries, bucket func(time.Time) string) models.TimeSeries {
	if len(series) == 0 {
		return series
	}
	out := make(models.TimeSeries, 0, len(series))
	var currentBucket string
	for _, p := range series {
		b := bucket(p.Date)
		if b == currentBucket && len(out) > 0 {
			out[len(out)-1] = p
			continue
		}
		currentBucket = b
		out = append(out, p)
	}
	return out
}
