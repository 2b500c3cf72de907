package models

import (
	"sort"
	"time"
)

// SeriesPoint is one (date, value) observation in a time series.
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// TimeSeries is an ordered sequence of daily observations. After
// Normalize, dates are date-only (midnight UTC), strictly increasing,
// with no duplicates.
type TimeSeries []SeriesPoint

// Normalize strips time-of-day and timezone from every date and collapses
// duplicate normalized dates, keeping the latest by source order. Providers
// timestamp daily bars in different timezones (a 24-hour crypto feed vs. a
// session-bound futures feed); without this no date ever matches across
// sources.
func (ts TimeSeries) Normalize() TimeSeries {
	if len(ts) == 0 {
		return ts
	}
	byDate := make(map[time.Time]float64, len(ts))
	for _, p := range ts {
		d := DateOnly(p.Date)
		byDate[d] = p.Value
	}
	out := make(TimeSeries, 0, len(byDate))
	for d, v := range byDate {
		out = append(out, SeriesPoint{Date: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Last returns the final point, or false when the series is empty.
func (ts TimeSeries) Last() (SeriesPoint, bool) {
	if len(ts) == 0 {
		return SeriesPoint{}, false
	}
	return ts[len(ts)-1], true
}

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// HistorySeries is the plot-ready payload for a single symbol's closes.
type HistorySeries struct {
	Symbol string    `json:"symbol"`
	Name   string    `json:"name"`
	Period string    `json:"period"`
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
}
