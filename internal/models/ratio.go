package models

import "time"

// RatioDefinition describes one derived price ratio. Definitions are
// immutable, loaded from the symbol registry file at startup.
type RatioDefinition struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Numerator   string `json:"num" yaml:"num"`
	Denominator string `json:"denom" yaml:"denom"`
	Period      string `json:"period" yaml:"period"` // "20y" or "max"
	Unit        string `json:"unit" yaml:"unit"`
	Description string `json:"desc" yaml:"desc"`
}

// PeriodLabel returns the human label for the definition's lookback.
func (d RatioDefinition) PeriodLabel() string {
	if d.Period == "20y" {
		return "20y"
	}
	return "all-time"
}

// RatioResult is the computed state of one ratio. When the underlying
// histories could not be aligned, Error is set and the numeric fields are
// nil — never a fabricated ratio.
type RatioResult struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Unit        string   `json:"unit"`
	Current     *float64 `json:"current"`
	RangeHigh   *float64 `json:"range_high"`
	RangeLow    *float64 `json:"range_low"`
	PeriodLabel string   `json:"period_label"`
	Error       string   `json:"error,omitempty"`
}

// RatiosSummary is the combined payload for all configured ratios.
type RatiosSummary struct {
	Ratios    []RatioResult `json:"ratios"`
	Timestamp time.Time     `json:"timestamp"`
}

// RatioHistory is the plot-ready resampled series for one ratio.
type RatioHistory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PeriodLabel string    `json:"period_label"`
	Dates       []string  `json:"dates"`
	Values      []float64 `json:"values"`
}
