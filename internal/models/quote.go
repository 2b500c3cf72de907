// Package models defines data structures for Pulse
package models

import "time"

// Quote holds a provider-agnostic snapshot of one instrument.
//
// Price fields are pointers: nil means the provider did not supply the
// value, which is distinct from a legitimate zero (volume can be zero on
// a holiday session; a price never legitimately is).
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	DisplayName   string    `json:"display_name,omitempty"`
	CurrentPrice  *float64  `json:"current_price"`
	PreviousClose *float64  `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	High          *float64  `json:"high"`
	Low           *float64  `json:"low"`
	Open          *float64  `json:"open"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source,omitempty"`

	// Short embedded history, when the provider returned one alongside
	// the quote (the primary provider does, fallbacks don't).
	History TimeSeries `json:"history,omitempty"`

	// Earnings annotations merged in by the summary composer.
	EarningsDate      string `json:"earnings_date,omitempty"`
	EarningsDaysUntil *int   `json:"earnings_days_until,omitempty"`

	// Session is the COMEX day/night session label, metals only.
	Session string `json:"session,omitempty"`
}

// Float64 returns a pointer to v. Convenience for building quotes.
func Float64(v float64) *float64 {
	return &v
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
