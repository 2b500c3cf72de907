package models

import "time"

// EarningsEntry is one upcoming earnings date for a tracked stock.
type EarningsEntry struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Date      string `json:"date"` // YYYY-MM-DD
	DaysUntil int    `json:"days_until"`
}

// EarningsCalendar maps config symbol to its next earnings entry.
type EarningsCalendar map[string]EarningsEntry

// SkippedSymbol records a requested symbol that produced no data, so
// operators can tell "provider has no data" from "code dropped it".
type SkippedSymbol struct {
	Symbol  string `json:"symbol"`
	Section string `json:"section"`
	Name    string `json:"name"`
}

// SectionQuotes maps config symbol to its quote within one section.
type SectionQuotes map[string]*Quote

// MarketSummary is the combined dashboard payload. Sections that were not
// requested are nil and omitted from the JSON.
type MarketSummary struct {
	Timestamp            time.Time       `json:"timestamp"`
	USIndices            SectionQuotes   `json:"us_indices,omitempty"`
	USStocks             SectionQuotes   `json:"us_stocks,omitempty"`
	TWMarkets            SectionQuotes   `json:"tw_markets,omitempty"`
	InternationalMarkets SectionQuotes   `json:"international_markets,omitempty"`
	MetalsFutures        SectionQuotes   `json:"metals_futures,omitempty"`
	Crypto               SectionQuotes   `json:"crypto,omitempty"`
	Ratios               *RatiosSummary  `json:"ratios,omitempty"`
	EarningsUpcoming     []EarningsEntry `json:"earnings_upcoming,omitempty"`
	EarningsUpcomingTW   []EarningsEntry `json:"earnings_upcoming_tw,omitempty"`
	MetalsSession        string          `json:"metals_session,omitempty"`
	MetalsSessionET      string          `json:"metals_session_et,omitempty"`
	SkippedSymbols       []SkippedSymbol `json:"skipped_symbols"`
}

// Section returns the quote map for a named section, nil when absent.
func (s *MarketSummary) Section(name string) SectionQuotes {
	switch name {
	case "us_indices":
		return s.USIndices
	case "us_stocks":
		return s.USStocks
	case "tw_markets":
		return s.TWMarkets
	case "international_markets":
		return s.InternationalMarkets
	case "metals_futures":
		return s.MetalsFutures
	case "crypto":
		return s.Crypto
	}
	return nil
}

// SetSection stores a quote map under a named section.
func (s *MarketSummary) SetSection(name string, quotes SectionQuotes) {
	switch name {
	case "us_indices":
		s.USIndices = quotes
	case "us_stocks":
		s.USStocks = quotes
	case "tw_markets":
		s.TWMarkets = quotes
	case "international_markets":
		s.InternationalMarkets = quotes
	case "metals_futures":
		s.MetalsFutures = quotes
	case "crypto":
		s.Crypto = quotes
	}
}
