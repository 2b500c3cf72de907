// Package interfaces defines service contracts for Pulse
package interfaces

import (
	"context"
	"time"

	"github.com/haolin-w/pulse/internal/models"
)

// QuoteProvider fetches a single live quote for a config symbol. Every
// provider translates the config symbol to its native vocabulary
// internally; an unmapped symbol returns ErrNotFound without a network
// call.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// HistoryProvider fetches a daily close history for a config symbol.
// period uses Yahoo-style range strings: "3mo", "6mo", "1y", "20y", "max".
type HistoryProvider interface {
	History(ctx context.Context, symbol string, period string) (models.TimeSeries, error)
}

// PrimaryProvider is the full-service price source: quotes plus
// multi-year history for all symbol classes.
type PrimaryProvider interface {
	QuoteProvider
	HistoryProvider
}

// BatchQuoteProvider fetches quotes for several config symbols in one
// upstream call. symbols maps config symbol to display name; symbols the
// provider cannot serve are simply absent from the result.
type BatchQuoteProvider interface {
	Quotes(ctx context.Context, symbols map[string]string) (map[string]*models.Quote, error)
}

// EarningsProvider fetches upcoming earnings dates for the given symbols
// within [from, to]. symbols maps config symbol to display name.
type EarningsProvider interface {
	EarningsCalendar(ctx context.Context, from, to time.Time, symbols map[string]string) (models.EarningsCalendar, error)
}

// InstitutionalReportProvider fetches the TWSE three-institution daily
// net buy/sell report for one trading day.
type InstitutionalReportProvider interface {
	DailyReport(ctx context.Context, date time.Time) (*models.InstitutionalDailyNet, error)
}
