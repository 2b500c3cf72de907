// Package interfaces defines service contracts for Pulse
package interfaces

import (
	"context"

	"github.com/haolin-w/pulse/internal/models"
)

// MarketService composes the combined dashboard payload.
type MarketService interface {
	// GetMarketSummary fetches the requested sections concurrently.
	// sections nil means all sections. A failing section yields an empty
	// bucket, never an error; absent symbols land in SkippedSymbols.
	GetMarketSummary(ctx context.Context, sections []string) (*models.MarketSummary, error)

	// GetStockHistory retrieves one symbol's close history for charting.
	GetStockHistory(ctx context.Context, symbol, period string) (*models.HistorySeries, error)

	// ClearCaches drops all quote, history, and earnings cache entries.
	// Used by the route layer's explicit refresh request.
	ClearCaches()
}

// RatioService computes derived price-ratio series.
type RatioService interface {
	// GetRatiosSummary computes all configured ratios. Cached 60s;
	// forceRefresh bypasses the cache.
	GetRatiosSummary(ctx context.Context, forceRefresh bool) (*models.RatiosSummary, error)

	// GetRatioHistory returns the aligned ratio series for one
	// definition, resampled to "1M" (month-end, default), "1W"
	// (week-end), or "1d" (raw daily). Unknown id returns ErrNotFound.
	GetRatioHistory(ctx context.Context, id, resample string) (*models.RatioHistory, error)

	// RenderHistoryChart renders the resampled ratio history as a PNG.
	RenderHistoryChart(ctx context.Context, id, resample string) ([]byte, error)
}

// InstitutionalService aggregates TWSE three-institution flows.
type InstitutionalService interface {
	// GetYearToDate walks the year's trading days, preferring uploaded
	// CSVs over network fetches, and returns cumulative totals. Cached
	// for the calendar day; forceRefresh bypasses.
	GetYearToDate(ctx context.Context, forceRefresh bool) (*models.InstitutionalYTD, error)

	// UploadedDates lists dates (YYYYMMDD) with a manually uploaded CSV.
	UploadedDates() []string

	// SaveUpload stores an uploaded BFI82U CSV, resolving its date from
	// the explicit form value, then the filename, then the content.
	// Returns the resolved YYYYMMDD date.
	SaveUpload(formDate, filename string, content []byte) (string, error)
}
