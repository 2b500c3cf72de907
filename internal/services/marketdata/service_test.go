package marketdata

import (
	"context"
	"fmt"
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

// fakeProvider serves canned quotes and counts calls.
type fakeProvider struct {
	mu     sync.Mutex
	quotes map[string]float64
	calls  map[string]int
	source string
	err    error
}

func newFakeProvider(source string, quotes map[string]float64) *fakeProvider {
	return &fakeProvider{
		quotes: quotes,
		calls:  make(map[string]int),
		source: source,
	}
}

func (f *fakeProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	f.mu.Lock()
	f.calls[symbol]++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	price, ok := f.quotes[symbol]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &models.Quote{
		Symbol:       symbol,
		Name:         symbol,
		CurrentPrice: models.Float64(price),
		Source:       f.source,
	}, nil
}

func (f *fakeProvider) History(ctx context.Context, symbol, period string) (models.TimeSeries, error) {
	f.mu.Lock()
	f.calls["history:"+symbol]++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	price, ok := f.quotes[symbol]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	base := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	return models.TimeSeries{
		{Date: base, Value: price - 1},
		{Date: base.AddDate(0, 0, 1), Value: price},
	}, nil
}

func (f *fakeProvider) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type fakeBatchProvider struct {
	quotes map[string]float64
	called int
}

func (f *fakeBatchProvider) Quotes(ctx context.Context, want map[string]string) (map[string]*models.Quote, error) {
	f.called++
	out := make(map[string]*models.Quote)
	for symbol := range want {
		if price, ok := f.quotes[symbol]; ok {
			out[symbol] = &models.Quote{
				Symbol:       symbol,
				CurrentPrice: models.Float64(price),
				Source:       "batch",
			}
		}
	}
	return out, nil
}

type fakeEarningsProvider struct {
	calendar models.EarningsCalendar
	err      error
	called   int
}

func (f *fakeEarningsProvider) EarningsCalendar(ctx context.Context, from, to time.Time, universe map[string]string) (models.EarningsCalendar, error) {
	f.called++
	if f.err != nil {
		return nil, f.err
	}
	return f.calendar, nil
}

type fakeRatioService struct {
	called int
}

func (f *fakeRatioService) GetRatiosSummary(ctx context.Context, forceRefresh bool) (*models.RatiosSummary, error) {
	f.called++
	return &models.RatiosSummary{Ratios: []models.RatioResult{{ID: "gold_silver"}}}, nil
}

func (f *fakeRatioService) GetRatioHistory(ctx context.Context, id, resample string) (*models.RatioHistory, error) {
	return nil, interfaces.ErrNotFound
}

func (f *fakeRatioService) RenderHistoryChart(ctx context.Context, id, resample string) ([]byte, error) {
	return nil, interfaces.ErrNotFound
}

func testRegistry() *symbols.Registry {
	return &symbols.Registry{
		Sections: map[string]map[string]string{
			"us_indices": {"^GSPC": "S&P 500", "^DJI": "Dow Jones"},
			"us_stocks":  {"AAPL": "Apple", "MSFT": "Microsoft", "NVDA": "NVIDIA"},
			"tw_markets": {"2330.TW": "台積電"},
			"metals_futures": {
				"GC=F": "Gold", "SI=F": "Silver",
			},
			"crypto": {"BTC-USD": "Bitcoin"},
		},
	}
}

func newTestService(primary *fakeProvider, opts ...Option) *Service {
	base := []Option{WithPrimary(primary)}
	return NewService(testRegistry(), cache.New(), common.NewSilentLogger(), append(base, opts...)...)
}

func TestFetchSectionPartialFailure(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{
		"AAPL": 185.0,
		"NVDA": 880.0,
		// MSFT missing on purpose
	})
	svc := newTestService(primary)

	quotes, skipped := svc.fetchSection(context.Background(), "us_stocks")

	assert.Len(t, quotes, 2)
	assert.Equal(t, []string{"MSFT"}, skipped)
	require.NotNil(t, quotes["AAPL"].CurrentPrice)
	assert.Equal(t, 185.0, *quotes["AAPL"].CurrentPrice)
}

func TestFetchQuoteUsesCache(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{"AAPL": 185.0})
	svc := newTestService(primary)

	first := svc.fetchQuote(context.Background(), "us_stocks", "AAPL")
	second := svc.fetchQuote(context.Background(), "us_stocks", "AAPL")

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, 1, primary.callCount("AAPL"))
}

func TestFetchQuoteFallbackChain(t *testing.T) {
	primary := newFakeProvider("yahoo", nil) // knows nothing
	fallback := newFakeProvider("finnhub", map[string]float64{"MSFT": 410.0})
	svc := newTestService(primary, WithStockFallback(fallback))

	quote := svc.fetchQuote(context.Background(), "us_stocks", "MSFT")

	require.NotNil(t, quote)
	assert.Equal(t, "finnhub", quote.Source)
	assert.Equal(t, 1, primary.callCount("MSFT"))
}

func TestFetchSectionBatchFill(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{"^GSPC": 5200.0})
	batch := &fakeBatchProvider{quotes: map[string]float64{"^DJI": 39000.0}}
	svc := newTestService(primary, WithIndexFallback(batch))

	quotes, skipped := svc.fetchSection(context.Background(), "us_indices")

	assert.Empty(t, skipped)
	require.Len(t, quotes, 2)
	assert.Equal(t, "batch", quotes["^DJI"].Source)
	assert.Equal(t, 1, batch.called)
}

func TestGetMarketSummarySkippedSymbols(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{
		"^GSPC": 5200.0, "^DJI": 39000.0,
		"AAPL": 185.0, "NVDA": 880.0,
		"2330.TW": 1050.0,
		"GC=F":    2100.0, "SI=F": 24.5,
	})
	crypto := newFakeProvider("deribit", nil) // crypto venue down
	svc := newTestService(primary, WithCryptoProvider(crypto))

	summary, err := svc.GetMarketSummary(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, summary.USIndices, 2)
	assert.Len(t, summary.USStocks, 2)
	assert.Len(t, summary.Crypto, 0)

	// MSFT has no data, BTC's venue failed entirely.
	require.Len(t, summary.SkippedSymbols, 2)
	assert.Equal(t, models.SkippedSymbol{Symbol: "MSFT", Section: "us_stocks", Name: "Microsoft"}, summary.SkippedSymbols[0])
	assert.Equal(t, models.SkippedSymbol{Symbol: "BTC-USD", Section: "crypto", Name: "Bitcoin"}, summary.SkippedSymbols[1])
}

func TestGetMarketSummarySectionFilter(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{"GC=F": 2100.0, "SI=F": 24.5})
	svc := newTestService(primary)

	summary, err := svc.GetMarketSummary(context.Background(), []string{"metals_futures", "bogus_section"})
	require.NoError(t, err)

	assert.Nil(t, summary.USIndices)
	assert.Nil(t, summary.Crypto)
	assert.Len(t, summary.MetalsFutures, 2)
}

func TestMetalsSessionStamp(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{"GC=F": 2100.0, "SI=F": 24.5})

	// Monday 2026-03-09 10:00 Eastern = 14:00 UTC (EDT).
	monday := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)
	svc := newTestService(primary, WithClock(func() time.Time { return monday }))

	summary, err := svc.GetMarketSummary(context.Background(), []string{"metals_futures"})
	require.NoError(t, err)

	assert.Equal(t, "day", summary.MetalsSession)
	assert.Equal(t, "day", summary.MetalsFutures["GC=F"].Session)

	// Saturday is always the night session.
	saturday := time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC)
	svc2 := newTestService(newFakeProvider("yahoo", map[string]float64{"GC=F": 2100.0, "SI=F": 24.5}),
		WithClock(func() time.Time { return saturday }))
	summary2, err := svc2.GetMarketSummary(context.Background(), []string{"metals_futures"})
	require.NoError(t, err)
	assert.Equal(t, "night", summary2.MetalsSession)
}

func TestAnnotationsNeverTouchCachedQuotes(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{
		"AAPL": 185.0, "MSFT": 410.0, "NVDA": 880.0,
		"GC=F": 2100.0, "SI=F": 24.5,
	})
	now := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC) // day session
	earnings := &fakeEarningsProvider{calendar: models.EarningsCalendar{
		"AAPL": {Symbol: "AAPL", Name: "Apple", Date: "2026-03-11"},
	}}
	svc := newTestService(primary,
		WithEarningsProviders(earnings),
		WithClock(func() time.Time { return now }),
	)

	summary, err := svc.GetMarketSummary(context.Background(), []string{"us_stocks", "metals_futures"})
	require.NoError(t, err)
	assert.Equal(t, "day", summary.MetalsFutures["GC=F"].Session)
	assert.Equal(t, "2026-03-11", summary.USStocks["AAPL"].EarningsDate)

	// The annotations live on the summary's copies; the entries the
	// cache hands to the next caller stay pristine.
	cachedGold := svc.fetchQuote(context.Background(), "metals_futures", "GC=F")
	require.NotNil(t, cachedGold)
	assert.Empty(t, cachedGold.Session)

	cachedApple := svc.fetchQuote(context.Background(), "us_stocks", "AAPL")
	require.NotNil(t, cachedApple)
	assert.Empty(t, cachedApple.EarningsDate)
	assert.Nil(t, cachedApple.EarningsDaysUntil)
}

func TestGetMarketSummaryConcurrentRequests(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{"GC=F": 2100.0, "SI=F": 24.5})
	svc := newTestService(primary)

	// Warm the cache so every request annotates the same entries.
	_, err := svc.GetMarketSummary(context.Background(), []string{"metals_futures"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := svc.GetMarketSummary(context.Background(), []string{"metals_futures"})
			assert.NoError(t, err)
			assert.NotEmpty(t, summary.MetalsFutures["GC=F"].Session)
		}()
	}
	wg.Wait()
}

func TestGetMarketSummaryIdempotentWithinTTL(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{
		"^GSPC": 5200.0, "^DJI": 39000.0,
		"AAPL": 185.0, "MSFT": 410.0, "NVDA": 880.0,
		"2330.TW": 1050.0,
		"GC=F":    2100.0, "SI=F": 24.5,
	})
	earnings := &fakeEarningsProvider{calendar: models.EarningsCalendar{
		"AAPL": {Symbol: "AAPL", Name: "Apple", Date: "2026-03-11"},
	}}
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	svc := newTestService(primary,
		WithEarningsProviders(earnings),
		WithClock(func() time.Time { return now }),
	)

	first, err := svc.GetMarketSummary(context.Background(), nil)
	require.NoError(t, err)
	second, err := svc.GetMarketSummary(context.Background(), nil)
	require.NoError(t, err)

	second.Timestamp = first.Timestamp
	assert.Equal(t, first, second)
}

func TestGetMarketSummaryRatiosOnlyWhenRequested(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{
		"^GSPC": 5200.0, "^DJI": 39000.0,
		"GC=F": 2100.0, "SI=F": 24.5,
	})
	ratios := &fakeRatioService{}
	svc := newTestService(primary, WithRatioService(ratios))

	// A partial refresh must not trigger the ratio computation.
	summary, err := svc.GetMarketSummary(context.Background(), []string{"us_indices"})
	require.NoError(t, err)
	assert.Nil(t, summary.Ratios)
	assert.Equal(t, 0, ratios.called)

	// Naming the section brings it back.
	summary, err = svc.GetMarketSummary(context.Background(), []string{"us_indices", "ratios"})
	require.NoError(t, err)
	require.NotNil(t, summary.Ratios)
	assert.Equal(t, 1, ratios.called)

	// The full summary always includes it.
	summary, err = svc.GetMarketSummary(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, summary.Ratios)
	assert.Equal(t, 2, ratios.called)
}

func TestEarningsAnnotation(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{"AAPL": 185.0, "MSFT": 410.0, "NVDA": 880.0})
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	earnings := &fakeEarningsProvider{calendar: models.EarningsCalendar{
		"NVDA": {Symbol: "NVDA", Name: "NVIDIA", Date: "2026-03-11"},
		"AAPL": {Symbol: "AAPL", Name: "Apple", Date: "2026-03-11"},
		"MSFT": {Symbol: "MSFT", Name: "Microsoft", Date: "2026-06-15"}, // beyond the 60-day window
	}}
	svc := newTestService(primary,
		WithEarningsProviders(earnings),
		WithClock(func() time.Time { return now }),
	)

	summary, err := svc.GetMarketSummary(context.Background(), []string{"us_stocks"})
	require.NoError(t, err)

	require.Len(t, summary.EarningsUpcoming, 2)
	// Same date sorts by symbol.
	assert.Equal(t, "AAPL", summary.EarningsUpcoming[0].Symbol)
	assert.Equal(t, "NVDA", summary.EarningsUpcoming[1].Symbol)
	assert.Equal(t, 2, summary.EarningsUpcoming[0].DaysUntil)

	quote := summary.USStocks["AAPL"]
	assert.Equal(t, "2026-03-11", quote.EarningsDate)
	require.NotNil(t, quote.EarningsDaysUntil)
	assert.Equal(t, 2, *quote.EarningsDaysUntil)

	msft := summary.USStocks["MSFT"]
	assert.Empty(t, msft.EarningsDate)
}

func TestEarningsCalendarCached(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{"AAPL": 185.0, "MSFT": 410.0, "NVDA": 880.0})
	earnings := &fakeEarningsProvider{calendar: models.EarningsCalendar{}}
	svc := newTestService(primary, WithEarningsProviders(earnings))

	ctx := context.Background()
	_, err := svc.GetMarketSummary(ctx, []string{"us_stocks"})
	require.NoError(t, err)
	_, err = svc.GetMarketSummary(ctx, []string{"us_stocks"})
	require.NoError(t, err)

	assert.Equal(t, 1, earnings.called)
}

func TestGetStockHistory(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{"AAPL": 185.0})
	svc := newTestService(primary)

	series, err := svc.GetStockHistory(context.Background(), "AAPL", "6mo")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", series.Symbol)
	assert.Equal(t, "Apple", series.Name)
	assert.Equal(t, []string{"2026-03-02", "2026-03-03"}, series.Dates)
	assert.Equal(t, []float64{184.0, 185.0}, series.Values)

	// Second read is served from cache.
	_, err = svc.GetStockHistory(context.Background(), "AAPL", "6mo")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.callCount("history:AAPL"))
}

func TestGetStockHistoryInvalidPeriod(t *testing.T) {
	svc := newTestService(newFakeProvider("yahoo", nil))
	_, err := svc.GetStockHistory(context.Background(), "AAPL", "13mo")
	assert.Error(t, err)
}

func TestClearCaches(t *testing.T) {
	primary := newFakeProvider("yahoo", map[string]float64{"AAPL": 185.0})
	svc := newTestService(primary)

	_ = svc.fetchQuote(context.Background(), "us_stocks", "AAPL")
	svc.ClearCaches()
	_ = svc.fetchQuote(context.Background(), "us_stocks", "AAPL")

	assert.Equal(t, 2, primary.callCount("AAPL"))
}

func TestUnknownSectionName(t *testing.T) {
	svc := newTestService(newFakeProvider("yahoo", nil))
	resolved := svc.resolveSections([]string{"us_stocks", "nope"})
	assert.Equal(t, []string{"us_stocks"}, resolved)
}

func TestQuoteCacheKeyShape(t *testing.T) {
	assert.Equal(t, "quote_GC=F_2d_1d", quoteCacheKey("GC=F"))
	assert.Equal(t, fmt.Sprintf("history_%s_%s_1d", "AAPL", "6mo"), historyCacheKey("AAPL", "6mo"))
}
