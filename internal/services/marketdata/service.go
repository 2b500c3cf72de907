// Package marketdata orchestrates quote fetching across providers: a
// bounded worker pool fans out per-symbol requests, a read-through TTL
// cache absorbs dashboard refreshes, and per-section fallback chains
// keep a degraded provider from blanking a whole section.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haolin-w/pulse/internal/cache"
	"github.com/haolin-w/pulse/internal/common"
	"github.com/haolin-w/pulse/internal/interfaces"
	"github.com/haolin-w/pulse/internal/models"
	"github.com/haolin-w/pulse/internal/symbols"
)

// DefaultWorkers bounds the per-symbol fetch fan-out.
const DefaultWorkers = 8

// Service implements interfaces.MarketService.
type Service struct {
	registry *symbols.Registry
	store    *cache.Store
	logger   *common.Logger
	now      func() time.Time
	workers  int

	primary  interfaces.PrimaryProvider
	crypto   interfaces.QuoteProvider
	metals   interfaces.QuoteProvider
	stocks   interfaces.QuoteProvider
	indices  interfaces.BatchQuoteProvider
	earnings []interfaces.EarningsProvider

	ratios interfaces.RatioService

	eastern *time.Location
	taipei  *time.Location
}

// Option configures the service
type Option func(*Service)

// WithPrimary sets the primary full-service provider.
func WithPrimary(p interfaces.PrimaryProvider) Option {
	return func(s *Service) { s.primary = p }
}

// WithCryptoProvider sets the crypto quote source.
func WithCryptoProvider(p interfaces.QuoteProvider) Option {
	return func(s *Service) { s.crypto = p }
}

// WithMetalsFallback sets the metals fallback quote source.
func WithMetalsFallback(p interfaces.QuoteProvider) Option {
	return func(s *Service) { s.metals = p }
}

// WithStockFallback sets the US stock and index per-symbol fallback.
func WithStockFallback(p interfaces.QuoteProvider) Option {
	return func(s *Service) { s.stocks = p }
}

// WithIndexFallback sets the batch fallback for US indices.
func WithIndexFallback(p interfaces.BatchQuoteProvider) Option {
	return func(s *Service) { s.indices = p }
}

// WithEarningsProviders sets the earnings calendar sources, tried in order.
func WithEarningsProviders(ps ...interfaces.EarningsProvider) Option {
	return func(s *Service) { s.earnings = ps }
}

// WithRatioService attaches the ratio engine so summaries can embed the
// combined ratios payload.
func WithRatioService(r interfaces.RatioService) Option {
	return func(s *Service) { s.ratios = r }
}

// WithWorkers overrides the fan-out bound.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the market data service.
func NewService(registry *symbols.Registry, store *cache.Store, logger *common.Logger, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		store:    store,
		logger:   logger,
		now:      time.Now,
		workers:  DefaultWorkers,
	}

	for _, opt := range opts {
		opt(s)
	}

	// Exchange timezones drive the session stamp and earnings day math.
	// A missing tz database degrades to fixed offsets rather than UTC.
	var err error
	if s.eastern, err = time.LoadLocation("America/New_York"); err != nil {
		s.eastern = time.FixedZone("EST", -5*3600)
	}
	if s.taipei, err = time.LoadLocation("Asia/Taipei"); err != nil {
		s.taipei = time.FixedZone("CST", 8*3600)
	}

	return s
}

func quoteCacheKey(symbol string) string {
	return fmt.Sprintf("quote_%s_2d_1d", symbol)
}

func historyCacheKey(symbol, period string) string {
	return fmt.Sprintf("history_%s_%s_1d", symbol, period)
}

// fallbackChain returns the per-symbol providers for a section, in
// order. Crypto never goes through the primary provider: the chart API
// serves crypto but with worse freshness than the derivatives venue.
func (s *Service) fallbackChain(section string) []interfaces.QuoteProvider {
	switch section {
	case "crypto":
		if s.crypto != nil {
			return []interfaces.QuoteProvider{s.crypto}
		}
		return nil
	case "us_indices", "us_stocks":
		chain := []interfaces.QuoteProvider{}
		if s.primary != nil {
			chain = append(chain, s.primary)
		}
		if s.stocks != nil {
			chain = append(chain, s.stocks)
		}
		return chain
	case "metals_futures":
		chain := []interfaces.QuoteProvider{}
		if s.primary != nil {
			chain = append(chain, s.primary)
		}
		if s.metals != nil {
			chain = append(chain, s.metals)
		}
		return chain
	default:
		if s.primary != nil {
			return []interfaces.QuoteProvider{s.primary}
		}
		return nil
	}
}

// fetchQuote resolves one symbol through the cache and the section's
// fallback chain. Absence is a nil quote, never an error: provider
// failures are logged here and converted to absence at this boundary.
func (s *Service) fetchQuote(ctx context.Context, section, symbol string) *models.Quote {
	key := quoteCacheKey(symbol)
	if cached, ok := s.store.GetFresh(key, common.TTLQuote); ok {
		if quote, ok := cached.(*models.Quote); ok {
			return quote
		}
	}

	for _, provider := range s.fallbackChain(section) {
		quote, err := provider.Quote(ctx, symbol)
		if err != nil {
			if !errors.Is(err, interfaces.ErrNotFound) {
				s.logger.Warn().Err(err).Str("symbol", symbol).Str("section", section).Msg("provider quote failed")
			}
			continue
		}
		if quote == nil || quote.CurrentPrice == nil {
			continue
		}
		s.decorate(quote)
		s.store.Put(key, quote)
		return quote
	}

	return nil
}

// decorate attaches registry metadata to a freshly fetched quote.
func (s *Service) decorate(quote *models.Quote) {
	if display := s.registry.DisplayName(quote.Symbol); display != "" && display != quote.Symbol {
		quote.DisplayName = display
		if quote.Name == "" || quote.Name == quote.Symbol {
			quote.Name = display
		}
	}
}

// fetchSection fans the section's symbols across the worker pool and
// returns the quotes plus the symbols that produced nothing.
func (s *Service) fetchSection(ctx context.Context, section string) (models.SectionQuotes, []string) {
	ordered := s.registry.SortedSymbols(section)
	if len(ordered) == 0 {
		return models.SectionQuotes{}, nil
	}

	quotes := make(models.SectionQuotes, len(ordered))
	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.workers)

	for _, symbol := range ordered {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			quote := s.fetchQuote(ctx, section, symbol)
			if quote == nil {
				return
			}
			mu.Lock()
			quotes[symbol] = quote
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	// US indices get one batch retry for the whole miss set before
	// the symbols are declared skipped.
	if section == "us_indices" && s.indices != nil {
		s.batchFill(ctx, section, quotes)
	}

	var skipped []string
	for _, symbol := range ordered {
		if _, ok := quotes[symbol]; !ok {
			skipped = append(skipped, symbol)
		}
	}
	return quotes, skipped
}

// batchFill asks the batch provider for every symbol still missing from
// the section and merges what it returns.
func (s *Service) batchFill(ctx context.Context, section string, quotes models.SectionQuotes) {
	missing := make(map[string]string)
	for symbol, name := range s.registry.Section(section) {
		if _, ok := quotes[symbol]; !ok {
			missing[symbol] = name
		}
	}
	if len(missing) == 0 {
		return
	}

	batch, err := s.indices.Quotes(ctx, missing)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().Err(err).Str("section", section).Msg("batch quote fallback failed")
		}
		return
	}
	for symbol, quote := range batch {
		if quote == nil || quote.CurrentPrice == nil {
			continue
		}
		s.decorate(quote)
		s.store.Put(quoteCacheKey(symbol), quote)
		quotes[symbol] = quote
	}
}

// validPeriods for GetStockHistory, matching the chart provider's range
// vocabulary.
var validPeriods = map[string]bool{
	"1mo": true, "3mo": true, "6mo": true,
	"1y": true, "2y": true, "5y": true, "10y": true,
	"20y": true, "ytd": true, "max": true,
}

// GetStockHistory retrieves one symbol's daily close history.
func (s *Service) GetStockHistory(ctx context.Context, symbol, period string) (*models.HistorySeries, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if period == "" {
		period = "6mo"
	}
	if !validPeriods[period] {
		return nil, fmt.Errorf("invalid period %q", period)
	}

	key := historyCacheKey(symbol, period)
	if cached, ok := s.store.GetFresh(key, common.TTLHistory); ok {
		if series, ok := cached.(*models.HistorySeries); ok {
			return series, nil
		}
	}

	if s.primary == nil {
		return nil, fmt.Errorf("no history provider configured")
	}
	raw, err := s.primary.History(ctx, symbol, period)
	if err != nil {
		return nil, err
	}

	normalized := raw.Normalize()
	series := &models.HistorySeries{
		Symbol: symbol,
		Name:   s.registry.DisplayName(symbol),
		Period: period,
		Dates:  make([]string, 0, len(normalized)),
		Values: make([]float64, 0, len(normalized)),
	}
	if series.Name == "" {
		series.Name = symbol
	}
	for _, p := range normalized {
		series.Dates = append(series.Dates, p.Date.Format("2006-01-02"))
		series.Values = append(series.Values, p.Value)
	}

	s.store.Put(key, series)
	return series, nil
}

// ClearCaches drops every cached quote, history, and earnings entry.
func (s *Service) ClearCaches() {
	s.store.Clear()
	s.logger.Info().Msg("market data caches cleared")
}

// Ensure Service implements MarketService
var _ interfaces.MarketService = (*Service)(nil)
