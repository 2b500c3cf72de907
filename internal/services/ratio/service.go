package ratio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/haolin-w/pulse/internal/cache"
	"github.com/haolin-w/pulse/internal/common"
	"github.com/haolin-w/pulse/internal/interfaces"
	"github.com/haolin-w/pulse/internal/models"
	"github.com/haolin-w/pulse/internal/symbols"
)

// DefaultWorkers bounds the concurrent ratio computations.
const DefaultWorkers = 4

const summaryCacheKey = "ratios_summary"

// Service implements interfaces.RatioService.
type Service struct {
	registry *symbols.Registry
	store    *cache.Store
	logger   *common.Logger
	history  interfaces.HistoryProvider
	now      func() time.Time
	workers  int
}

// Option configures the service
type Option func(*Service)

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithWorkers overrides the computation fan-out bound.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewService creates the ratio service.
func NewService(registry *symbols.Registry, store *cache.Store, history interfaces.HistoryProvider, logger *common.Logger, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		store:    store,
		logger:   logger,
		history:  history,
		now:      time.Now,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func seriesCacheKey(symbol, period string) string {
	return fmt.Sprintf("series_%s_%s", symbol, period)
}

// fetchHistory resolves one leg's close history through the cache.
func (s *Service) fetchHistory(ctx context.Context, symbol, period string) (models.TimeSeries, error) {
	key := seriesCacheKey(symbol, period)
	if cached, ok := s.store.GetFresh(key, common.TTLHistory); ok {
		if series, ok := cached.(models.TimeSeries); ok {
			return series, nil
		}
	}

	series, err := s.history.History(ctx, symbol, period)
	if err != nil {
		return nil, err
	}
	normalized := series.Normalize()
	s.store.Put(key, normalized)
	return normalized, nil
}

// computeSeries builds the aligned ratio series for one definition. The
// legs are fetched sequentially: both usually hit the same upstream and
// its limiter, so parallel legs buy nothing.
func (s *Service) computeSeries(ctx context.Context, def models.RatioDefinition) (models.TimeSeries, string) {
	num, err := s.fetchHistory(ctx, def.Numerator, def.Period)
	if err != nil {
		s.logger.Warn().Err(err).Str("ratio", def.ID).Str("symbol", def.Numerator).Msg("numerator history unavailable")
		return nil, errMissingData
	}
	den, err := s.fetchHistory(ctx, def.Denominator, def.Period)
	if err != nil {
		s.logger.Warn().Err(err).Str("ratio", def.ID).Str("symbol", def.Denominator).Msg("denominator history unavailable")
		return nil, errMissingData
	}
	return align(num, den)
}

// GetRatiosSummary computes every configured ratio concurrently.
func (s *Service) GetRatiosSummary(ctx context.Context, forceRefresh bool) (*models.RatiosSummary, error) {
	if !forceRefresh {
		if cached, ok := s.store.GetFresh(summaryCacheKey, common.TTLRatiosSummary); ok {
			if summary, ok := cached.(*models.RatiosSummary); ok {
				return summary, nil
			}
		}
	}

	defs := s.registry.Ratios
	results := make([]models.RatioResult, len(defs))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.workers)
	for i, def := range defs {
		wg.Add(1)
		go func(i int, def models.RatioDefinition) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			series, reason := s.computeSeries(ctx, def)
			results[i] = result(def, series, reason)
		}(i, def)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := &models.RatiosSummary{
		Ratios:    results,
		Timestamp: s.now().UTC(),
	}
	s.store.Put(summaryCacheKey, summary)
	return summary, nil
}

// GetRatioHistory returns the aligned series for one ratio, resampled
// for plotting. An unknown id is the caller's mistake and the only hard
// error in this service.
func (s *Service) GetRatioHistory(ctx context.Context, id, rule string) (*models.RatioHistory, error) {
	def, ok := s.registry.Ratio(id)
	if !ok {
		return nil, fmt.Errorf("unknown ratio %q: %w", id, interfaces.ErrNotFound)
	}
	if rule == "" {
		rule = "1M"
	}

	// Alignment failures mean no series exists for this id right now,
	// which is not-found to callers, same as an unknown id.
	series, reason := s.computeSeries(ctx, def)
	if reason != "" {
		return nil, fmt.Errorf("ratio %s: %s: %w", id, reason, interfaces.ErrNotFound)
	}
	sampled := resample(series, rule)

	history := &models.RatioHistory{
		ID:          def.ID,
		Name:        def.Name,
		PeriodLabel: def.PeriodLabel(),
		Dates:       make([]string, 0, len(sampled)),
		Values:      make([]float64, 0, len(sampled)),
	}
	for _, p := range sampled {
		history.Dates = append(history.Dates, p.Date.Format("2006-01-02"))
		history.Values = append(history.Values, p.Value)
	}
	return history, nil
}

// RenderHistoryChart renders the resampled ratio series as a PNG.
func (s *Service) RenderHistoryChart(ctx context.Context, id, rule string) ([]byte, error) {
	def, ok := s.registry.Ratio(id)
	if !ok {
		return nil, fmt.Errorf("unknown ratio %q: %w", id, interfaces.ErrNotFound)
	}
	if rule == "" {
		rule = "1M"
	}

	series, reason := s.computeSeries(ctx, def)
	if reason != "" {
		return nil, fmt.Errorf("ratio %s: %s: %w", id, reason, interfaces.ErrNotFound)
	}
	sampled := resample(series, rule)
	if len(sampled) < 2 {
		return nil, fmt.Errorf("ratio %s: not enough points to chart: %w", id, interfaces.ErrNotFound)
	}

	xs := make([]time.Time, len(sampled))
	ys := make([]float64, len(sampled))
	for i, p := range sampled {
		xs[i] = p.Date
		ys[i] = p.Value
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s (%s)", def.Name, def.PeriodLabel()),
		Width:  1024,
		Height: 512,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    def.Name,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: chart.ColorBlue,
					StrokeWidth: 2.0,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// Ensure Service implements RatioService
var _ interfaces.RatioService = (*Service)(nil)
