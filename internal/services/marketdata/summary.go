package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haolin-w/pulse/internal/common"
	"github.com/haolin-w/pulse/internal/models"
	"github.com/haolin-w/pulse/internal/symbols"
)

// earningsWindowDays is how far ahead the upcoming-earnings annotation
// looks.
const earningsWindowDays = 60

// GetMarketSummary fetches the requested sections concurrently and
// composes the combined dashboard payload. A section whose providers all
// fail comes back as an empty bucket with its symbols listed under
// skipped_symbols; the summary itself only errors when the context dies.
func (s *Service) GetMarketSummary(ctx context.Context, sections []string) (*models.MarketSummary, error) {
	requested := s.resolveSections(sections)
	includeRatios := len(sections) == 0
	for _, name := range sections {
		if name == "ratios" {
			includeRatios = true
		}
	}

	summary := &models.MarketSummary{
		Timestamp:      s.now().UTC(),
		SkippedSymbols: []models.SkippedSymbol{},
	}

	type sectionResult struct {
		name    string
		quotes  models.SectionQuotes
		skipped []string
	}

	results := make(chan sectionResult, len(requested))
	var wg sync.WaitGroup
	for _, section := range requested {
		wg.Add(1)
		go func(section string) {
			defer wg.Done()
			quotes, skipped := s.fetchSection(ctx, section)
			results <- sectionResult{name: section, quotes: quotes, skipped: skipped}
		}(section)
	}
	wg.Wait()
	close(results)

	bySection := make(map[string][]string, len(requested))
	for res := range results {
		// Detach from the cache before any annotation below: the fetch
		// layer hands out the pointers it stored, and those are shared
		// with every concurrent summary request.
		summary.SetSection(res.name, copyQuotes(res.quotes))
		bySection[res.name] = res.skipped
	}

	// Deterministic skip order: section display order, then symbol.
	for _, section := range symbols.SectionNames {
		for _, symbol := range bySection[section] {
			summary.SkippedSymbols = append(summary.SkippedSymbols, models.SkippedSymbol{
				Symbol:  symbol,
				Section: section,
				Name:    s.registry.DisplayName(symbol),
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if summary.USStocks != nil {
		summary.EarningsUpcoming = s.annotateEarnings(ctx, "us", summary.USStocks, s.registry.Section("us_stocks"), s.eastern)
	}
	if summary.TWMarkets != nil {
		summary.EarningsUpcomingTW = s.annotateEarnings(ctx, "tw", summary.TWMarkets, s.registry.Section("tw_markets"), s.taipei)
	}

	if summary.MetalsFutures != nil {
		session, et := s.metalsSession()
		summary.MetalsSession = session
		summary.MetalsSessionET = et
		for _, quote := range summary.MetalsFutures {
			quote.Session = session
		}
	}

	if s.ratios != nil && includeRatios {
		ratios, err := s.ratios.GetRatiosSummary(ctx, false)
		if err != nil {
			s.logger.Warn().Err(err).Msg("ratios summary unavailable")
		} else {
			summary.Ratios = ratios
		}
	}

	return summary, nil
}

// copyQuotes shallow-copies a section so per-summary fields (session,
// earnings annotations) never write through cached quotes.
func copyQuotes(quotes models.SectionQuotes) models.SectionQuotes {
	if quotes == nil {
		return nil
	}
	out := make(models.SectionQuotes, len(quotes))
	for symbol, quote := range quotes {
		copied := *quote
		out[symbol] = &copied
	}
	return out
}

// resolveSections filters the request down to known section names,
// defaulting to all of them.
func (s *Service) resolveSections(sections []string) []string {
	if len(sections) == 0 {
		return symbols.SectionNames
	}
	known := make(map[string]bool, len(symbols.SectionNames))
	for _, name := range symbols.SectionNames {
		known[name] = true
	}
	var out []string
	for _, name := range sections {
		switch {
		case known[name]:
			out = append(out, name)
		case name == "ratios":
			// handled by the composer, not the quote fan-out
		default:
			s.logger.Debug().Str("section", name).Msg("ignoring unknown section")
		}
	}
	return out
}

// annotateEarnings fetches the upcoming earnings calendar for a symbol
// universe, stamps matching quotes, and returns the sorted upcoming
// list. Day counts use the exchange's local calendar, not UTC.
func (s *Service) annotateEarnings(ctx context.Context, region string, quotes models.SectionQuotes, universe map[string]string, loc *time.Location) []models.EarningsEntry {
	if len(s.earnings) == 0 || len(universe) == 0 {
		return nil
	}

	calendar := s.earningsCalendar(ctx, region, universe)
	if len(calendar) == 0 {
		return nil
	}

	today := s.now().In(loc)
	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	var upcoming []models.EarningsEntry
	for symbol, entry := range calendar {
		date, err := time.Parse("2006-01-02", entry.Date)
		if err != nil {
			continue
		}
		days := int(date.Sub(todayDate).Hours() / 24)
		if days < 0 || days > earningsWindowDays {
			continue
		}
		entry.DaysUntil = days
		upcoming = append(upcoming, entry)

		if quote, ok := quotes[symbol]; ok {
			quote.EarningsDate = entry.Date
			quote.EarningsDaysUntil = models.IntPtr(days)
		}
	}

	sort.Slice(upcoming, func(i, j int) bool {
		if upcoming[i].Date != upcoming[j].Date {
			return upcoming[i].Date < upcoming[j].Date
		}
		return upcoming[i].Symbol < upcoming[j].Symbol
	})
	return upcoming
}

// earningsCalendar resolves the calendar through the cache and the
// provider chain. First provider to answer wins.
func (s *Service) earningsCalendar(ctx context.Context, region string, universe map[string]string) models.EarningsCalendar {
	key := "earnings_" + region
	if cached, ok := s.store.GetFresh(key, common.TTLEarnings); ok {
		if calendar, ok := cached.(models.EarningsCalendar); ok {
			return calendar
		}
	}

	from := s.now()
	to := from.AddDate(0, 0, earningsWindowDays)
	for _, provider := range s.earnings {
		calendar, err := provider.EarningsCalendar(ctx, from, to, universe)
		if err != nil {
			s.logger.Debug().Err(err).Str("region", region).Msg("earnings provider failed")
			continue
		}
		s.store.Put(key, calendar)
		return calendar
	}
	return nil
}

// metalsSession labels the current COMEX session. The day session runs
// 08:20 to 13:30 Eastern on weekdays; everything else, including the
// weekend maintenance gap, is reported as the night session.
func (s *Service) metalsSession() (session, etClock string) {
	et := s.now().In(s.eastern)
	etClock = et.Format("15:04")

	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return "night", etClock
	}
	minutes := et.Hour()*60 + et.Minute()
	if minutes >= 8*60+20 && minutes < 13*60+30 {
		return "day", etClock
	}
	return "night", etClock
}
