// Package fmp provides the Financial Modeling Prep fallback client for
// US index quotes and earnings calendars.
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/haolin-w/pulse/internal/common"
	"github.com/haolin-w/pulse/internal/interfaces"
	"github.com/haolin-w/pulse/internal/models"
)

const (
	DefaultBaseURL   = "https://financialmodelingprep.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 3 // requests per second
)

// Client implements BatchQuoteProvider, QuoteProvider and
// EarningsProvider against FMP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new FMP client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an upstream HTTP error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fmp API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("fmp API key not configured: %w", interfaces.ErrNotFound)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return interfaces.ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   endpoint,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type indexQuote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercentage"`
	PrevClose     float64 `json:"previousClose"`
	DayHigh       float64 `json:"dayHigh"`
	DayLow        float64 `json:"dayLow"`
	Open          float64 `json:"open"`
	Volume        int64   `json:"volume"`
	// v3 spells the percent field differently
	ChangesPercentage float64 `json:"changesPercentage"`
}

func (q indexQuote) changePercent() float64 {
	if q.ChangePercent != 0 {
		return q.ChangePercent
	}
	return q.ChangesPercentage
}

// normalizeIndexSymbol maps an FMP response symbol to the caret form
// used in config. The stable batch endpoint omits the caret on some
// indices.
func normalizeIndexSymbol(symbol string) string {
	if strings.HasPrefix(symbol, "^") {
		return symbol
	}
	return "^" + symbol
}

func (c *Client) toQuote(q indexQuote, configSymbol, name string) *models.Quote {
	quote := &models.Quote{
		Symbol:        configSymbol,
		Name:          name,
		CurrentPrice:  models.Float64(q.Price),
		Change:        q.Change,
		ChangePercent: q.changePercent(),
		Volume:        q.Volume,
		Timestamp:     c.now().UTC(),
		Source:        "fmp",
	}
	if quote.Name == "" {
		quote.Name = q.Name
	}
	if q.PrevClose > 0 {
		quote.PreviousClose = models.Float64(q.PrevClose)
	}
	if q.DayHigh > 0 {
		quote.High = models.Float64(q.DayHigh)
	}
	if q.DayLow > 0 {
		quote.Low = models.Float64(q.DayLow)
	}
	if q.Open > 0 {
		quote.Open = models.Float64(q.Open)
	}
	return quote
}

// Quotes fetches all tracked index quotes in one call via the stable
// batch endpoint, falling back to per-symbol v3 quotes when the batch
// endpoint is unavailable on the account's plan.
func (c *Client) Quotes(ctx context.Context, symbols map[string]string) (map[string]*models.Quote, error) {
	var batch []indexQuote
	err := c.get(ctx, "/stable/batch-index-quotes", url.Values{}, &batch)
	if err != nil {
		c.logger.Debug().Err(err).Msg("FMP batch index quotes unavailable, trying v3")
		return c.quotesV3(ctx, symbols)
	}

	result := make(map[string]*models.Quote, len(symbols))
	for _, q := range batch {
		configSymbol := normalizeIndexSymbol(q.Symbol)
		name, ok := symbols[configSymbol]
		if !ok {
			continue
		}
		if q.Price <= 0 {
			continue
		}
		result[configSymbol] = c.toQuote(q, configSymbol, name)
	}

	if len(result) == 0 {
		return c.quotesV3(ctx, symbols)
	}
	return result, nil
}

// quotesV3 fetches the symbols through the legacy v3 quote endpoint,
// which accepts a comma-joined symbol list.
func (c *Client) quotesV3(ctx context.Context, symbols map[string]string) (map[string]*models.Quote, error) {
	ordered := make([]string, 0, len(symbols))
	for s := range symbols {
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)

	endpoint := "/api/v3/quote/" + url.PathEscape(strings.Join(ordered, ","))
	var quotes []indexQuote
	if err := c.get(ctx, endpoint, url.Values{}, &quotes); err != nil {
		return nil, err
	}

	result := make(map[string]*models.Quote, len(symbols))
	for _, q := range quotes {
		configSymbol := normalizeIndexSymbol(q.Symbol)
		name, ok := symbols[configSymbol]
		if !ok {
			continue
		}
		if q.Price <= 0 {
			continue
		}
		result[configSymbol] = c.toQuote(q, configSymbol, name)
	}
	return result, nil
}

// Quote fetches a single quote through the v3 endpoint.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	quotes, err := c.quotesV3(ctx, map[string]string{symbol: ""})
	if err != nil {
		return nil, err
	}
	quote, ok := quotes[symbol]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	if quote.Name == "" {
		quote.Name = symbol
	}
	return quote, nil
}

type earningsEvent struct {
	Date   string `json:"date"`
	Symbol string `json:"symbol"`
}

// EarningsCalendar fetches the earnings calendar for a date window,
// filtered to the requested symbols. Earliest date wins for symbols
// that report more than once in the window.
func (c *Client) EarningsCalendar(ctx context.Context, from, to time.Time, symbols map[string]string) (models.EarningsCalendar, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var events []earningsEvent
	if err := c.get(ctx, "/api/v3/earning_calendar", params, &events); err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Date < events[j].Date })

	calendar := make(models.EarningsCalendar)
	for _, ev := range events {
		name, ok := symbols[ev.Symbol]
		if !ok {
			continue
		}
		if _, seen := calendar[ev.Symbol]; seen {
			continue
		}
		if _, err := time.Parse("2006-01-02", ev.Date); err != nil {
			continue
		}
		calendar[ev.Symbol] = models.EarningsEntry{
			Symbol: ev.Symbol,
			Name:   name,
			Date:   ev.Date,
		}
	}
	return calendar, nil
}

// Ensure Client implements the provider interfaces
var (
	_ interfaces.BatchQuoteProvider = (*Client)(nil)
	_ interfaces.QuoteProvider      = (*Client)(nil)
	_ interfaces.EarningsProvider   = (*Client)(nil)
)
