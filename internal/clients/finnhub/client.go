// Package finnhub provides the Finnhub fallback quote client and the
// primary earnings calendar source.
package finnhub

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
	DefaultBaseURL = "https://finnhub.io/api/v1"
	DefaultTimeout = 30 * time.Second
)

// indexSymbols maps chart-convention index tickers to Finnhub's
// dot-prefixed index names.
var indexSymbols = map[string]string{
	"^GSPC": ".SPX",
	"^DJI":  ".DJI",
	"^IXIC": ".IXIC",
	"^NDX":  ".NDX",
	"^RUT":  ".RUT",
}

// Client implements QuoteProvider and EarningsProvider against Finnhub.
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

// WithRateLimit overrides the request interval.
func WithRateLimit(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// NewClient creates a new Finnhub client. The free tier allows 60
// requests per minute, so the default limiter paces slightly under that.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(1050*time.Millisecond), 1),
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
	return fmt.Sprintf("finnhub API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("finnhub API key not configured: %w", interfaces.ErrNotFound)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("token", c.apiKey)
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

// translateSymbol converts a chart-convention ticker to Finnhub's form.
// Indices use dot names, share classes use dots instead of dashes.
func translateSymbol(symbol string) string {
	if fh, ok := indexSymbols[symbol]; ok {
		return fh
	}
	return strings.ReplaceAll(symbol, "-", ".")
}

type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// Quote fetches a real-time quote. Finnhub returns zeros rather than an
// error for unknown symbols, so a non-positive current price maps to
// absence.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("symbol", translateSymbol(symbol))

	var qr quoteResponse
	if err := c.get(ctx, "/quote", params, &qr); err != nil {
		return nil, err
	}

	if qr.Current <= 0 {
		return nil, interfaces.ErrNotFound
	}

	quote := &models.Quote{
		Symbol:        symbol,
		Name:          symbol,
		CurrentPrice:  models.Float64(qr.Current),
		Change:        qr.Change,
		ChangePercent: qr.ChangePercent,
		Timestamp:     c.now().UTC(),
		Source:        "finnhub",
	}
	if qr.PrevClose > 0 {
		quote.PreviousClose = models.Float64(qr.PrevClose)
	}
	if qr.High > 0 {
		quote.High = models.Float64(qr.High)
	}
	if qr.Low > 0 {
		quote.Low = models.Float64(qr.Low)
	}
	if qr.Open > 0 {
		quote.Open = models.Float64(qr.Open)
	}

	return quote, nil
}

type earningsResponse struct {
	EarningsCalendar []struct {
		Date   string `json:"date"`
		Symbol string `json:"symbol"`
	} `json:"earningsCalendar"`
}

// EarningsCalendar fetches the bulk earnings calendar for a date window
// and filters it to the requested symbols. When a symbol reports more
// than once in the window the earliest date wins.
func (c *Client) EarningsCalendar(ctx context.Context, from, to time.Time, symbols map[string]string) (models.EarningsCalendar, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var er earningsResponse
	if err := c.get(ctx, "/calendar/earnings", params, &er); err != nil {
		return nil, err
	}

	wanted := make(map[string]string, len(symbols))
	for s := range symbols {
		wanted[translateSymbol(s)] = s
	}

	calendar := make(models.EarningsCalendar)
	entries := er.EarningsCalendar
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date < entries[j].Date })
	for _, entry := range entries {
		orig, ok := wanted[entry.Symbol]
		if !ok {
			continue
		}
		if _, seen := calendar[orig]; seen {
			continue
		}
		if _, err := time.Parse("2006-01-02", entry.Date); err != nil {
			continue
		}
		calendar[orig] = models.EarningsEntry{
			Symbol: orig,
			Name:   symbols[orig],
			Date:   entry.Date,
		}
	}

	c.logger.Debug().Int("entries", len(calendar)).Msg("Finnhub earnings calendar fetched")
	return calendar, nil
}

// Ensure Client implements the provider interfaces
var (
	_ interfaces.QuoteProvider    = (*Client)(nil)
	_ interfaces.EarningsProvider = (*Client)(nil)
)
