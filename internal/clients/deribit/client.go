// Package deribit provides the crypto quote client, backed by Deribit's
// public JSON-RPC API. Majors with perpetual contracts get a full quote
// with 24h change; everything else falls back to the index price.
package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/haolin-w/pulse/internal/common"
	"github.com/haolin-w/pulse/internal/interfaces"
	"github.com/haolin-w/pulse/internal/models"
)

const (
	DefaultBaseURL   = "https://www.deribit.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// perpetuals maps config symbols to Deribit perpetual instruments.
var perpetuals = map[string]string{
	"BTC-USD": "BTC-PERPETUAL",
	"ETH-USD": "ETH-PERPETUAL",
	"SOL-USD": "SOL-PERPETUAL",
}

// Client implements QuoteProvider against Deribit.
type Client struct {
	baseURL    string
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

// NewClient creates a new Deribit client. The public endpoints need no
// API key.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
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
	return fmt.Sprintf("deribit API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := "/api/v2/" + method
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
	case resp.StatusCode >= http.StatusInternalServerError:
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   endpoint,
		}
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Error != nil {
		// Unknown instruments come back as RPC errors, not HTTP ones.
		if envelope.Error.Code == 10020 || strings.Contains(envelope.Error.Message, "instrument") {
			return interfaces.ErrNotFound
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    envelope.Error.Message,
			Endpoint:   endpoint,
		}
	}
	if len(envelope.Result) == 0 {
		return interfaces.ErrNotFound
	}

	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

type tickerResult struct {
	LastPrice float64 `json:"last_price"`
	Stats     struct {
		PriceChange *float64 `json:"price_change"` // 24h percent, null on quiet books
		High        *float64 `json:"high"`
		Low         *float64 `json:"low"`
	} `json:"stats"`
}

type indexPriceResult struct {
	IndexPrice float64 `json:"index_price"`
}

// indexName converts a config symbol like "XRP-USD" to Deribit's index
// vocabulary ("xrp_usd").
func indexName(symbol string) string {
	return strings.ToLower(strings.ReplaceAll(symbol, "-", "_"))
}

// Quote fetches a crypto quote. Stablecoins pegged to the dollar have
// no meaningful quote and return ErrNotFound.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	if symbol == "USDT-USD" || symbol == "USDC-USD" {
		return nil, interfaces.ErrNotFound
	}

	if instrument, ok := perpetuals[symbol]; ok {
		return c.perpetualQuote(ctx, symbol, instrument)
	}
	return c.indexQuote(ctx, symbol)
}

func (c *Client) perpetualQuote(ctx context.Context, symbol, instrument string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("instrument_name", instrument)

	var ticker tickerResult
	if err := c.call(ctx, "public/ticker", params, &ticker); err != nil {
		return nil, err
	}
	if ticker.LastPrice <= 0 {
		return nil, interfaces.ErrNotFound
	}

	quote := &models.Quote{
		Symbol:       symbol,
		Name:         strings.TrimSuffix(symbol, "-USD"),
		CurrentPrice: models.Float64(ticker.LastPrice),
		Timestamp:    c.now().UTC(),
		Source:       "deribit",
	}

	// Back out the 24h-ago price from the percent change so the change
	// columns line up with the other sections.
	if pct := ticker.Stats.PriceChange; pct != nil && *pct > -100 {
		prev := ticker.LastPrice / (1 + *pct/100)
		quote.PreviousClose = models.Float64(prev)
		quote.Change = ticker.LastPrice - prev
		quote.ChangePercent = *pct
	}
	if ticker.Stats.High != nil {
		quote.High = models.Float64(*ticker.Stats.High)
	}
	if ticker.Stats.Low != nil {
		quote.Low = models.Float64(*ticker.Stats.Low)
	}

	return quote, nil
}

// indexQuote serves coins without a perpetual contract. Index prices
// carry no history, so the change fields stay zero.
func (c *Client) indexQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("index_name", indexName(symbol))

	var index indexPriceResult
	if err := c.call(ctx, "public/get_index_price", params, &index); err != nil {
		return nil, err
	}
	if index.IndexPrice <= 0 {
		return nil, interfaces.ErrNotFound
	}

	return &models.Quote{
		Symbol:       symbol,
		Name:         strings.TrimSuffix(symbol, "-USD"),
		CurrentPrice: models.Float64(index.IndexPrice),
		Timestamp:    c.now().UTC(),
		Source:       "deribit",
	}, nil
}

// Ensure Client implements QuoteProvider
var _ interfaces.QuoteProvider = (*Client)(nil)
