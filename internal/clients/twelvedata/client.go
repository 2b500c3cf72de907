// Package twelvedata provides the Twelve Data fallback client for
// metals quotes, translating COMEX futures tickers to spot pairs.
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/haolin-w/pulse/internal/common"
	"github.com/haolin-w/pulse/internal/interfaces"
	"github.com/haolin-w/pulse/internal/models"
)

const (
	DefaultBaseURL = "https://api.twelvedata.com"
	DefaultTimeout = 30 * time.Second
)

// spotPairs maps COMEX futures tickers to the spot pairs Twelve Data
// serves on the free tier.
var spotPairs = map[string]string{
	"GC=F": "XAU/USD",
	"SI=F": "XAG/USD",
	"HG=F": "CX/USD",
	"PL=F": "XPT/USD",
	"PA=F": "XPD/USD",
}

// Client implements QuoteProvider against Twelve Data.
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

// NewClient creates a new Twelve Data client. The free tier allows 8
// requests per minute, hence the slow default pacing.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(8*time.Second), 1),
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
	return fmt.Sprintf("twelvedata API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// quoteResponse carries both the quote fields and Twelve Data's in-body
// error envelope. Numeric fields arrive as strings.
type quoteResponse struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Close         string `json:"close"`
	Open          string `json:"open"`
	High          string `json:"high"`
	Low           string `json:"low"`
	PreviousClose string `json:"previous_close"`
	Change        string `json:"change"`
	PercentChange string `json:"percent_change"`

	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Quote fetches a spot quote for a COMEX futures ticker. Tickers with
// no spot pair mapping return ErrNotFound without a network call.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	pair, ok := spotPairs[symbol]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("twelvedata API key not configured: %w", interfaces.ErrNotFound)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s/quote?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, interfaces.ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   "/quote",
		}
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// Errors arrive as HTTP 200 with an error envelope.
	if qr.Status == "error" {
		if qr.Code == http.StatusTooManyRequests {
			return nil, interfaces.ErrRateLimited
		}
		return nil, &APIError{
			StatusCode: qr.Code,
			Message:    qr.Message,
			Endpoint:   "/quote",
		}
	}

	current, ok := parseFloat(qr.Close)
	if !ok || current == 0 {
		return nil, interfaces.ErrNotFound
	}

	quote := &models.Quote{
		Symbol:       symbol,
		Name:         qr.Name,
		CurrentPrice: models.Float64(current),
		Timestamp:    c.now().UTC(),
		Source:       "twelvedata",
	}
	if quote.Name == "" {
		quote.Name = symbol
	}

	// Spot pairs often omit previous_close; the session open stands in
	// so day change stays meaningful.
	prev, havePrev := parseFloat(qr.PreviousClose)
	if !havePrev || prev == 0 {
		prev, havePrev = parseFloat(qr.Open)
	}
	if havePrev && prev > 0 {
		quote.PreviousClose = models.Float64(prev)
		quote.Change = current - prev
		quote.ChangePercent = (current - prev) / prev * 100
	}
	if v, ok := parseFloat(qr.Change); ok && v != 0 {
		quote.Change = v
	}
	if v, ok := parseFloat(qr.PercentChange); ok && v != 0 {
		quote.ChangePercent = v
	}
	if v, ok := parseFloat(qr.High); ok && v > 0 {
		quote.High = models.Float64(v)
	}
	if v, ok := parseFloat(qr.Low); ok && v > 0 {
		quote.Low = models.Float64(v)
	}
	if v, ok := parseFloat(qr.Open); ok && v > 0 {
		quote.Open = models.Float64(v)
	}

	return quote, nil
}

// Ensure Client implements QuoteProvider
var _ interfaces.QuoteProvider = (*Client)(nil)
