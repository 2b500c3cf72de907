// Package yahoo provides the primary price provider client, backed by the
// Yahoo Finance v8 chart API. It serves quotes and multi-year daily
// histories for every symbol class in the registry.
package yahoo

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
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second

	// Yahoo rejects requests without a browser-ish user agent.
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client implements the PrimaryProvider interface.
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

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Yahoo chart client
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
	return fmt.Sprintf("yahoo API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// chartResponse mirrors the v8 chart payload, nulls preserved.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				LongName           string   `json:"longName"`
				ShortName          string   `json:"shortName"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				PreviousClose      *float64 `json:"previousClose"`
				ChartPreviousClose *float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// getChart performs a rate-limited GET of /v8/finance/chart/{symbol}.
func (c *Client) getChart(ctx context.Context, symbol string, params url.Values) (*chartResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := "/v8/finance/chart/" + url.PathEscape(symbol)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug().Str("symbol", symbol).Str("range", params.Get("range")).Msg("Yahoo chart request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, interfaces.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, interfaces.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   endpoint,
		}
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if chart.Chart.Error != nil {
		return nil, interfaces.ErrNotFound
	}
	if len(chart.Chart.Result) == 0 {
		return nil, interfaces.ErrNotFound
	}

	return &chart, nil
}

// rangeParams builds query params for a lookback period. Yahoo's range
// vocabulary has no "20y", so year-counted periods beyond 10y go through
// explicit period1/period2 epochs.
func (c *Client) rangeParams(period string) url.Values {
	params := url.Values{}
	params.Set("interval", "1d")

	switch period {
	case "1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max":
		params.Set("range", period)
	case "20y":
		now := c.now()
		params.Set("period1", fmt.Sprintf("%d", now.AddDate(-20, 0, 0).Unix()))
		params.Set("period2", fmt.Sprintf("%d", now.Unix()))
	default:
		params.Set("range", "1y")
	}
	return params
}

// bars converts the first chart result into a series of daily bars,
// dropping entries with a null close.
func bars(chart *chartResponse) models.TimeSeries {
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	closes := result.Indicators.Quote[0].Close

	series := make(models.TimeSeries, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		series = append(series, models.SeriesPoint{
			Date:  time.Unix(ts, 0).UTC(),
			Value: *closes[i],
		})
	}
	return series
}

// Quote retrieves a live quote derived from the last two daily bars plus
// chart metadata.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("range", "2d")
	chart, err := c.getChart(ctx, symbol, params)

	// FX and spot metals symbols (=X) often return nothing for a 2-day
	// window; widen before giving up.
	if isSpotSymbol(symbol) {
		for _, wider := range []string{"5d", "1mo"} {
			if err != nil || len(bars(chart)) == 0 {
				params.Set("range", wider)
				chart, err = c.getChart(ctx, symbol, params)
				continue
			}
			break
		}
	}
	if err != nil {
		return nil, err
	}

	series := bars(chart)
	if len(series) == 0 {
		return nil, interfaces.ErrNotFound
	}

	meta := chart.Chart.Result[0].Meta
	last := series[len(series)-1]

	current := last.Value
	if meta.RegularMarketPrice != nil && *meta.RegularMarketPrice > 0 {
		current = *meta.RegularMarketPrice
	}
	if current == 0 {
		// Placeholder zero for delisted/unsupported symbols.
		return nil, interfaces.ErrNotFound
	}

	var prevClose float64
	switch {
	case meta.PreviousClose != nil && *meta.PreviousClose > 0:
		prevClose = *meta.PreviousClose
	case len(series) >= 2:
		prevClose = series[len(series)-2].Value
	case meta.ChartPreviousClose != nil && *meta.ChartPreviousClose > 0:
		prevClose = *meta.ChartPreviousClose
	default:
		prevClose = current
	}

	change := 0.0
	changePct := 0.0
	if prevClose > 0 {
		change = round2(current - prevClose)
		changePct = round2((current - prevClose) / prevClose * 100)
	}

	name := meta.LongName
	if name == "" {
		name = meta.ShortName
	}
	if name = strings.TrimSpace(name); name == "" {
		name = symbol
	}

	quote := &models.Quote{
		Symbol:        symbol,
		Name:          name,
		CurrentPrice:  models.Float64(round2(current)),
		PreviousClose: models.Float64(round2(prevClose)),
		Change:        change,
		ChangePercent: changePct,
		Timestamp:     c.now().UTC(),
		Source:        "yahoo",
		History:       series,
	}

	// Today's OHLCV from the last bar, when the provider supplied it.
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) > 0 && len(result.Timestamp) > 0 {
		q := result.Indicators.Quote[0]
		i := len(result.Timestamp) - 1
		if i < len(q.Open) && q.Open[i] != nil {
			quote.Open = models.Float64(round2(*q.Open[i]))
		}
		if i < len(q.High) && q.High[i] != nil {
			quote.High = models.Float64(round2(*q.High[i]))
		}
		if i < len(q.Low) && q.Low[i] != nil {
			quote.Low = models.Float64(round2(*q.Low[i]))
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			quote.Volume = *q.Volume[i]
		}
	}

	return quote, nil
}

// History retrieves the daily close history for a lookback period.
func (c *Client) History(ctx context.Context, symbol string, period string) (models.TimeSeries, error) {
	chart, err := c.getChart(ctx, symbol, c.rangeParams(period))
	if err != nil {
		return nil, err
	}

	series := bars(chart)
	if len(series) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return series, nil
}

// Name fetches the display name Yahoo knows for a symbol. Falls back to
// the symbol itself on any failure.
func (c *Client) Name(ctx context.Context, symbol string) string {
	params := url.Values{}
	params.Set("range", "1d")
	params.Set("interval", "1d")
	chart, err := c.getChart(ctx, symbol, params)
	if err != nil {
		return symbol
	}
	meta := chart.Chart.Result[0].Meta
	if n := strings.TrimSpace(meta.LongName); n != "" {
		return n
	}
	if n := strings.TrimSpace(meta.ShortName); n != "" {
		return n
	}
	return symbol
}

func isSpotSymbol(symbol string) bool {
	return strings.Contains(strings.ToUpper(symbol), "=X")
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}

// Ensure Client implements PrimaryProvider
var _ interfaces.PrimaryProvider = (*Client)(nil)
