package fmp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haolin-w/pulse/internal/interfaces"
)

var indexNames = map[string]string{
	"^GSPC": "S&P 500",
	"^DJI":  "Dow Jones Industrial Average",
	"^IXIC": "NASDAQ Composite",
}

func TestQuotesBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stable/batch-index-quotes", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, `[
			{"symbol":"^GSPC","price":5200.5,"change":15.2,"changePercentage":0.29,"previousClose":5185.3},
			{"symbol":"DJI","price":39000.0,"change":-50.0,"changePercentage":-0.13,"previousClose":39050.0},
			{"symbol":"^FTSE","price":8000.0,"change":5.0,"changePercentage":0.06}
		]`)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	quotes, err := client.Quotes(context.Background(), indexNames)
	require.NoError(t, err)

	require.Len(t, quotes, 2)
	require.NotNil(t, quotes["^GSPC"].CurrentPrice)
	assert.Equal(t, 5200.5, *quotes["^GSPC"].CurrentPrice)
	assert.Equal(t, "S&P 500", quotes["^GSPC"].Name)
	assert.Equal(t, "fmp", quotes["^GSPC"].Source)
	// Caret restored on the batch endpoint's bare symbol.
	assert.Equal(t, "^DJI", quotes["^DJI"].Symbol)
	// Untracked index filtered out.
	_, hasFTSE := quotes["^FTSE"]
	assert.False(t, hasFTSE)
}

func TestQuotesFallsBackToV3(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stable/batch-index-quotes" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Contains(t, r.URL.Path, "/api/v3/quote/")
		fmt.Fprint(w, `[{"symbol":"^GSPC","name":"S&P 500 Index","price":5200.5,"change":15.2,"changesPercentage":0.29,"previousClose":5185.3}]`)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	quotes, err := client.Quotes(context.Background(), map[string]string{"^GSPC": "S&P 500"})
	require.NoError(t, err)

	require.Len(t, quotes, 1)
	assert.Equal(t, 0.29, quotes["^GSPC"].ChangePercent)
}

func TestQuotesSkipsZeroPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stable/batch-index-quotes" {
			fmt.Fprint(w, `[{"symbol":"^GSPC","price":0.0},{"symbol":"^DJI","price":39000.0,"previousClose":38950.0}]`)
			return
		}
		t.Errorf("unexpected fallback request to %s", r.URL.Path)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	quotes, err := client.Quotes(context.Background(), indexNames)
	require.NoError(t, err)

	require.Len(t, quotes, 1)
	_, hasGSPC := quotes["^GSPC"]
	assert.False(t, hasGSPC)
}

func TestQuoteMissingAPIKey(t *testing.T) {
	client := NewClient("")
	_, err := client.Quote(context.Background(), "^GSPC")
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
}

func TestEarningsCalendar(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/earning_calendar", r.URL.Path)
		fmt.Fprint(w, `[
			{"date":"2026-03-18","symbol":"NVDA"},
			{"date":"2026-03-11","symbol":"NVDA"},
			{"date":"2026-03-14","symbol":"SOMETHING"}
		]`)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	from := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	calendar, err := client.EarningsCalendar(context.Background(), from, from.AddDate(0, 0, 14),
		map[string]string{"NVDA": "NVIDIA"})
	require.NoError(t, err)

	require.Len(t, calendar, 1)
	assert.Equal(t, "2026-03-11", calendar["NVDA"].Date)
	assert.Equal(t, "NVIDIA", calendar["NVDA"].Name)
}
