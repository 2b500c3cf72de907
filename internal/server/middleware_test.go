package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haolin-w/pulse/internal/common"
)

func TestRecoveryMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(common.NewSilentLogger())(panicky)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not run on preflight")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/market-data", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorrelationIDGenerated(t *testing.T) {
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Len(t, rec.Header().Get("X-Correlation-ID"), 8)
}

func TestCorrelationIDPassthrough(t *testing.T) {
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-1234")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-1234", rec.Header().Get("X-Correlation-ID"))
}

func TestBoolParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/ratios?refresh", nil)
	assert.True(t, boolParam(r, "refresh"))

	r = httptest.NewRequest(http.MethodGet, "/api/ratios?refresh=true", nil)
	assert.True(t, boolParam(r, "refresh"))

	r = httptest.NewRequest(http.MethodGet, "/api/ratios?refresh=0", nil)
	assert.False(t, boolParam(r, "refresh"))

	r = httptest.NewRequest(http.MethodGet, "/api/ratios", nil)
	assert.False(t, boolParam(r, "refresh"))
}
