package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/institutional_csv", cfg.Data.InstitutionalDir)
	assert.Equal(t, "https://query1.finance.yahoo.com", cfg.Clients.Yahoo.BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("PULSE_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestConfig_APIKeyEnvOverride(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", " fh-key \n")
	t.Setenv("TWELVEDATA_API_KEY", "td-key")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, "fh-key", cfg.Clients.Finnhub.APIKey)
	assert.Equal(t, "td-key", cfg.Clients.TwelveData.APIKey)
}

func TestLoadConfig_MergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pulse.toml")
	content := `
environment = "production"

[server]
port = 5000

[clients.finnhub]
api_key = "from-file"
timeout = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Clients.Finnhub.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Clients.Finnhub.GetTimeout())
	// Untouched sections keep defaults
	assert.Equal(t, "https://api.twelvedata.com", cfg.Clients.TwelveData.BaseURL)
}

func TestLoadConfig_SkipsMissingFiles(t *testing.T) {
	cfg, err := LoadConfig("does/not/exist.toml")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestClientConfig_GetTimeoutFallback(t *testing.T) {
	c := ClientConfig{Timeout: "bogus"}
	assert.Equal(t, 30*time.Second, c.GetTimeout())
}

func TestIsFresh(t *testing.T) {
	assert.False(t, IsFresh(time.Time{}, time.Minute))
	assert.True(t, IsFresh(time.Now().Add(-30*time.Second), time.Minute))
	assert.False(t, IsFresh(time.Now().Add(-2*time.Minute), time.Minute))
}

func TestSameCalendarDay(t *testing.T) {
	a := time.Date(2026, 1, 2, 23, 59, 0, 0, time.Local)
	b := time.Date(2026, 1, 3, 0, 1, 0, 0, time.Local)
	assert.False(t, SameCalendarDay(a, b))
	assert.True(t, SameCalendarDay(a, a.Add(-time.Hour)))
}
