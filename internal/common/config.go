// Package common provides shared utilities for Pulse
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Pulse
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Data        DataConfig    `toml:"data"`
	Clients     ClientsConfig `toml:"clients"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DataConfig holds local data paths.
type DataConfig struct {
	// InstitutionalDir is the directory of manually uploaded BFI82U CSV
	// files, one per trading day, named YYYYMMDD.csv.
	InstitutionalDir string `toml:"institutional_dir"`
	// SymbolsFile optionally overrides the embedded symbol registry.
	SymbolsFile string `toml:"symbols_file"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Yahoo      ClientConfig `toml:"yahoo"`
	Finnhub    ClientConfig `toml:"finnhub"`
	FMP        ClientConfig `toml:"fmp"`
	TwelveData ClientConfig `toml:"twelvedata"`
	Deribit    ClientConfig `toml:"deribit"`
	TWSE       ClientConfig `toml:"twse"`
}

// ClientConfig holds configuration for a single upstream provider.
type ClientConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *ClientConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Data: DataConfig{
			InstitutionalDir: "data/institutional_csv",
		},
		Clients: ClientsConfig{
			Yahoo: ClientConfig{
				BaseURL: "https://query1.finance.yahoo.com",
				Timeout: "30s",
			},
			Finnhub: ClientConfig{
				BaseURL: "https://finnhub.io/api/v1",
				Timeout: "10s",
			},
			FMP: ClientConfig{
				BaseURL: "https://financialmodelingprep.com",
				Timeout: "12s",
			},
			TwelveData: ClientConfig{
				BaseURL: "https://api.twelvedata.com",
				Timeout: "10s",
			},
			Deribit: ClientConfig{
				BaseURL: "https://www.deribit.com",
				Timeout: "10s",
			},
			TWSE: ClientConfig{
				BaseURL: "https://www.twse.com.tw",
				Timeout: "15s",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Later files override earlier ones; missing files are skipped.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PULSE_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("PULSE_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("PULSE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("PULSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if dir := os.Getenv("PULSE_INSTITUTIONAL_DIR"); dir != "" {
		config.Data.InstitutionalDir = dir
	}

	if path := os.Getenv("PULSE_SYMBOLS_FILE"); path != "" {
		config.Data.SymbolsFile = path
	}

	if key := os.Getenv("FINNHUB_API_KEY"); key != "" {
		config.Clients.Finnhub.APIKey = strings.TrimSpace(key)
	}

	if key := os.Getenv("FMP_API_KEY"); key != "" {
		config.Clients.FMP.APIKey = strings.TrimSpace(key)
	}

	if key := os.Getenv("TWELVEDATA_API_KEY"); key != "" {
		config.Clients.TwelveData.APIKey = strings.TrimSpace(key)
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
