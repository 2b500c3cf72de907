// Package app wires configuration, clients, and services into the
// shared core used by cmd/pulse-server and cmd/pulse-cli.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/haolin-w/pulse/internal/cache"
	"github.com/haolin-w/pulse/internal/clients/deribit"
	"github.com/haolin-w/pulse/internal/clients/finnhub"
	"github.com/haolin-w/pulse/internal/clients/fmp"
	"github.com/haolin-w/pulse/internal/clients/twelvedata"
	"github.com/haolin-w/pulse/internal/clients/twse"
	"github.com/haolin-w/pulse/internal/clients/yahoo"
	"github.com/haolin-w/pulse/internal/common"
	"github.com/haolin-w/pulse/internal/interfaces"
	"github.com/haolin-w/pulse/internal/services/institutional"
	"github.com/haolin-w/pulse/internal/services/marketdata"
	"github.com/haolin-w/pulse/internal/services/ratio"
	"github.com/haolin-w/pulse/internal/symbols"
)

// App holds all initialized services and clients.
type App struct {
	Config   *common.Config
	Logger   *common.Logger
	Registry *symbols.Registry
	Cache    *cache.Store

	MarketService        interfaces.MarketService
	RatioService         interfaces.RatioService
	InstitutionalService interfaces.InstitutionalService

	StartupTime time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, clients, and services. configPath
// may be empty, in which case PULSE_CONFIG and then the binary directory
// are consulted.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("PULSE_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "pulse.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/pulse.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Relative data paths resolve against the binary directory so the
	// server is relocatable.
	if config.Data.InstitutionalDir != "" && !filepath.IsAbs(config.Data.InstitutionalDir) {
		config.Data.InstitutionalDir = filepath.Join(binDir, config.Data.InstitutionalDir)
	}

	logger := common.NewLogger(config.Logging.Level)

	registry, err := symbols.Load(config.Data.SymbolsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load symbol registry: %w", err)
	}

	store := cache.New()

	yahooClient := yahoo.NewClient(
		yahoo.WithBaseURL(config.Clients.Yahoo.BaseURL),
		yahoo.WithTimeout(config.Clients.Yahoo.GetTimeout()),
		yahoo.WithLogger(logger),
	)
	finnhubClient := finnhub.NewClient(config.Clients.Finnhub.APIKey,
		finnhub.WithBaseURL(config.Clients.Finnhub.BaseURL),
		finnhub.WithTimeout(config.Clients.Finnhub.GetTimeout()),
		finnhub.WithLogger(logger),
	)
	fmpClient := fmp.NewClient(config.Clients.FMP.APIKey,
		fmp.WithBaseURL(config.Clients.FMP.BaseURL),
		fmp.WithTimeout(config.Clients.FMP.GetTimeout()),
		fmp.WithLogger(logger),
	)
	twelveDataClient := twelvedata.NewClient(config.Clients.TwelveData.APIKey,
		twelvedata.WithBaseURL(config.Clients.TwelveData.BaseURL),
		twelvedata.WithTimeout(config.Clients.TwelveData.GetTimeout()),
		twelvedata.WithLogger(logger),
	)
	deribitClient := deribit.NewClient(
		deribit.WithBaseURL(config.Clients.Deribit.BaseURL),
		deribit.WithTimeout(config.Clients.Deribit.GetTimeout()),
		deribit.WithLogger(logger),
	)
	twseClient := twse.NewClient(
		twse.WithBaseURL(config.Clients.TWSE.BaseURL),
		twse.WithTimeout(config.Clients.TWSE.GetTimeout()),
		twse.WithLogger(logger),
	)

	if config.Clients.Finnhub.APIKey == "" {
		logger.Warn().Msg("Finnhub API key not configured - stock fallback and earnings will be limited")
	}
	if config.Clients.FMP.APIKey == "" {
		logger.Warn().Msg("FMP API key not configured - index fallback will be unavailable")
	}
	if config.Clients.TwelveData.APIKey == "" {
		logger.Warn().Msg("Twelve Data API key not configured - metals fallback will be unavailable")
	}

	ratioService := ratio.NewService(registry, store, yahooClient, logger)

	marketService := marketdata.NewService(registry, store, logger,
		marketdata.WithPrimary(yahooClient),
		marketdata.WithCryptoProvider(deribitClient),
		marketdata.WithMetalsFallback(twelveDataClient),
		marketdata.WithStockFallback(finnhubClient),
		marketdata.WithIndexFallback(fmpClient),
		marketdata.WithEarningsProviders(finnhubClient, fmpClient),
		marketdata.WithRatioService(ratioService),
	)

	institutionalService := institutional.NewService(twseClient, store, config.Data.InstitutionalDir, logger)

	app := &App{
		Config:               config,
		Logger:               logger,
		Registry:             registry,
		Cache:                store,
		MarketService:        marketService,
		RatioService:         ratioService,
		InstitutionalService: institutionalService,
		StartupTime:          startupStart,
	}

	logger.Info().
		Str("version", common.GetVersion()).
		Str("environment", config.Environment).
		Dur("startup", time.Since(startupStart)).
		Msg("Application initialized")

	return app, nil
}
