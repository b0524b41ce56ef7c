package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/microlend/lqd/internal/config"
	"github.com/microlend/lqd/internal/liquidation"
	"github.com/microlend/lqd/internal/loanbook"
	"github.com/microlend/lqd/internal/logger"
	"github.com/microlend/lqd/internal/monitor"
	"github.com/microlend/lqd/internal/oracle"
	"github.com/microlend/lqd/internal/registry"
	"github.com/microlend/lqd/internal/settlement"
	"github.com/microlend/lqd/internal/state"
	"github.com/microlend/lqd/internal/types"
	"github.com/microlend/lqd/internal/valuation"
	"github.com/microlend/lqd/internal/web"
)

const (
	DEFAULT_CONFIG_NAME    = "default"
	DEFAULT_CONFIG_VERSION = 1
)

// main is the entry point for the liquidation engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Liquidation engine starting...")

	// Initialize database connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load the active liquidation configuration, seeding defaults on first run
	liqCfg, err := state.LoadActiveLiquidationConfig(DEFAULT_CONFIG_NAME)
	if err != nil {
		log.Warn().Err(err).Msg("No active liquidation config found, seeding defaults.")
		defaults := config.DefaultLiquidationConfig
		if _, err := state.SaveLiquidationConfig(defaults, DEFAULT_CONFIG_NAME, DEFAULT_CONFIG_VERSION, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default liquidation config.")
		}
		liqCfg = &defaults
	}
	holder, err := types.NewConfigHolder(*liqCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Stored liquidation config is invalid")
	}
	log.Info().Msg("Liquidation configuration loaded successfully.")

	// --- 2. Collaborator Wiring ---
	tokenRegistry := registry.New()

	priceOracle, err := oracle.New(
		config.PriceFeedAPI,
		config.PriceFeedAPIKey,
		time.Duration(config.PriceCacheTTLSeconds)*time.Second,
		time.Duration(config.PriceFeedTimeoutSeconds)*time.Second,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price oracle")
	}

	loanBook, err := loanbook.NewClient(config.LoanBookAPI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize loan book client")
	}

	transferor, err := settlement.NewClient(config.SettlementAPI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize settlement client")
	}

	valuationEngine, err := valuation.NewEngine(tokenRegistry, priceOracle, holder)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create valuation engine")
	}

	liquidationEngine, err := liquidation.NewEngine(
		loanBook, valuationEngine, transferor,
		state.HistoryStore{}, state.AuctionStore{}, holder,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create liquidation engine")
	}

	loanMonitor, err := monitor.New(liquidationEngine, loanBook, valuationEngine, holder)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create loan monitor")
	}

	// --- 3. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, liquidationEngine, valuationEngine, loanBook)
	go func() {
		log.Info().Str("port", webPort).Msg("Starting liquidation API server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Start Monitor Loop ---
	interval := time.Duration(config.ScanIntervalSeconds) * time.Second
	log.Info().Str("interval", interval.String()).Msg("Starting loan monitor loop")

	ctx := context.Background()
	loanMonitor.RunLoop(ctx, interval)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
