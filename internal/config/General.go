package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LoanBookAPI is the platform API endpoint serving active loans.
	LoanBookAPI string
	// SettlementAPI is the transaction relayer endpoint used to move funds.
	SettlementAPI string
	// PriceFeedAPI is the upstream price feed endpoint.
	PriceFeedAPI string
	// PriceFeedAPIKey authenticates against the price feed.
	PriceFeedAPIKey string

	// PriceCacheTTLSeconds bounds how long a fetched quote is served before a
	// refresh is attempted.
	PriceCacheTTLSeconds int
	// PriceFeedTimeoutSeconds bounds a single price feed request so a stalled
	// feed can never block a liquidation-eligibility check.
	PriceFeedTimeoutSeconds int

	// ScanIntervalSeconds is the monitor's loan book scan cadence.
	ScanIntervalSeconds int
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All endpoint variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LoanBookAPI, err = getEnv("LOANBOOK_API")
	if err != nil {
		return err
	}

	SettlementAPI, err = getEnv("SETTLEMENT_API")
	if err != nil {
		return err
	}

	PriceFeedAPI, err = getEnv("PRICE_FEED_API")
	if err != nil {
		return err
	}

	// The feed key is optional; public endpoints work unauthenticated at a
	// lower rate limit.
	PriceFeedAPIKey = os.Getenv("PRICE_FEED_API_KEY")

	PriceCacheTTLSeconds = getEnvAsIntWithDefault("PRICE_CACHE_TTL_SECONDS", 45)
	PriceFeedTimeoutSeconds = getEnvAsIntWithDefault("PRICE_FEED_TIMEOUT_SECONDS", 10)
	ScanIntervalSeconds = getEnvAsIntWithDefault("SCAN_INTERVAL_SECONDS", 60)

	log.Debug().
		Str("LoanBookAPI", LoanBookAPI).
		Str("SettlementAPI", SettlementAPI).
		Str("PriceFeedAPI", PriceFeedAPI).
		Int("PriceCacheTTLSeconds", PriceCacheTTLSeconds).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsIntWithDefault retrieves an environment variable as an int, falling
// back to the default when unset or unparsable.
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid integer environment variable, using default")
		return defaultValue
	}
	return value
}
