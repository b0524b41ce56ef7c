package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
// Token amounts are stored as NUMERIC(80, 0): wide enough for any 256-bit
// integer, written and read as decimal strings so precision never degrades.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS liquidation_config (
			config_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			liquidation_threshold DECIMAL(10, 4) NOT NULL,
			liquidation_bonus DECIMAL(10, 4) NOT NULL,
			max_liquidation_ratio DECIMAL(10, 4) NOT NULL,
			protocol_fee DECIMAL(10, 4) NOT NULL,
			grace_period_seconds BIGINT NOT NULL,
			min_collateral_ratio DECIMAL(10, 4) NOT NULL,
			auction_duration_seconds BIGINT NOT NULL,
			auction_floor_percent DECIMAL(10, 4) NOT NULL,
			CONSTRAINT uq_liquidation_config_name_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_liquidation_config_active ON liquidation_config(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS liquidation_results (
			result_id SERIAL PRIMARY KEY,
			loan_id VARCHAR(255) NOT NULL,
			liquidator VARCHAR(255) NOT NULL,
			debt_repaid NUMERIC(80, 0) NOT NULL,
			collateral_received NUMERIC(80, 0) NOT NULL,
			bonus NUMERIC(80, 0) NOT NULL,
			protocol_fee NUMERIC(80, 0) NOT NULL,
			settlement_ref VARCHAR(255) NOT NULL UNIQUE,
			executed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_liquidation_results_loan ON liquidation_results(loan_id);
		CREATE INDEX IF NOT EXISTS idx_liquidation_results_timestamp ON liquidation_results(executed_at DESC);

		CREATE TABLE IF NOT EXISTS liquidation_auctions (
			auction_id VARCHAR(64) PRIMARY KEY,
			loan_id VARCHAR(255) NOT NULL,
			collateral_amount NUMERIC(80, 0) NOT NULL,
			starting_price NUMERIC(80, 0) NOT NULL,
			current_price NUMERIC(80, 0) NOT NULL,
			min_price NUMERIC(80, 0) NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			highest_bidder VARCHAR(255),
			status VARCHAR(20) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_liquidation_auctions_loan ON liquidation_auctions(loan_id);
		CREATE INDEX IF NOT EXISTS idx_liquidation_auctions_status ON liquidation_auctions(status);

		CREATE TABLE IF NOT EXISTS scan_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			cycle_number INTEGER NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			loans_scanned INTEGER NOT NULL,
			at_risk_count INTEGER NOT NULL,
			eligible_count INTEGER NOT NULL,
			auctions_opened INTEGER NOT NULL,
			candidates JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_scan_snapshots_timestamp ON scan_snapshots(snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_scan_snapshots_cycle ON scan_snapshots(cycle_number DESC);

		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
