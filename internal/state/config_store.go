package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/microlend/lqd/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveLiquidationConfig saves a new version of the liquidation configuration.
func SaveLiquidationConfig(cfg types.LiquidationConfig, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("refusing to save invalid configuration: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE liquidation_config SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active config for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO liquidation_config (
            version, config_name, is_active, activated_at, created_at,
            liquidation_threshold, liquidation_bonus, max_liquidation_ratio, protocol_fee,
            grace_period_seconds, min_collateral_ratio,
            auction_duration_seconds, auction_floor_percent
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8, $9,
            $10, $11,
            $12, $13
        ) RETURNING config_id;`

	var configID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		cfg.LiquidationThreshold, cfg.LiquidationBonus, cfg.MaxLiquidationRatio, cfg.ProtocolFee,
		cfg.GracePeriodSeconds, cfg.MinCollateralRatio,
		cfg.AuctionDurationSeconds, cfg.AuctionFloorPercent,
	).Scan(&configID)

	if err != nil {
		return 0, fmt.Errorf("failed to insert liquidation config: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("config_id", configID).
		Bool("active", makeActive).
		Msg("Saved liquidation configuration")
	return configID, nil
}

// LoadActiveLiquidationConfig loads the currently active configuration, or
// sql.ErrNoRows-derived error if none has been activated yet.
func LoadActiveLiquidationConfig(configName string) (*types.LiquidationConfig, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT
            liquidation_threshold, liquidation_bonus, max_liquidation_ratio, protocol_fee,
            grace_period_seconds, min_collateral_ratio,
            auction_duration_seconds, auction_floor_percent
        FROM liquidation_config
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	cfg := &types.LiquidationConfig{}
	row := DB.QueryRow(query, configName)
	err := row.Scan(
		&cfg.LiquidationThreshold, &cfg.LiquidationBonus, &cfg.MaxLiquidationRatio, &cfg.ProtocolFee,
		&cfg.GracePeriodSeconds, &cfg.MinCollateralRatio,
		&cfg.AuctionDurationSeconds, &cfg.AuctionFloorPercent,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no active liquidation config found for '%s'", configName)
		}
		return nil, fmt.Errorf("failed to scan active liquidation config for '%s': %w", configName, err)
	}
	log.Info().Str("config", configName).Msg("Loaded active liquidation configuration")
	return cfg, nil
}

// GetNextConfigVersion returns the next unused version number for a config name.
func GetNextConfigVersion(configName string) (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var maxVersion sql.NullInt64
	err := DB.QueryRow(`SELECT MAX(version) FROM liquidation_config WHERE config_name = $1;`, configName).Scan(&maxVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to determine next config version for '%s': %w", configName, err)
	}
	if !maxVersion.Valid {
		return 1, nil
	}
	return int(maxVersion.Int64) + 1, nil
}
