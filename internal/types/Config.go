/*

Runtime-tunable liquidation parameters.

Percentage fields are plain float64 configuration values; every monetary
computation converts them to LegacyDec at the call site so integer token
amounts never pass through floating point.

*/

package types

import (
	"fmt"
	"sync"
	"time"
)

// LiquidationConfig holds the process-wide liquidation parameters. All engine
// computations read the current value at call time through a ConfigHolder, so
// an administrative update takes effect on the next operation.
type LiquidationConfig struct {
	// LiquidationThreshold is the collateral ratio (percent) below which a
	// position is flagged at risk. Eligibility for liquidation is the stricter
	// healthFactor < 1 bound.
	LiquidationThreshold float64 `json:"liquidation_threshold"`
	// LiquidationBonus is the extra collateral (percent of base) awarded to
	// the liquidator.
	LiquidationBonus float64 `json:"liquidation_bonus"`
	// MaxLiquidationRatio caps how much of the outstanding debt (percent) a
	// single liquidation may repay.
	MaxLiquidationRatio float64 `json:"max_liquidation_ratio"`
	// ProtocolFee is the cut (percent of base collateral) carved out of the
	// liquidator's bonus and retained by the protocol.
	ProtocolFee float64 `json:"protocol_fee"`
	// GracePeriodSeconds is how long a loan must remain eligible before the
	// monitor auto-routes it to a Dutch auction.
	GracePeriodSeconds int64 `json:"grace_period_seconds"`
	// MinCollateralRatio is the funding-time collateral requirement (percent).
	MinCollateralRatio float64 `json:"min_collateral_ratio"`
	// AuctionDurationSeconds is the Dutch auction decay window.
	AuctionDurationSeconds int64 `json:"auction_duration_seconds"`
	// AuctionFloorPercent is the auction floor as a percent of starting price.
	AuctionFloorPercent float64 `json:"auction_floor_percent"`
}

// Validate rejects configurations that would make settlement math degenerate.
func (c LiquidationConfig) Validate() error {
	if c.LiquidationThreshold <= 100 {
		return fmt.Errorf("liquidation threshold must exceed 100%%, got %.2f", c.LiquidationThreshold)
	}
	if c.LiquidationBonus < 0 || c.LiquidationBonus > 100 {
		return fmt.Errorf("liquidation bonus must be in [0, 100], got %.2f", c.LiquidationBonus)
	}
	if c.MaxLiquidationRatio <= 0 || c.MaxLiquidationRatio > 100 {
		return fmt.Errorf("max liquidation ratio must be in (0, 100], got %.2f", c.MaxLiquidationRatio)
	}
	if c.ProtocolFee < 0 || c.ProtocolFee > c.LiquidationBonus {
		return fmt.Errorf("protocol fee must be in [0, bonus], got %.2f", c.ProtocolFee)
	}
	if c.GracePeriodSeconds < 0 {
		return fmt.Errorf("grace period cannot be negative, got %d", c.GracePeriodSeconds)
	}
	if c.MinCollateralRatio < 100 {
		return fmt.Errorf("min collateral ratio must be at least 100%%, got %.2f", c.MinCollateralRatio)
	}
	if c.AuctionDurationSeconds <= 0 {
		return fmt.Errorf("auction duration must be positive, got %d", c.AuctionDurationSeconds)
	}
	if c.AuctionFloorPercent <= 0 || c.AuctionFloorPercent > 100 {
		return fmt.Errorf("auction floor percent must be in (0, 100], got %.2f", c.AuctionFloorPercent)
	}
	return nil
}

// GracePeriod returns the grace period as a duration.
func (c LiquidationConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// AuctionDuration returns the auction decay window as a duration.
func (c LiquidationConfig) AuctionDuration() time.Duration {
	return time.Duration(c.AuctionDurationSeconds) * time.Second
}

// ConfigHolder provides atomic read/replace access to the live
// LiquidationConfig. Replacement swaps the whole value, so no operation ever
// observes a torn update.
type ConfigHolder struct {
	mu  sync.RWMutex
	cfg LiquidationConfig
}

// NewConfigHolder creates a holder seeded with the given configuration.
func NewConfigHolder(cfg LiquidationConfig) (*ConfigHolder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ConfigHolder{cfg: cfg}, nil
}

// Get returns the current configuration value.
func (h *ConfigHolder) Get() LiquidationConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Set replaces the configuration after validating it.
func (h *ConfigHolder) Set(cfg LiquidationConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
	return nil
}
