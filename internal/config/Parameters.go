/*

This file contains the default liquidation parameters.

These defaults are used when no active configuration row exists in the
database at startup. They are persisted on first boot and tunable at runtime
through the admin API; every engine computation reads the live value at call
time rather than a cached copy.

*/

package config

import (
	"github.com/microlend/lqd/internal/types"
)

// DefaultLiquidationConfig provides the baseline liquidation parameters.
var DefaultLiquidationConfig = types.LiquidationConfig{
	LiquidationThreshold: 150.0, // Positions below 150% collateral ratio are flagged at risk.
	// A position is only liquidatable once its health factor drops below 1.0;
	// the threshold drives early warnings, not eligibility.

	LiquidationBonus: 5.0, // Liquidators earn 5% extra collateral.
	// Large enough to cover gas and price movement between quote and
	// settlement, small enough that borrowers keep most of their equity.

	MaxLiquidationRatio: 50.0, // At most half the debt may be repaid per liquidation.
	// Partial liquidation gives the borrower a chance to recover before the
	// whole position is unwound.

	ProtocolFee: 1.0, // 1% of base collateral, carved out of the liquidator's bonus.

	GracePeriodSeconds: 86400, // 24h before the monitor auto-opens a Dutch auction.
	// Direct third-party liquidation is allowed immediately; only the
	// platform-initiated auction path waits out the grace window.

	MinCollateralRatio: 150.0, // Funding-time collateral requirement.

	AuctionDurationSeconds: 21600, // 6h linear decay window.

	AuctionFloorPercent: 70.0, // Floor at 70% of the starting ask.
	// Past the window the auction holds at the floor as a standing ask; it
	// never expires on its own.
}
