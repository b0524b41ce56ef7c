/*

Types for the liquidation lifecycle: candidates flagged for review, executed
settlements, and Dutch auctions for positions not settled directly.

LiquidationResult and LiquidationAuction are the only persisted facts in the
engine; candidates are derived snapshots recomputed on every eligibility check.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// AuctionStatus is the lifecycle state of a Dutch auction.
type AuctionStatus string

const (
	AuctionActive    AuctionStatus = "active"
	AuctionCompleted AuctionStatus = "completed"
	AuctionCancelled AuctionStatus = "cancelled"
)

// LiquidationCandidate is a loan flagged for liquidation review, annotated
// with the settlement terms implied by the position at fetch time.
type LiquidationCandidate struct {
	LoanID               string            `json:"loan_id"`
	Borrower             string            `json:"borrower"`
	CollateralValueETH   sdkmath.LegacyDec `json:"collateral_value_eth"`
	DebtValueETH         sdkmath.LegacyDec `json:"debt_value_eth"`
	DebtAmount           sdkmath.Int       `json:"debt_amount"`
	HealthFactor         sdkmath.LegacyDec `json:"health_factor"`
	CollateralRatio      sdkmath.LegacyDec `json:"collateral_ratio"`      // percent
	LiquidationThreshold float64           `json:"liquidation_threshold"` // percent
	MaxLiquidatableDebt  sdkmath.Int       `json:"max_liquidatable_debt"`
	LiquidationBonus     float64           `json:"liquidation_bonus"` // percent
	CollateralAsset      string            `json:"collateral_asset"`
	DebtAsset            string            `json:"debt_asset"`
}

// LiquidationAmounts is the computed exchange for a (possibly clamped)
// requested debt repayment. NetCollateral + ProtocolFee always equals
// BaseCollateral + Bonus; no value is created or destroyed.
type LiquidationAmounts struct {
	DebtToRepay    sdkmath.Int `json:"debt_to_repay"`
	BaseCollateral sdkmath.Int `json:"base_collateral"`
	Bonus          sdkmath.Int `json:"bonus"`
	ProtocolFee    sdkmath.Int `json:"protocol_fee"`
	NetCollateral  sdkmath.Int `json:"net_collateral"`
}

// LiquidationResult records an executed liquidation. Created once at
// settlement time, immutable thereafter, keyed by SettlementRef.
type LiquidationResult struct {
	LoanID             string      `json:"loan_id"`
	Liquidator         string      `json:"liquidator"`
	DebtRepaid         sdkmath.Int `json:"debt_repaid"`
	CollateralReceived sdkmath.Int `json:"collateral_received"`
	Bonus              sdkmath.Int `json:"bonus"`
	ProtocolFee        sdkmath.Int `json:"protocol_fee"`
	SettlementRef      string      `json:"settlement_ref"`
	Timestamp          time.Time   `json:"timestamp"`
}

// LiquidationAuction is a Dutch auction over a position's collateral.
// The ask decays linearly from StartingPrice to MinPrice over the window
// [StartTime, EndTime]; once the window elapses the price holds at MinPrice
// indefinitely. There is no automatic expiry transition: the floor acts as a
// standing ask until a bid clears or an operator cancels.
type LiquidationAuction struct {
	ID               string        `json:"id"`
	LoanID           string        `json:"loan_id"`
	CollateralAmount sdkmath.Int   `json:"collateral_amount"`
	StartingPrice    sdkmath.Int   `json:"starting_price"`
	CurrentPrice     sdkmath.Int   `json:"current_price"`
	MinPrice         sdkmath.Int   `json:"min_price"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          time.Time     `json:"end_time"`
	HighestBidder    string        `json:"highest_bidder,omitempty"`
	Status           AuctionStatus `json:"status"`
}

// ProtocolStats aggregates the liquidation history log.
type ProtocolStats struct {
	TotalLiquidations     int64       `json:"total_liquidations"`
	TotalDebtRepaid       sdkmath.Int `json:"total_debt_repaid"`
	TotalCollateralSeized sdkmath.Int `json:"total_collateral_seized"`
	TotalProtocolFees     sdkmath.Int `json:"total_protocol_fees"`
}

// Eligibility is the outcome of a liquidation eligibility check. Reason is a
// human-readable explanation populated only when the loan is not eligible.
type Eligibility struct {
	IsEligible   bool              `json:"is_eligible"`
	HealthFactor sdkmath.LegacyDec `json:"health_factor"`
	Reason       string            `json:"reason,omitempty"`
}

// ScanSnapshot summarises one monitor cycle over the loan book.
type ScanSnapshot struct {
	CycleNumber    int                    `json:"cycle_number"`
	Timestamp      time.Time              `json:"timestamp"`
	LoansScanned   int                    `json:"loans_scanned"`
	AtRiskCount    int                    `json:"at_risk_count"`
	EligibleCount  int                    `json:"eligible_count"`
	AuctionsOpened int                    `json:"auctions_opened"`
	Candidates     []LiquidationCandidate `json:"candidates"`
}
