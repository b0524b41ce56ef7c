/*

Custom types for collateral holdings and their computed valuation.

Value fields are derived from price x amount on every valuation pass and are
never authoritative. Nothing in this file is persisted; positions are pure
computed views over the loan book and the current oracle prices.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// CollateralHolding is one raw (token, amount) pair as reported by the loan
// book. Amounts are base-unit integers scaled by the token's decimal count.
type CollateralHolding struct {
	TokenAddress string      `json:"token_address"`
	Amount       sdkmath.Int `json:"amount"`
}

// CollateralAsset is a holding after valuation against current prices.
type CollateralAsset struct {
	TokenAddress         string            `json:"token_address"`
	Symbol               string            `json:"symbol"`
	Decimals             int               `json:"decimals"`
	Amount               sdkmath.Int       `json:"amount"`
	ValueUSD             sdkmath.LegacyDec `json:"value_usd"`
	ValueETH             sdkmath.LegacyDec `json:"value_eth"`
	LiquidationThreshold float64           `json:"liquidation_threshold"` // percent
	MaxLTV               float64           `json:"max_ltv"`               // percent
	Supported            bool              `json:"supported"`
}

// CollateralPosition aggregates all collateral backing one loan.
// HealthFactor is totalValueETH / debtValueETH; LegacyMaxSortableDec stands in
// for +infinity when the loan carries no debt.
type CollateralPosition struct {
	LoanID        string            `json:"loan_id"`
	Borrower      string            `json:"borrower"`
	Assets        []CollateralAsset `json:"assets"`
	TotalValueUSD sdkmath.LegacyDec `json:"total_value_usd"`
	TotalValueETH sdkmath.LegacyDec `json:"total_value_eth"`
	DebtValueETH  sdkmath.LegacyDec `json:"debt_value_eth"`
	HealthFactor  sdkmath.LegacyDec `json:"health_factor"`
	// LiquidationPrice is the total ETH collateral value at which the position
	// crosses the liquidation threshold (debtValueETH x threshold / 100).
	LiquidationPrice sdkmath.LegacyDec `json:"liquidation_price"`
	IsAtRisk         bool              `json:"is_at_risk"`
}

// CollateralValidation is the outcome of a funding-time collateral check.
// Unlike valuation, funding-time validation hard-rejects unsupported tokens.
type CollateralValidation struct {
	IsValid            bool              `json:"is_valid"`
	Message            string            `json:"message"`
	CollateralRatio    sdkmath.LegacyDec `json:"collateral_ratio"` // percent
	RequiredCollateral sdkmath.Int       `json:"required_collateral"`
}
