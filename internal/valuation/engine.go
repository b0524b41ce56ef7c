/*

Collateral Valuation Engine.

Converts raw collateral holdings plus a loan's outstanding debt into a health
assessment. Positions are pure computed views: every call re-derives values
from current prices and the live configuration, nothing is cached or stored.

Unsupported-token policy is deliberately two-tier and must stay that way:
valuation silently counts unknown tokens as zero (a borrower cannot inflate a
position with junk tokens, and a junk holding cannot crash an eligibility
check), while funding-time validation hard-rejects them. See ValidateCollateral.

*/

package valuation

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"golang.org/x/sync/errgroup"

	"github.com/microlend/lqd/internal/logger"
	"github.com/microlend/lqd/internal/registry"
	"github.com/microlend/lqd/internal/types"
	"github.com/microlend/lqd/internal/utils"
)

var valuationLogger = logger.GetForComponent("collateral_valuation")

var (
	ErrNegativeAmount = errors.New("collateral amount cannot be negative")
	ErrNegativeDebt   = errors.New("debt amount cannot be negative")
	ErrNilAmount      = errors.New("amount is nil")
)

// debtDecimals fixes the unit convention for debt amounts: the loan book
// reports debt as base-unit integers with 18 decimals (the wei convention),
// so debtValueETH = debtAmount / 10^18. Collateral holdings use each token's
// own declared decimal count instead.
const debtDecimals = 18

// PriceSource is the oracle dependency; see the oracle package.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (types.PriceQuote, error)
}

// Engine values collateral positions against current prices and the live
// liquidation configuration.
type Engine struct {
	registry *registry.Registry
	prices   PriceSource
	cfg      *types.ConfigHolder
}

// NewEngine creates a valuation engine with explicit dependencies.
func NewEngine(reg *registry.Registry, prices PriceSource, cfg *types.ConfigHolder) (*Engine, error) {
	if reg == nil {
		return nil, errors.New("token registry cannot be nil")
	}
	if prices == nil {
		return nil, errors.New("price source cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config holder cannot be nil")
	}
	return &Engine{registry: reg, prices: prices, cfg: cfg}, nil
}

// ValueAsset values one raw holding at current prices. Unsupported tokens
// come back with Supported=false and zero value rather than an error, and a
// failed price lookup likewise values the asset at zero: valuation fails
// closed, never open.
func (e *Engine) ValueAsset(ctx context.Context, tokenAddress string, amount sdkmath.Int) (types.CollateralAsset, error) {
	if amount.IsNil() {
		return types.CollateralAsset{}, ErrNilAmount
	}
	if amount.IsNegative() {
		return types.CollateralAsset{}, fmt.Errorf("%w: %s for token %s", ErrNegativeAmount, amount.String(), tokenAddress)
	}

	token, supported := e.registry.Lookup(tokenAddress)
	if !supported {
		valuationLogger.Debug().Str("token", tokenAddress).Msg("Unsupported collateral token valued at zero")
		return types.CollateralAsset{
			TokenAddress: tokenAddress,
			Amount:       amount,
			ValueUSD:     sdkmath.LegacyZeroDec(),
			ValueETH:     sdkmath.LegacyZeroDec(),
			Supported:    false,
		}, nil
	}

	asset := types.CollateralAsset{
		TokenAddress:         token.Address,
		Symbol:               token.Symbol,
		Decimals:             token.Decimals,
		Amount:               amount,
		ValueUSD:             sdkmath.LegacyZeroDec(),
		ValueETH:             sdkmath.LegacyZeroDec(),
		LiquidationThreshold: token.LiquidationThreshold,
		MaxLTV:               token.MaxLTV,
		Supported:            true,
	}

	quote, err := e.prices.GetPrice(ctx, token.Symbol)
	if err != nil {
		// Price unavailable through every oracle tier. The asset counts as
		// zero so the eligibility check can still proceed.
		valuationLogger.Warn().Err(err).Str("symbol", token.Symbol).Msg("No price available, valuing asset at zero")
		return asset, nil
	}

	amountDec := sdkmath.LegacyNewDecFromInt(amount).Quo(utils.PowerOfTen(token.Decimals))
	asset.ValueUSD = amountDec.Mul(quote.PriceUSD)
	asset.ValueETH = amountDec.Mul(quote.PriceETH)
	return asset, nil
}

// GetPosition values all holdings of a loan and computes its health factor
// against the outstanding debt. Holdings are valued concurrently since each
// may suspend on a price lookup. Unsupported tokens are skipped silently.
func (e *Engine) GetPosition(ctx context.Context, loanID, borrower string, holdings []types.CollateralHolding, debtAmount sdkmath.Int) (types.CollateralPosition, error) {
	if debtAmount.IsNil() || debtAmount.IsNegative() {
		return types.CollateralPosition{}, fmt.Errorf("%w: loan %s", ErrNegativeDebt, loanID)
	}

	assets := make([]types.CollateralAsset, len(holdings))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, holding := range holdings {
		i, holding := i, holding
		group.Go(func() error {
			asset, err := e.ValueAsset(groupCtx, holding.TokenAddress, holding.Amount)
			if err != nil {
				return err
			}
			assets[i] = asset
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return types.CollateralPosition{}, fmt.Errorf("valuation failed for loan %s: %w", loanID, err)
	}

	totalUSD := sdkmath.LegacyZeroDec()
	totalETH := sdkmath.LegacyZeroDec()
	for _, asset := range assets {
		if !asset.Supported {
			continue
		}
		totalUSD = totalUSD.Add(asset.ValueUSD)
		totalETH = totalETH.Add(asset.ValueETH)
	}

	debtETH := sdkmath.LegacyNewDecFromInt(debtAmount).Quo(utils.PowerOfTen(debtDecimals))

	cfg := e.cfg.Get()
	thresholdDec, err := utils.PercentToDec(cfg.LiquidationThreshold)
	if err != nil {
		return types.CollateralPosition{}, fmt.Errorf("bad liquidation threshold: %w", err)
	}

	// A debt-free position is infinitely healthy; LegacyMaxSortableDec stands
	// in for +infinity so the field stays comparable.
	healthFactor := sdkmath.LegacyMaxSortableDec
	if debtETH.IsPositive() {
		healthFactor = totalETH.Quo(debtETH)
	}

	position := types.CollateralPosition{
		LoanID:           loanID,
		Borrower:         borrower,
		Assets:           assets,
		TotalValueUSD:    totalUSD,
		TotalValueETH:    totalETH,
		DebtValueETH:     debtETH,
		HealthFactor:     healthFactor,
		LiquidationPrice: debtETH.Mul(thresholdDec),
		IsAtRisk:         debtETH.IsPositive() && healthFactor.LT(thresholdDec),
	}

	valuationLogger.Debug().
		Str("loanId", loanID).
		Str("totalValueETH", totalETH.String()).
		Str("debtValueETH", debtETH.String()).
		Str("healthFactor", healthFactor.String()).
		Bool("atRisk", position.IsAtRisk).
		Msg("Computed collateral position")
	return position, nil
}

// IsPositionHealthy reports whether a health factor clears the configured
// liquidation threshold.
func (e *Engine) IsPositionHealthy(healthFactor sdkmath.LegacyDec) bool {
	thresholdDec, err := utils.PercentToDec(e.cfg.Get().LiquidationThreshold)
	if err != nil {
		valuationLogger.Error().Err(err).Msg("Bad liquidation threshold, treating position as unhealthy")
		return false
	}
	return healthFactor.GTE(thresholdDec)
}

// CalculateRequiredCollateral returns the minimum collateral value a loan of
// the given size must post: loanAmount x minCollateralRatio / 100, rounded up
// so the requirement is never understated.
func (e *Engine) CalculateRequiredCollateral(loanAmount sdkmath.Int) (sdkmath.Int, error) {
	if loanAmount.IsNil() || loanAmount.IsNegative() {
		return sdkmath.ZeroInt(), ErrNegativeDebt
	}
	ratioDec, err := utils.PercentToDec(e.cfg.Get().MinCollateralRatio)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("bad min collateral ratio: %w", err)
	}
	return sdkmath.LegacyNewDecFromInt(loanAmount).Mul(ratioDec).Ceil().TruncateInt(), nil
}

// CalculateMaxBorrowable returns the maximum loan a collateral value supports
// under the token's loan-to-value cap: collateralValue x maxLTV / 100,
// rounded down. Unsupported tokens support no borrowing at all.
func (e *Engine) CalculateMaxBorrowable(collateralValue sdkmath.Int, tokenAddress string) (sdkmath.Int, error) {
	if collateralValue.IsNil() || collateralValue.IsNegative() {
		return sdkmath.ZeroInt(), ErrNegativeAmount
	}
	token, supported := e.registry.Lookup(tokenAddress)
	if !supported {
		return sdkmath.ZeroInt(), nil
	}
	ltvDec, err := utils.PercentToDec(token.MaxLTV)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("bad max LTV for %s: %w", token.Symbol, err)
	}
	return sdkmath.LegacyNewDecFromInt(collateralValue).Mul(ltvDec).TruncateInt(), nil
}

// ValidateCollateral is the funding-time gate. Unlike valuation it rejects
// any unsupported token outright, and it rejects positions whose collateral
// ratio falls below the configured minimum.
func (e *Engine) ValidateCollateral(ctx context.Context, holdings []types.CollateralHolding, loanAmount sdkmath.Int) (types.CollateralValidation, error) {
	if loanAmount.IsNil() || loanAmount.IsNegative() {
		return types.CollateralValidation{}, ErrNegativeDebt
	}

	required, err := e.CalculateRequiredCollateral(loanAmount)
	if err != nil {
		return types.CollateralValidation{}, err
	}

	result := types.CollateralValidation{
		CollateralRatio:    sdkmath.LegacyZeroDec(),
		RequiredCollateral: required,
	}

	for _, holding := range holdings {
		if !e.registry.IsSupported(holding.TokenAddress) {
			result.Message = fmt.Sprintf("unsupported collateral token: %s", holding.TokenAddress)
			return result, nil
		}
	}

	position, err := e.GetPosition(ctx, "", "", holdings, loanAmount)
	if err != nil {
		return types.CollateralValidation{}, err
	}

	hundred := sdkmath.LegacyNewDec(100)
	if position.DebtValueETH.IsPositive() {
		result.CollateralRatio = position.TotalValueETH.Quo(position.DebtValueETH).Mul(hundred)
	} else {
		result.CollateralRatio = sdkmath.LegacyMaxSortableDec
	}

	minRatioDec, err := utils.Float64ToDec(e.cfg.Get().MinCollateralRatio)
	if err != nil {
		return types.CollateralValidation{}, fmt.Errorf("bad min collateral ratio: %w", err)
	}

	if result.CollateralRatio.LT(minRatioDec) {
		result.Message = fmt.Sprintf("collateral ratio %s%% is below the required %s%%",
			result.CollateralRatio.String(), minRatioDec.String())
		return result, nil
	}

	result.IsValid = true
	return result, nil
}
