/*

Liquidation Engine.

Decides whether a position is liquidatable, computes settlement terms, and
executes direct liquidations through the settlement collaborator. Positions
not settled directly are routed to the Dutch auction machinery in auction.go.

Eligibility is health factor < 1, a strictly tighter bound than the "at risk"
flag (collateral ratio under the configured threshold). A position can be at
risk for a long time without ever being liquidatable.

*/

package liquidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/microlend/lqd/internal/loanbook"
	"github.com/microlend/lqd/internal/logger"
	"github.com/microlend/lqd/internal/metrics"
	"github.com/microlend/lqd/internal/settlement"
	"github.com/microlend/lqd/internal/types"
	"github.com/microlend/lqd/internal/utils"
	"github.com/microlend/lqd/internal/valuation"
)

var engineLogger = logger.GetForComponent("liquidation_engine")

var (
	ErrLoanNotFound     = errors.New("loan not found")
	ErrNotEligible      = errors.New("loan is not eligible for liquidation")
	ErrInvalidAmount    = errors.New("invalid liquidation amount")
	ErrSettlementFailed = errors.New("liquidation settlement failed")
)

// HistoryStore persists executed liquidations and serves aggregates over them.
type HistoryStore interface {
	SaveResult(result types.LiquidationResult) error
	Stats() (types.ProtocolStats, error)
}

// AuctionRecorder persists auction records on every state transition for
// later audit queries. Runtime auction state stays in memory.
type AuctionRecorder interface {
	UpsertAuction(auction types.LiquidationAuction) error
}

// ExecuteRequest describes one liquidation execution attempt.
type ExecuteRequest struct {
	LoanID            string      `json:"loan_id"`
	DebtAmount        sdkmath.Int `json:"debt_amount"`
	Liquidator        string      `json:"liquidator"`
	ReceiveCollateral bool        `json:"receive_collateral"`
}

// Engine is the liquidation decision and settlement core.
type Engine struct {
	loans      loanbook.Source
	valuation  *valuation.Engine
	transferor settlement.Transferor
	history    HistoryStore
	recorder   AuctionRecorder
	cfg        *types.ConfigHolder
	auctions   *auctionBook
	now        func() time.Time
}

// NewEngine creates a liquidation engine with explicit dependencies.
func NewEngine(
	loans loanbook.Source,
	val *valuation.Engine,
	transferor settlement.Transferor,
	history HistoryStore,
	recorder AuctionRecorder,
	cfg *types.ConfigHolder,
) (*Engine, error) {
	if loans == nil {
		return nil, errors.New("loan source cannot be nil")
	}
	if val == nil {
		return nil, errors.New("valuation engine cannot be nil")
	}
	if transferor == nil {
		return nil, errors.New("settlement transferor cannot be nil")
	}
	if history == nil {
		return nil, errors.New("history store cannot be nil")
	}
	if recorder == nil {
		return nil, errors.New("auction recorder cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config holder cannot be nil")
	}
	return &Engine{
		loans:      loans,
		valuation:  val,
		transferor: transferor,
		history:    history,
		recorder:   recorder,
		cfg:        cfg,
		auctions:   newAuctionBook(),
		now:        time.Now,
	}, nil
}

// SetClock substitutes the engine's time source; used by tests to drive
// auction decay deterministically.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// candidateFor re-derives the candidate view of one loan from the loan book
// and current prices. It does not gate on eligibility: the amount calculator
// works on any loan, only execution and auction start demand health factor
// below 1. Every mutating operation calls this inside its own call so
// eligibility can never go stale between check and execute.
func (e *Engine) candidateFor(ctx context.Context, loanID string) (types.LiquidationCandidate, error) {
	loan, err := e.loans.GetLoan(ctx, loanID)
	if err != nil {
		if errors.Is(err, loanbook.ErrLoanNotFound) {
			return types.LiquidationCandidate{}, fmt.Errorf("%w: %s", ErrLoanNotFound, loanID)
		}
		return types.LiquidationCandidate{}, fmt.Errorf("loan lookup failed for %s: %w", loanID, err)
	}
	return e.buildCandidate(ctx, loan)
}

// eligibleCandidateFor is candidateFor plus the eligibility gate.
func (e *Engine) eligibleCandidateFor(ctx context.Context, loanID string) (types.LiquidationCandidate, error) {
	candidate, err := e.candidateFor(ctx, loanID)
	if err != nil {
		return types.LiquidationCandidate{}, err
	}
	if candidate.HealthFactor.GTE(sdkmath.LegacyOneDec()) {
		return types.LiquidationCandidate{}, fmt.Errorf("%w: health factor %s", ErrNotEligible, candidate.HealthFactor.String())
	}
	return candidate, nil
}

func (e *Engine) buildCandidate(ctx context.Context, loan loanbook.Loan) (types.LiquidationCandidate, error) {
	position, err := e.valuation.GetPosition(ctx, loan.ID, loan.Borrower, loan.Holdings, loan.DebtAmount)
	if err != nil {
		return types.LiquidationCandidate{}, err
	}

	cfg := e.cfg.Get()
	maxRatioDec, err := utils.PercentToDec(cfg.MaxLiquidationRatio)
	if err != nil {
		return types.LiquidationCandidate{}, fmt.Errorf("bad max liquidation ratio: %w", err)
	}

	return types.LiquidationCandidate{
		LoanID:               loan.ID,
		Borrower:             loan.Borrower,
		CollateralValueETH:   position.TotalValueETH,
		DebtValueETH:         position.DebtValueETH,
		DebtAmount:           loan.DebtAmount,
		HealthFactor:         position.HealthFactor,
		CollateralRatio:      position.HealthFactor.Mul(sdkmath.LegacyNewDec(100)),
		LiquidationThreshold: cfg.LiquidationThreshold,
		MaxLiquidatableDebt:  sdkmath.LegacyNewDecFromInt(loan.DebtAmount).Mul(maxRatioDec).TruncateInt(),
		LiquidationBonus:     cfg.LiquidationBonus,
		CollateralAsset:      loan.CollateralAsset,
		DebtAsset:            loan.DebtAsset,
	}, nil
}

// GetCandidates scans the loan book and returns every loan with a health
// factor below 1, annotated with its settlement terms. Loans whose valuation
// fails are skipped with a logged error so one bad loan cannot hide the rest.
func (e *Engine) GetCandidates(ctx context.Context) ([]types.LiquidationCandidate, error) {
	loans, err := e.loans.GetActiveLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("loan book scan failed: %w", err)
	}

	candidates := make([]types.LiquidationCandidate, 0)
	for _, loan := range loans {
		candidate, err := e.buildCandidate(ctx, loan)
		if err != nil {
			engineLogger.Error().Err(err).Str("loanId", loan.ID).Msg("Skipping loan: candidate derivation failed")
			continue
		}
		if candidate.HealthFactor.GTE(sdkmath.LegacyOneDec()) {
			continue
		}
		candidates = append(candidates, candidate)
	}

	engineLogger.Debug().Int("loans", len(loans)).Int("candidates", len(candidates)).Msg("Candidate scan complete")
	return candidates, nil
}

// CheckEligibility reports whether a loan is currently liquidatable. The
// reason string includes the health factor so callers can explain rejections.
func (e *Engine) CheckEligibility(ctx context.Context, loanID string) types.Eligibility {
	candidate, err := e.candidateFor(ctx, loanID)
	if err != nil {
		return types.Eligibility{
			IsEligible:   false,
			HealthFactor: sdkmath.LegacyZeroDec(),
			Reason:       "Loan not found or healthy",
		}
	}
	if candidate.HealthFactor.GTE(sdkmath.LegacyOneDec()) {
		return types.Eligibility{
			IsEligible:   false,
			HealthFactor: candidate.HealthFactor,
			Reason:       fmt.Sprintf("Health factor %s is not below 1", candidate.HealthFactor.String()),
		}
	}
	return types.Eligibility{IsEligible: true, HealthFactor: candidate.HealthFactor}
}

// CalculateLiquidationAmount computes the debt/collateral exchange for a
// requested repayment. Requests above the maximum liquidatable debt are
// clamped rather than rejected; over-eager liquidators get the cap, not an
// error.
func (e *Engine) CalculateLiquidationAmount(ctx context.Context, loanID string, requestedDebt sdkmath.Int) (types.LiquidationAmounts, error) {
	candidate, err := e.candidateFor(ctx, loanID)
	if err != nil {
		return types.LiquidationAmounts{}, err
	}
	return e.computeAmounts(candidate, requestedDebt)
}

// computeAmounts converts a (possibly clamped) debt repayment into collateral
// units at the position's implied exchange rate. The protocol fee is
// protocolFee% of the base collateral, carved out of the liquidator's bonus:
// netCollateral + protocolFee always equals baseCollateral + bonus exactly.
func (e *Engine) computeAmounts(candidate types.LiquidationCandidate, requestedDebt sdkmath.Int) (types.LiquidationAmounts, error) {
	if requestedDebt.IsNil() || !requestedDebt.IsPositive() {
		return types.LiquidationAmounts{}, fmt.Errorf("%w: requested debt must be positive", ErrInvalidAmount)
	}

	debtToRepay := requestedDebt
	if debtToRepay.GT(candidate.MaxLiquidatableDebt) {
		debtToRepay = candidate.MaxLiquidatableDebt
	}
	if !debtToRepay.IsPositive() {
		return types.LiquidationAmounts{}, fmt.Errorf("%w: nothing liquidatable", ErrInvalidAmount)
	}

	if !candidate.DebtValueETH.IsPositive() {
		return types.LiquidationAmounts{}, fmt.Errorf("%w: candidate has no debt value", ErrInvalidAmount)
	}
	// Implied exchange rate at candidate-derivation time.
	rate := candidate.CollateralValueETH.Quo(candidate.DebtValueETH)

	cfg := e.cfg.Get()
	bonusDec, err := utils.PercentToDec(cfg.LiquidationBonus)
	if err != nil {
		return types.LiquidationAmounts{}, fmt.Errorf("bad liquidation bonus: %w", err)
	}
	feeDec, err := utils.PercentToDec(cfg.ProtocolFee)
	if err != nil {
		return types.LiquidationAmounts{}, fmt.Errorf("bad protocol fee: %w", err)
	}

	base := sdkmath.LegacyNewDecFromInt(debtToRepay).Mul(rate).TruncateInt()
	bonus := sdkmath.LegacyNewDecFromInt(base).Mul(bonusDec).TruncateInt()
	fee := sdkmath.LegacyNewDecFromInt(base).Mul(feeDec).TruncateInt()
	if fee.GT(bonus) {
		fee = bonus
	}

	return types.LiquidationAmounts{
		DebtToRepay:    debtToRepay,
		BaseCollateral: base,
		Bonus:          bonus,
		ProtocolFee:    fee,
		NetCollateral:  base.Add(bonus).Sub(fee),
	}, nil
}

// ExecuteLiquidation settles a liquidation directly. Eligibility is
// re-derived inside this call: the health factor can move between a caller's
// eligibility check and execution, and a stale check must never settle.
// Settlement failure is a hard stop with no state committed.
func (e *Engine) ExecuteLiquidation(ctx context.Context, req ExecuteRequest) (types.LiquidationResult, error) {
	candidate, err := e.eligibleCandidateFor(ctx, req.LoanID)
	if err != nil {
		metrics.LiquidationFailures.WithLabelValues("ineligible").Inc()
		return types.LiquidationResult{}, err
	}

	amounts, err := e.computeAmounts(candidate, req.DebtAmount)
	if err != nil {
		metrics.LiquidationFailures.WithLabelValues("invalid_amount").Inc()
		return types.LiquidationResult{}, err
	}

	receipt, err := e.transferor.Transfer(ctx, settlement.TransferRequest{
		LoanID:            req.LoanID,
		Liquidator:        req.Liquidator,
		DebtAmount:        amounts.DebtToRepay,
		CollateralAmount:  amounts.NetCollateral,
		FeeAmount:         amounts.ProtocolFee,
		ReceiveCollateral: req.ReceiveCollateral,
	})
	if err != nil {
		metrics.LiquidationFailures.WithLabelValues("settlement").Inc()
		engineLogger.Error().Err(err).Str("loanId", req.LoanID).Msg("Settlement transfer failed, liquidation aborted")
		return types.LiquidationResult{}, fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}

	settlementRef := receipt.TxRef
	if settlementRef == "" {
		settlementRef = uuid.New().String()
	}

	result := types.LiquidationResult{
		LoanID:             req.LoanID,
		Liquidator:         req.Liquidator,
		DebtRepaid:         amounts.DebtToRepay,
		CollateralReceived: amounts.NetCollateral,
		Bonus:              amounts.Bonus,
		ProtocolFee:        amounts.ProtocolFee,
		SettlementRef:      settlementRef,
		Timestamp:          e.now(),
	}

	if err := e.history.SaveResult(result); err != nil {
		// The transfer already settled; losing the audit row is bad but must
		// not be reported as a failed liquidation.
		engineLogger.Error().Err(err).Str("settlementRef", settlementRef).Msg("Failed to persist liquidation result")
	}

	metrics.LiquidationsExecuted.Inc()
	engineLogger.Info().
		Str("loanId", req.LoanID).
		Str("liquidator", req.Liquidator).
		Str("debtRepaid", result.DebtRepaid.String()).
		Str("collateralReceived", result.CollateralReceived.String()).
		Str("settlementRef", settlementRef).
		Msg("Liquidation executed")
	return result, nil
}

// GetProtocolStats aggregates the liquidation history log.
func (e *Engine) GetProtocolStats() (types.ProtocolStats, error) {
	return e.history.Stats()
}

// UpdateConfig atomically replaces the live liquidation configuration.
func (e *Engine) UpdateConfig(cfg types.LiquidationConfig) error {
	if err := e.cfg.Set(cfg); err != nil {
		return err
	}
	engineLogger.Info().
		Float64("threshold", cfg.LiquidationThreshold).
		Float64("bonus", cfg.LiquidationBonus).
		Float64("maxRatio", cfg.MaxLiquidationRatio).
		Float64("protocolFee", cfg.ProtocolFee).
		Msg("Liquidation configuration updated")
	return nil
}

// Config returns the current configuration value.
func (e *Engine) Config() types.LiquidationConfig {
	return e.cfg.Get()
}
