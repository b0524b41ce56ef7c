package liquidation

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microlend/lqd/internal/config"
	"github.com/microlend/lqd/internal/loanbook"
	"github.com/microlend/lqd/internal/oracle"
	"github.com/microlend/lqd/internal/registry"
	"github.com/microlend/lqd/internal/settlement"
	"github.com/microlend/lqd/internal/types"
	"github.com/microlend/lqd/internal/valuation"
)

const tethAddress = "0x1111111111111111111111111111111111111111"

type fakeTransferor struct {
	mu       sync.Mutex
	requests []settlement.TransferRequest
	fail     bool
}

func (f *fakeTransferor) Transfer(_ context.Context, req settlement.TransferRequest) (settlement.TransferReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return settlement.TransferReceipt{}, errors.New("relayer unavailable")
	}
	f.requests = append(f.requests, req)
	return settlement.TransferReceipt{TxRef: "tx-test-1"}, nil
}

type memHistory struct {
	mu      sync.Mutex
	results []types.LiquidationResult
}

func (h *memHistory) SaveResult(result types.LiquidationResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, result)
	return nil
}

func (h *memHistory) Stats() (types.ProtocolStats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats := types.ProtocolStats{
		TotalLiquidations:     int64(len(h.results)),
		TotalDebtRepaid:       sdkmath.ZeroInt(),
		TotalCollateralSeized: sdkmath.ZeroInt(),
		TotalProtocolFees:     sdkmath.ZeroInt(),
	}
	for _, r := range h.results {
		stats.TotalDebtRepaid = stats.TotalDebtRepaid.Add(r.DebtRepaid)
		stats.TotalCollateralSeized = stats.TotalCollateralSeized.Add(r.CollateralReceived)
		stats.TotalProtocolFees = stats.TotalProtocolFees.Add(r.ProtocolFee)
	}
	return stats, nil
}

type memRecorder struct {
	mu       sync.Mutex
	auctions []types.LiquidationAuction
}

func (r *memRecorder) UpsertAuction(auction types.LiquidationAuction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions = append(r.auctions, auction)
	return nil
}

type testRig struct {
	engine     *Engine
	book       *loanbook.Memory
	transferor *fakeTransferor
	history    *memHistory
	recorder   *memRecorder
	holder     *types.ConfigHolder
}

func newTestRig(t *testing.T, loans ...loanbook.Loan) *testRig {
	t.Helper()

	reg := registry.NewFromTable(map[string]config.CollateralTokenInfo{
		tethAddress: {Symbol: "TETH", Name: "Test Ether", Decimals: 18, MaxLTV: 80, LiquidationThreshold: 150},
	})
	prices := &oracle.Static{Quotes: map[string]types.PriceQuote{
		"TETH": oracle.NewStaticQuote("TETH", sdkmath.LegacyNewDec(2000), sdkmath.LegacyOneDec()),
	}}

	holder, err := types.NewConfigHolder(config.DefaultLiquidationConfig)
	require.NoError(t, err)

	val, err := valuation.NewEngine(reg, prices, holder)
	require.NoError(t, err)

	book := loanbook.NewMemory(loans...)
	transferor := &fakeTransferor{}
	history := &memHistory{}
	recorder := &memRecorder{}

	engine, err := NewEngine(book, val, transferor, history, recorder, holder)
	require.NoError(t, err)

	return &testRig{
		engine:     engine,
		book:       book,
		transferor: transferor,
		history:    history,
		recorder:   recorder,
		holder:     holder,
	}
}

// tethLoan builds a loan with collateralETH worth of TETH backing debtETH of debt.
func tethLoan(id string, collateralETH, debtETH int64) loanbook.Loan {
	return loanbook.Loan{
		ID:       id,
		Borrower: "0xborrower",
		Holdings: []types.CollateralHolding{
			{TokenAddress: tethAddress, Amount: sdkmath.NewIntWithDecimal(collateralETH, 18)},
		},
		DebtAmount:      sdkmath.NewIntWithDecimal(debtETH, 18),
		DebtAsset:       "ETH",
		CollateralAsset: "TETH",
	}
}

func TestGetCandidatesFiltersHealthyLoans(t *testing.T) {
	rig := newTestRig(t,
		tethLoan("underwater", 700, 1000), // HF 0.7
		tethLoan("at-risk", 1400, 1000),   // HF 1.4, at risk but not eligible
		tethLoan("healthy", 3000, 1000),   // HF 3.0
	)

	candidates, err := rig.engine.GetCandidates(context.Background())
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "underwater", candidates[0].LoanID)
	assert.True(t, candidates[0].HealthFactor.Equal(sdkmath.LegacyNewDecWithPrec(7, 1)))
	assert.True(t, candidates[0].MaxLiquidatableDebt.Equal(sdkmath.NewIntWithDecimal(500, 18)))
}

func TestCheckEligibility(t *testing.T) {
	rig := newTestRig(t,
		tethLoan("underwater", 700, 1000),
		tethLoan("at-risk", 1400, 1000),
	)
	ctx := context.Background()

	eligible := rig.engine.CheckEligibility(ctx, "underwater")
	assert.True(t, eligible.IsEligible)
	assert.True(t, eligible.HealthFactor.Equal(sdkmath.LegacyNewDecWithPrec(7, 1)))

	// At risk is not the same thing as eligible.
	atRisk := rig.engine.CheckEligibility(ctx, "at-risk")
	assert.False(t, atRisk.IsEligible)
	assert.True(t, atRisk.HealthFactor.Equal(sdkmath.LegacyNewDecWithPrec(14, 1)))
	assert.Contains(t, atRisk.Reason, "not below 1")

	missing := rig.engine.CheckEligibility(ctx, "no-such-loan")
	assert.False(t, missing.IsEligible)
	assert.Equal(t, "Loan not found or healthy", missing.Reason)
}

func TestCalculateLiquidationAmount(t *testing.T) {
	// debtValue 1000, collateralValue 1400, bonus 5%, fee 1%, requested 500:
	// base = 500 x 1.4 = 700, bonus = 35, fee = 7, net = 728.
	rig := newTestRig(t, tethLoan("loan-1", 1400, 1000))

	amounts, err := rig.engine.CalculateLiquidationAmount(context.Background(), "loan-1",
		sdkmath.NewIntWithDecimal(500, 18))
	require.NoError(t, err)

	assert.True(t, amounts.DebtToRepay.Equal(sdkmath.NewIntWithDecimal(500, 18)))
	assert.True(t, amounts.BaseCollateral.Equal(sdkmath.NewIntWithDecimal(700, 18)))
	assert.True(t, amounts.Bonus.Equal(sdkmath.NewIntWithDecimal(35, 18)))
	assert.True(t, amounts.ProtocolFee.Equal(sdkmath.NewIntWithDecimal(7, 18)))
	assert.True(t, amounts.NetCollateral.Equal(sdkmath.NewIntWithDecimal(728, 18)))
}

func TestCalculateLiquidationAmountClampsToMax(t *testing.T) {
	rig := newTestRig(t, tethLoan("loan-1", 1400, 1000))

	// Requesting the full debt gets clamped to the 50% cap, not rejected.
	amounts, err := rig.engine.CalculateLiquidationAmount(context.Background(), "loan-1",
		sdkmath.NewIntWithDecimal(1000, 18))
	require.NoError(t, err)
	assert.True(t, amounts.DebtToRepay.Equal(sdkmath.NewIntWithDecimal(500, 18)))
}

func TestCalculateLiquidationAmountRejectsNonPositive(t *testing.T) {
	rig := newTestRig(t, tethLoan("loan-1", 1400, 1000))

	_, err := rig.engine.CalculateLiquidationAmount(context.Background(), "loan-1", sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFeeAccountingInvariant(t *testing.T) {
	rig := newTestRig(t, tethLoan("loan-1", 700, 1000))

	for _, requested := range []int64{1, 7, 123, 499, 500, 999} {
		amounts, err := rig.engine.CalculateLiquidationAmount(context.Background(), "loan-1",
			sdkmath.NewIntWithDecimal(requested, 18))
		require.NoError(t, err)
		assert.True(t,
			amounts.NetCollateral.Add(amounts.ProtocolFee).Equal(amounts.BaseCollateral.Add(amounts.Bonus)),
			"net + fee must equal base + bonus for requested %d", requested)
	}
}

func TestExecuteLiquidation(t *testing.T) {
	rig := newTestRig(t, tethLoan("loan-1", 700, 1000))

	result, err := rig.engine.ExecuteLiquidation(context.Background(), ExecuteRequest{
		LoanID:            "loan-1",
		DebtAmount:        sdkmath.NewIntWithDecimal(500, 18),
		Liquidator:        "0xliquidator",
		ReceiveCollateral: true,
	})
	require.NoError(t, err)

	// rate = 700/1000 = 0.7: base 350, bonus 17.5, fee 3.5, net 364.
	assert.True(t, result.DebtRepaid.Equal(sdkmath.NewIntWithDecimal(500, 18)))
	assert.True(t, result.CollateralReceived.Equal(sdkmath.NewIntWithDecimal(3640, 17)))
	assert.Equal(t, "tx-test-1", result.SettlementRef)
	assert.Equal(t, "0xliquidator", result.Liquidator)

	require.Len(t, rig.transferor.requests, 1)
	assert.True(t, rig.transferor.requests[0].DebtAmount.Equal(result.DebtRepaid))
	assert.True(t, rig.transferor.requests[0].CollateralAmount.Equal(result.CollateralReceived))

	require.Len(t, rig.history.results, 1)
	assert.Equal(t, "loan-1", rig.history.results[0].LoanID)
}

func TestExecuteLiquidationRejectsHealthyLoan(t *testing.T) {
	rig := newTestRig(t, tethLoan("loan-1", 1400, 1000))

	_, err := rig.engine.ExecuteLiquidation(context.Background(), ExecuteRequest{
		LoanID:     "loan-1",
		DebtAmount: sdkmath.NewIntWithDecimal(100, 18),
		Liquidator: "0xliquidator",
	})
	assert.ErrorIs(t, err, ErrNotEligible)
	assert.Empty(t, rig.transferor.requests)
	assert.Empty(t, rig.history.results)
}

func TestExecuteLiquidationRechecksEligibility(t *testing.T) {
	rig := newTestRig(t, tethLoan("loan-1", 700, 1000))
	ctx := context.Background()

	eligibility := rig.engine.CheckEligibility(ctx, "loan-1")
	require.True(t, eligibility.IsEligible)

	// The borrower tops up collateral between check and execute.
	rig.book.Put(tethLoan("loan-1", 1500, 1000))

	_, err := rig.engine.ExecuteLiquidation(ctx, ExecuteRequest{
		LoanID:     "loan-1",
		DebtAmount: sdkmath.NewIntWithDecimal(500, 18),
		Liquidator: "0xliquidator",
	})
	assert.ErrorIs(t, err, ErrNotEligible)
	assert.Empty(t, rig.transferor.requests)
}

func TestExecuteLiquidationSettlementFailureIsHardStop(t *testing.T) {
	rig := newTestRig(t, tethLoan("loan-1", 700, 1000))
	rig.transferor.fail = true

	_, err := rig.engine.ExecuteLiquidation(context.Background(), ExecuteRequest{
		LoanID:     "loan-1",
		DebtAmount: sdkmath.NewIntWithDecimal(500, 18),
		Liquidator: "0xliquidator",
	})
	assert.ErrorIs(t, err, ErrSettlementFailed)
	assert.Empty(t, rig.history.results, "no liquidation state may be committed when settlement fails")
}

func TestExecuteLiquidationUnknownLoan(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.engine.ExecuteLiquidation(context.Background(), ExecuteRequest{
		LoanID:     "no-such-loan",
		DebtAmount: sdkmath.NewIntWithDecimal(1, 18),
		Liquidator: "0xliquidator",
	})
	assert.ErrorIs(t, err, ErrLoanNotFound)
}

func TestGetProtocolStats(t *testing.T) {
	rig := newTestRig(t, tethLoan("loan-1", 700, 1000))
	ctx := context.Background()

	_, err := rig.engine.ExecuteLiquidation(ctx, ExecuteRequest{
		LoanID:     "loan-1",
		DebtAmount: sdkmath.NewIntWithDecimal(200, 18),
		Liquidator: "0xliquidator",
	})
	require.NoError(t, err)

	stats, err := rig.engine.GetProtocolStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalLiquidations)
	assert.True(t, stats.TotalDebtRepaid.Equal(sdkmath.NewIntWithDecimal(200, 18)))
	assert.True(t, stats.TotalProtocolFees.IsPositive())
}

func TestUpdateConfigRejectsInvalidValues(t *testing.T) {
	rig := newTestRig(t)

	bad := config.DefaultLiquidationConfig
	bad.ProtocolFee = bad.LiquidationBonus + 1
	assert.Error(t, rig.engine.UpdateConfig(bad))

	good := config.DefaultLiquidationConfig
	good.LiquidationBonus = 8
	require.NoError(t, rig.engine.UpdateConfig(good))
	assert.Equal(t, 8.0, rig.engine.Config().LiquidationBonus)
}
