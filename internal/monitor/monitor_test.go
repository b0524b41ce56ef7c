package monitor

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microlend/lqd/internal/config"
	"github.com/microlend/lqd/internal/liquidation"
	"github.com/microlend/lqd/internal/loanbook"
	"github.com/microlend/lqd/internal/oracle"
	"github.com/microlend/lqd/internal/registry"
	"github.com/microlend/lqd/internal/settlement"
	"github.com/microlend/lqd/internal/types"
	"github.com/microlend/lqd/internal/valuation"
)

const tethAddress = "0x1111111111111111111111111111111111111111"

type nopTransferor struct{}

func (nopTransferor) Transfer(_ context.Context, _ settlement.TransferRequest) (settlement.TransferReceipt, error) {
	return settlement.TransferReceipt{TxRef: "tx-test"}, nil
}

type nopHistory struct{}

func (nopHistory) SaveResult(types.LiquidationResult) error { return nil }
func (nopHistory) Stats() (types.ProtocolStats, error) {
	return types.ProtocolStats{
		TotalDebtRepaid:       sdkmath.ZeroInt(),
		TotalCollateralSeized: sdkmath.ZeroInt(),
		TotalProtocolFees:     sdkmath.ZeroInt(),
	}, nil
}

type nopRecorder struct{}

func (nopRecorder) UpsertAuction(types.LiquidationAuction) error { return nil }

func newTestMonitor(t *testing.T, graceSeconds int64, loans ...loanbook.Loan) (*Monitor, *liquidation.Engine, *loanbook.Memory) {
	t.Helper()

	reg := registry.NewFromTable(map[string]config.CollateralTokenInfo{
		tethAddress: {Symbol: "TETH", Name: "Test Ether", Decimals: 18, MaxLTV: 80, LiquidationThreshold: 150},
	})
	prices := &oracle.Static{Quotes: map[string]types.PriceQuote{
		"TETH": oracle.NewStaticQuote("TETH", sdkmath.LegacyNewDec(2000), sdkmath.LegacyOneDec()),
	}}

	cfg := config.DefaultLiquidationConfig
	cfg.GracePeriodSeconds = graceSeconds
	holder, err := types.NewConfigHolder(cfg)
	require.NoError(t, err)

	val, err := valuation.NewEngine(reg, prices, holder)
	require.NoError(t, err)

	book := loanbook.NewMemory(loans...)
	engine, err := liquidation.NewEngine(book, val, nopTransferor{}, nopHistory{}, nopRecorder{}, holder)
	require.NoError(t, err)

	mon, err := New(engine, book, val, holder)
	require.NoError(t, err)
	return mon, engine, book
}

func underwaterLoan(id string) loanbook.Loan {
	return loanbook.Loan{
		ID:       id,
		Borrower: "0xborrower",
		Holdings: []types.CollateralHolding{
			{TokenAddress: tethAddress, Amount: sdkmath.NewIntWithDecimal(700, 18)},
		},
		DebtAmount:      sdkmath.NewIntWithDecimal(1000, 18),
		DebtAsset:       "ETH",
		CollateralAsset: "TETH",
	}
}

func TestRunCycleOpensAuctionAfterGracePeriod(t *testing.T) {
	mon, engine, _ := newTestMonitor(t, 3600, underwaterLoan("loan-1"))
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mon.SetClock(func() time.Time { return now })
	engine.SetClock(func() time.Time { return now })

	// First sighting starts the grace clock; no auction yet.
	require.NoError(t, mon.RunCycle(ctx))
	assert.Empty(t, engine.ListAuctions(types.AuctionActive))

	// Still inside the grace window.
	now = now.Add(30 * time.Minute)
	require.NoError(t, mon.RunCycle(ctx))
	assert.Empty(t, engine.ListAuctions(types.AuctionActive))

	// Past the window the loan is routed to auction.
	now = now.Add(31 * time.Minute)
	require.NoError(t, mon.RunCycle(ctx))
	auctions := engine.ListAuctions(types.AuctionActive)
	require.Len(t, auctions, 1)
	assert.Equal(t, "loan-1", auctions[0].LoanID)

	// Another cycle does not open a second auction for the same loan.
	now = now.Add(time.Hour)
	require.NoError(t, mon.RunCycle(ctx))
	assert.Len(t, engine.ListAuctions(types.AuctionActive), 1)
}

func TestRunCycleResetsGraceClockOnRecovery(t *testing.T) {
	mon, engine, book := newTestMonitor(t, 3600, underwaterLoan("loan-1"))
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mon.SetClock(func() time.Time { return now })
	engine.SetClock(func() time.Time { return now })

	require.NoError(t, mon.RunCycle(ctx))

	// The borrower tops up; the loan drops off the candidate list.
	healthy := underwaterLoan("loan-1")
	healthy.Holdings[0].Amount = sdkmath.NewIntWithDecimal(2000, 18)
	book.Put(healthy)

	now = now.Add(30 * time.Minute)
	require.NoError(t, mon.RunCycle(ctx))

	// It goes back underwater; the grace clock must start over.
	book.Put(underwaterLoan("loan-1"))
	now = now.Add(45 * time.Minute)
	require.NoError(t, mon.RunCycle(ctx))
	assert.Empty(t, engine.ListAuctions(types.AuctionActive),
		"a recovered loan must re-earn its full grace period")

	now = now.Add(61 * time.Minute)
	require.NoError(t, mon.RunCycle(ctx))
	assert.Len(t, engine.ListAuctions(types.AuctionActive), 1)
}

func TestRunCycleHealthyBookOpensNothing(t *testing.T) {
	loan := underwaterLoan("loan-1")
	loan.Holdings[0].Amount = sdkmath.NewIntWithDecimal(3000, 18)
	mon, engine, _ := newTestMonitor(t, 0, loan)

	require.NoError(t, mon.RunCycle(context.Background()))
	assert.Empty(t, engine.ListAuctions(""))
}
