/*

Dutch auction state machine.

Auctions run in memory with per-auction locking; every state transition is
mirrored to the AuctionRecorder for audit. The ask decays linearly from the
starting price to the floor over the configured window and then holds at the
floor as a standing ask. There is no automatic expiry: only a clearing bid or
an operator cancel terminates an auction.

*/

package liquidation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/microlend/lqd/internal/logger"
	"github.com/microlend/lqd/internal/metrics"
	"github.com/microlend/lqd/internal/types"
	"github.com/microlend/lqd/internal/utils"
)

var auctionLogger = logger.GetForComponent("liquidation_auction")

var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrAuctionExists    = errors.New("loan already has an active auction")
	ErrBidTooLow        = errors.New("bid is below the current auction price")
)

// auctionBook holds live auctions. The book-level mutex guards the map; each
// entry carries its own mutex so a bid on one auction never blocks another.
type auctionBook struct {
	mu      sync.RWMutex
	entries map[string]*auctionEntry
}

type auctionEntry struct {
	mu      sync.Mutex
	auction types.LiquidationAuction
}

func newAuctionBook() *auctionBook {
	return &auctionBook{
		entries: make(map[string]*auctionEntry),
	}
}

func (b *auctionBook) get(auctionID string) (*auctionEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[auctionID]
	return entry, ok
}

// hasActiveForLoan reports whether a loan already has an active auction.
func (b *auctionBook) hasActiveForLoan(loanID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, entry := range b.entries {
		entry.mu.Lock()
		active := entry.auction.LoanID == loanID && entry.auction.Status == types.AuctionActive
		entry.mu.Unlock()
		if active {
			return true
		}
	}
	return false
}

// CalculateCurrentDutchPrice returns the ask at the given instant. Pure
// integer arithmetic: price = start - (start - min) * elapsed / duration,
// clamped to [min, start]. Past the end of the window the floor holds.
func CalculateCurrentDutchPrice(auction types.LiquidationAuction, at time.Time) sdkmath.Int {
	if auction.Status != types.AuctionActive {
		return auction.CurrentPrice
	}
	if !at.After(auction.StartTime) {
		return auction.StartingPrice
	}
	if !at.Before(auction.EndTime) {
		return auction.MinPrice
	}

	elapsedSec := int64(at.Sub(auction.StartTime) / time.Second)
	durationSec := int64(auction.EndTime.Sub(auction.StartTime) / time.Second)
	if durationSec <= 0 {
		return auction.MinPrice
	}

	decay := auction.StartingPrice.Sub(auction.MinPrice).MulRaw(elapsedSec).QuoRaw(durationSec)
	price := auction.StartingPrice.Sub(decay)
	if price.LT(auction.MinPrice) {
		return auction.MinPrice
	}
	return price
}

// StartDutchAuction opens a Dutch auction over an eligible loan's collateral.
// The starting price is the position's current collateral value in base units
// and the floor is the configured percentage of it. One active auction per
// loan.
func (e *Engine) StartDutchAuction(ctx context.Context, loanID string) (types.LiquidationAuction, error) {
	candidate, err := e.eligibleCandidateFor(ctx, loanID)
	if err != nil {
		return types.LiquidationAuction{}, err
	}

	if e.auctions.hasActiveForLoan(loanID) {
		return types.LiquidationAuction{}, fmt.Errorf("%w: %s", ErrAuctionExists, loanID)
	}

	cfg := e.cfg.Get()
	floorDec, err := utils.PercentToDec(cfg.AuctionFloorPercent)
	if err != nil {
		return types.LiquidationAuction{}, fmt.Errorf("bad auction floor percent: %w", err)
	}

	startingPrice := candidate.CollateralValueETH.Mul(utils.PowerOfTen(18)).TruncateInt()
	if !startingPrice.IsPositive() {
		return types.LiquidationAuction{}, fmt.Errorf("%w: position has no collateral value", ErrInvalidAmount)
	}
	minPrice := sdkmath.LegacyNewDecFromInt(startingPrice).Mul(floorDec).TruncateInt()

	start := e.now()
	auction := types.LiquidationAuction{
		ID:               uuid.New().String(),
		LoanID:           loanID,
		CollateralAmount: startingPrice,
		StartingPrice:    startingPrice,
		CurrentPrice:     startingPrice,
		MinPrice:         minPrice,
		StartTime:        start,
		EndTime:          start.Add(cfg.AuctionDuration()),
		Status:           types.AuctionActive,
	}

	e.auctions.mu.Lock()
	// Re-check under the book lock: two concurrent starts for the same loan
	// must not both pass the earlier active-auction probe.
	for _, entry := range e.auctions.entries {
		entry.mu.Lock()
		active := entry.auction.LoanID == loanID && entry.auction.Status == types.AuctionActive
		entry.mu.Unlock()
		if active {
			e.auctions.mu.Unlock()
			return types.LiquidationAuction{}, fmt.Errorf("%w: %s", ErrAuctionExists, loanID)
		}
	}
	e.auctions.entries[auction.ID] = &auctionEntry{auction: auction}
	e.auctions.mu.Unlock()

	e.recordAuction(auction)
	metrics.AuctionsOpened.Inc()
	auctionLogger.Info().
		Str("auctionId", auction.ID).
		Str("loanId", loanID).
		Str("startingPrice", auction.StartingPrice.String()).
		Str("minPrice", auction.MinPrice.String()).
		Time("endTime", auction.EndTime).
		Msg("Dutch auction opened")
	return auction, nil
}

// GetAuction returns an auction with its CurrentPrice refreshed to the ask at
// call time.
func (e *Engine) GetAuction(auctionID string) (types.LiquidationAuction, error) {
	entry, ok := e.auctions.get(auctionID)
	if !ok {
		return types.LiquidationAuction{}, fmt.Errorf("%w: %s", ErrAuctionNotFound, auctionID)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	auction := entry.auction
	auction.CurrentPrice = CalculateCurrentDutchPrice(auction, e.now())
	return auction, nil
}

// ListAuctions returns all auctions, optionally filtered by status, with
// refreshed current prices.
func (e *Engine) ListAuctions(status types.AuctionStatus) []types.LiquidationAuction {
	e.auctions.mu.RLock()
	entries := make([]*auctionEntry, 0, len(e.auctions.entries))
	for _, entry := range e.auctions.entries {
		entries = append(entries, entry)
	}
	e.auctions.mu.RUnlock()

	at := e.now()
	auctions := make([]types.LiquidationAuction, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		auction := entry.auction
		entry.mu.Unlock()
		if status != "" && auction.Status != status {
			continue
		}
		auction.CurrentPrice = CalculateCurrentDutchPrice(auction, at)
		auctions = append(auctions, auction)
	}
	return auctions
}

// PlaceBid attempts to clear an auction. A bid at or above the current ask
// wins atomically: the status flips to completed under the entry lock, so of
// any number of concurrent sufficient bids exactly one succeeds and the rest
// observe a no-longer-active auction.
func (e *Engine) PlaceBid(auctionID, bidder string, amount sdkmath.Int) (types.LiquidationAuction, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return types.LiquidationAuction{}, fmt.Errorf("%w: bid must be positive", ErrInvalidAmount)
	}

	entry, ok := e.auctions.get(auctionID)
	if !ok {
		metrics.AuctionBids.WithLabelValues("not_found").Inc()
		return types.LiquidationAuction{}, fmt.Errorf("%w: %s", ErrAuctionNotFound, auctionID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.auction.Status != types.AuctionActive {
		metrics.AuctionBids.WithLabelValues("not_active").Inc()
		return types.LiquidationAuction{}, fmt.Errorf("%w: %s is %s", ErrAuctionNotActive, auctionID, entry.auction.Status)
	}

	price := CalculateCurrentDutchPrice(entry.auction, e.now())
	if amount.LT(price) {
		metrics.AuctionBids.WithLabelValues("too_low").Inc()
		return types.LiquidationAuction{}, fmt.Errorf("%w: bid %s, current price %s", ErrBidTooLow, amount.String(), price.String())
	}

	// The accepted bid becomes the final price on the record, not the decayed
	// ask it beat: the audit trail must show what the winner committed to pay.
	entry.auction.Status = types.AuctionCompleted
	entry.auction.HighestBidder = bidder
	entry.auction.CurrentPrice = amount
	won := entry.auction

	e.recordAuction(won)
	metrics.AuctionBids.WithLabelValues("won").Inc()
	auctionLogger.Info().
		Str("auctionId", auctionID).
		Str("bidder", bidder).
		Str("bid", amount.String()).
		Str("askAtClear", price.String()).
		Msg("Auction cleared")
	return won, nil
}

// CancelAuction is the administrative escape hatch for an auction sitting at
// the floor with no takers.
func (e *Engine) CancelAuction(auctionID string) (types.LiquidationAuction, error) {
	entry, ok := e.auctions.get(auctionID)
	if !ok {
		return types.LiquidationAuction{}, fmt.Errorf("%w: %s", ErrAuctionNotFound, auctionID)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.auction.Status != types.AuctionActive {
		return types.LiquidationAuction{}, fmt.Errorf("%w: %s is %s", ErrAuctionNotActive, auctionID, entry.auction.Status)
	}

	entry.auction.CurrentPrice = CalculateCurrentDutchPrice(entry.auction, e.now())
	entry.auction.Status = types.AuctionCancelled
	cancelled := entry.auction

	e.recordAuction(cancelled)
	auctionLogger.Info().Str("auctionId", auctionID).Msg("Auction cancelled")
	return cancelled, nil
}

func (e *Engine) recordAuction(auction types.LiquidationAuction) {
	if err := e.recorder.UpsertAuction(auction); err != nil {
		auctionLogger.Error().Err(err).Str("auctionId", auction.ID).Msg("Failed to persist auction record")
	}
}
