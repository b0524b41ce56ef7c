/*

Loan book monitor.

Scans the loan book on a fixed interval, publishes at-risk/eligible gauges,
persists a snapshot per cycle, and auto-routes loans to Dutch auctions once
they have stayed eligible past the configured grace period. Direct liquidation
through the API has no grace period; the delay only gates the automatic path.

*/

package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/microlend/lqd/internal/liquidation"
	"github.com/microlend/lqd/internal/loanbook"
	"github.com/microlend/lqd/internal/logger"
	"github.com/microlend/lqd/internal/metrics"
	"github.com/microlend/lqd/internal/state"
	"github.com/microlend/lqd/internal/types"
	"github.com/microlend/lqd/internal/valuation"
)

// Monitor drives the periodic loan book scan.
type Monitor struct {
	logger    zerolog.Logger
	engine    *liquidation.Engine
	loans     loanbook.Source
	valuation *valuation.Engine
	cfg       *types.ConfigHolder

	// firstEligible tracks when each loan was first seen eligible; the grace
	// clock resets whenever a loan drops off the candidate list.
	firstEligible map[string]time.Time
	now           func() time.Time
}

// New creates a monitor over the given engines.
func New(engine *liquidation.Engine, loans loanbook.Source, val *valuation.Engine, cfg *types.ConfigHolder) (*Monitor, error) {
	if engine == nil {
		return nil, errors.New("liquidation engine cannot be nil")
	}
	if loans == nil {
		return nil, errors.New("loan source cannot be nil")
	}
	if val == nil {
		return nil, errors.New("valuation engine cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config holder cannot be nil")
	}
	return &Monitor{
		logger:        logger.GetForComponent("loan_monitor"),
		engine:        engine,
		loans:         loans,
		valuation:     val,
		cfg:           cfg,
		firstEligible: make(map[string]time.Time),
		now:           time.Now,
	}, nil
}

// SetClock substitutes the monitor's time source for tests.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// RunLoop starts the scan loop with the specified interval.
func (m *Monitor) RunLoop(ctx context.Context, interval time.Duration) {
	m.logger.Info().Dur("interval", interval).Msg("Starting loan monitor loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	if err := m.RunCycle(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Monitor cycle failed")
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Monitor loop stopped due to context cancellation")
			return
		case <-ticker.C:
			if err := m.RunCycle(ctx); err != nil {
				m.logger.Error().Err(err).Msg("Monitor cycle failed")
			}
		}
	}
}

// RunCycle performs one scan of the loan book.
func (m *Monitor) RunCycle(ctx context.Context) error {
	cycle, err := state.GetAndIncrementCycle()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Cycle counter unavailable, continuing without persistence")
	}

	loans, err := m.loans.GetActiveLoans(ctx)
	if err != nil {
		return fmt.Errorf("loan book scan failed: %w", err)
	}

	atRisk := 0
	for _, loan := range loans {
		position, err := m.valuation.GetPosition(ctx, loan.ID, loan.Borrower, loan.Holdings, loan.DebtAmount)
		if err != nil {
			m.logger.Error().Err(err).Str("loanId", loan.ID).Msg("Skipping loan: valuation failed")
			continue
		}
		if position.IsAtRisk {
			atRisk++
		}
	}

	candidates, err := m.engine.GetCandidates(ctx)
	if err != nil {
		return fmt.Errorf("candidate scan failed: %w", err)
	}

	cfg := m.cfg.Get()
	now := m.now()

	auctionsOpened := 0
	seen := make(map[string]bool, len(candidates))
	for _, candidate := range candidates {
		seen[candidate.LoanID] = true

		first, tracked := m.firstEligible[candidate.LoanID]
		if !tracked {
			m.firstEligible[candidate.LoanID] = now
			continue
		}
		if now.Sub(first) < cfg.GracePeriod() {
			continue
		}

		auction, err := m.engine.StartDutchAuction(ctx, candidate.LoanID)
		if err != nil {
			if errors.Is(err, liquidation.ErrAuctionExists) {
				continue
			}
			m.logger.Error().Err(err).Str("loanId", candidate.LoanID).Msg("Failed to open auction for overdue loan")
			continue
		}
		auctionsOpened++
		m.logger.Info().
			Str("loanId", candidate.LoanID).
			Str("auctionId", auction.ID).
			Time("eligibleSince", first).
			Msg("Grace period elapsed, auction opened")
	}

	// Drop tracking for loans that recovered or closed.
	for loanID := range m.firstEligible {
		if !seen[loanID] {
			delete(m.firstEligible, loanID)
		}
	}

	metrics.EligibleLoans.Set(float64(len(candidates)))
	metrics.AtRiskLoans.Set(float64(atRisk))

	snapshot := types.ScanSnapshot{
		CycleNumber:    cycle,
		Timestamp:      now,
		LoansScanned:   len(loans),
		AtRiskCount:    atRisk,
		EligibleCount:  len(candidates),
		AuctionsOpened: auctionsOpened,
		Candidates:     candidates,
	}
	if err := state.SaveScanSnapshot(snapshot); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to persist scan snapshot")
	}

	m.logger.Info().
		Int("cycle", cycle).
		Int("eligible", len(candidates)).
		Int("auctionsOpened", auctionsOpened).
		Msg("Monitor cycle completed")
	return nil
}
