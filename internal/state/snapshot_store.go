package state

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/microlend/lqd/internal/types"
)

// SaveScanSnapshot records the outcome of one monitor cycle. Candidates go in
// as JSONB so ad-hoc queries can dig into individual positions later.
func SaveScanSnapshot(snapshot types.ScanSnapshot) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	candidatesJSON, err := json.Marshal(snapshot.Candidates)
	if err != nil {
		return fmt.Errorf("failed to encode candidates: %w", err)
	}

	stmt := `
        INSERT INTO scan_snapshots (
            cycle_number, snapshot_timestamp, loans_scanned,
            at_risk_count, eligible_count, auctions_opened, candidates
        ) VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err = DB.Exec(
		stmt,
		snapshot.CycleNumber, snapshot.Timestamp, snapshot.LoansScanned,
		snapshot.AtRiskCount, snapshot.EligibleCount, snapshot.AuctionsOpened,
		candidatesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan snapshot: %w", err)
	}

	log.Debug().
		Int("cycle", snapshot.CycleNumber).
		Int("eligible", snapshot.EligibleCount).
		Msg("Saved scan snapshot")
	return nil
}

// GetAndIncrementCycle atomically advances the global cycle counter and
// returns the new cycle number.
func GetAndIncrementCycle() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var cycle int
	err := DB.QueryRow(`
        UPDATE cycle_counter
        SET current_cycle = current_cycle + 1, updated_at = CURRENT_TIMESTAMP
        WHERE id = 1
        RETURNING current_cycle;`).Scan(&cycle)
	if err != nil {
		return 0, fmt.Errorf("failed to increment cycle counter: %w", err)
	}
	return cycle, nil
}
