package state

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/microlend/lqd/internal/types"
)

// HistoryStore adapts the package-level result functions to the liquidation
// engine's HistoryStore interface.
type HistoryStore struct{}

func (HistoryStore) SaveResult(result types.LiquidationResult) error {
	return SaveLiquidationResult(result)
}

func (HistoryStore) Stats() (types.ProtocolStats, error) {
	return GetProtocolStats()
}

// SaveLiquidationResult appends one executed liquidation to the history log.
// The settlement_ref uniqueness constraint makes accidental double-writes of
// the same settlement a loud error instead of a silent double count.
func SaveLiquidationResult(result types.LiquidationResult) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
        INSERT INTO liquidation_results (
            loan_id, liquidator, debt_repaid, collateral_received, bonus, protocol_fee,
            settlement_ref, executed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := DB.Exec(
		stmt,
		result.LoanID, result.Liquidator,
		result.DebtRepaid.String(), result.CollateralReceived.String(),
		result.Bonus.String(), result.ProtocolFee.String(),
		result.SettlementRef, result.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert liquidation result: %w", err)
	}

	log.Debug().
		Str("loan_id", result.LoanID).
		Str("settlement_ref", result.SettlementRef).
		Msg("Saved liquidation result")
	return nil
}

// GetProtocolStats aggregates the full liquidation history. Sums come back as
// decimal strings so 256-bit totals survive the round trip.
func GetProtocolStats() (types.ProtocolStats, error) {
	if DB == nil {
		return types.ProtocolStats{}, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT
            COUNT(*),
            COALESCE(SUM(debt_repaid), 0)::TEXT,
            COALESCE(SUM(collateral_received), 0)::TEXT,
            COALESCE(SUM(protocol_fee), 0)::TEXT
        FROM liquidation_results;`

	var total int64
	var debtRepaid, collateralSeized, protocolFees string
	err := DB.QueryRow(query).Scan(&total, &debtRepaid, &collateralSeized, &protocolFees)
	if err != nil {
		return types.ProtocolStats{}, fmt.Errorf("failed to aggregate liquidation stats: %w", err)
	}

	stats := types.ProtocolStats{TotalLiquidations: total}
	var ok bool
	if stats.TotalDebtRepaid, ok = sdkmath.NewIntFromString(debtRepaid); !ok {
		return types.ProtocolStats{}, fmt.Errorf("failed to parse total debt repaid %q", debtRepaid)
	}
	if stats.TotalCollateralSeized, ok = sdkmath.NewIntFromString(collateralSeized); !ok {
		return types.ProtocolStats{}, fmt.Errorf("failed to parse total collateral seized %q", collateralSeized)
	}
	if stats.TotalProtocolFees, ok = sdkmath.NewIntFromString(protocolFees); !ok {
		return types.ProtocolStats{}, fmt.Errorf("failed to parse total protocol fees %q", protocolFees)
	}
	return stats, nil
}

// GetRecentLiquidations returns the most recent executed liquidations.
func GetRecentLiquidations(limit int) ([]types.LiquidationResult, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
        SELECT loan_id, liquidator, debt_repaid::TEXT, collateral_received::TEXT,
               bonus::TEXT, protocol_fee::TEXT, settlement_ref, executed_at
        FROM liquidation_results
        ORDER BY executed_at DESC
        LIMIT $1;`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent liquidations: %w", err)
	}
	defer rows.Close()

	results := make([]types.LiquidationResult, 0, limit)
	for rows.Next() {
		var r types.LiquidationResult
		var debtRepaid, collateralReceived, bonus, protocolFee string
		if err := rows.Scan(
			&r.LoanID, &r.Liquidator, &debtRepaid, &collateralReceived,
			&bonus, &protocolFee, &r.SettlementRef, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan liquidation result row: %w", err)
		}
		var ok bool
		if r.DebtRepaid, ok = sdkmath.NewIntFromString(debtRepaid); !ok {
			return nil, fmt.Errorf("failed to parse debt repaid %q for loan %s", debtRepaid, r.LoanID)
		}
		if r.CollateralReceived, ok = sdkmath.NewIntFromString(collateralReceived); !ok {
			return nil, fmt.Errorf("failed to parse collateral received %q for loan %s", collateralReceived, r.LoanID)
		}
		if r.Bonus, ok = sdkmath.NewIntFromString(bonus); !ok {
			return nil, fmt.Errorf("failed to parse bonus %q for loan %s", bonus, r.LoanID)
		}
		if r.ProtocolFee, ok = sdkmath.NewIntFromString(protocolFee); !ok {
			return nil, fmt.Errorf("failed to parse protocol fee %q for loan %s", protocolFee, r.LoanID)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating liquidation results: %w", err)
	}
	return results, nil
}
