package state

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/microlend/lqd/internal/types"
)

// AuctionStore adapts the package-level auction functions to the liquidation
// engine's AuctionRecorder interface.
type AuctionStore struct{}

func (AuctionStore) UpsertAuction(auction types.LiquidationAuction) error {
	return UpsertLiquidationAuction(auction)
}

// UpsertLiquidationAuction mirrors one auction state transition. The live
// state machine is in memory; this table is the audit trail.
func UpsertLiquidationAuction(auction types.LiquidationAuction) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
        INSERT INTO liquidation_auctions (
            auction_id, loan_id, collateral_amount, starting_price, current_price, min_price,
            start_time, end_time, highest_bidder, status, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP)
        ON CONFLICT (auction_id) DO UPDATE SET
            current_price = EXCLUDED.current_price,
            highest_bidder = EXCLUDED.highest_bidder,
            status = EXCLUDED.status,
            updated_at = CURRENT_TIMESTAMP;`

	_, err := DB.Exec(
		stmt,
		auction.ID, auction.LoanID,
		auction.CollateralAmount.String(), auction.StartingPrice.String(),
		auction.CurrentPrice.String(), auction.MinPrice.String(),
		auction.StartTime, auction.EndTime,
		auction.HighestBidder, string(auction.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert auction %s: %w", auction.ID, err)
	}

	log.Debug().
		Str("auction_id", auction.ID).
		Str("status", string(auction.Status)).
		Msg("Recorded auction state")
	return nil
}

// GetAuctionRecords returns the most recently updated auction records.
func GetAuctionRecords(limit int) ([]types.LiquidationAuction, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
        SELECT auction_id, loan_id, collateral_amount::TEXT, starting_price::TEXT,
               current_price::TEXT, min_price::TEXT, start_time, end_time,
               COALESCE(highest_bidder, ''), status
        FROM liquidation_auctions
        ORDER BY updated_at DESC
        LIMIT $1;`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query auction records: %w", err)
	}
	defer rows.Close()

	auctions := make([]types.LiquidationAuction, 0, limit)
	for rows.Next() {
		var a types.LiquidationAuction
		var collateralAmount, startingPrice, currentPrice, minPrice, status string
		if err := rows.Scan(
			&a.ID, &a.LoanID, &collateralAmount, &startingPrice,
			&currentPrice, &minPrice, &a.StartTime, &a.EndTime,
			&a.HighestBidder, &status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan auction row: %w", err)
		}
		var ok bool
		if a.CollateralAmount, ok = sdkmath.NewIntFromString(collateralAmount); !ok {
			return nil, fmt.Errorf("failed to parse collateral amount %q for auction %s", collateralAmount, a.ID)
		}
		if a.StartingPrice, ok = sdkmath.NewIntFromString(startingPrice); !ok {
			return nil, fmt.Errorf("failed to parse starting price %q for auction %s", startingPrice, a.ID)
		}
		if a.CurrentPrice, ok = sdkmath.NewIntFromString(currentPrice); !ok {
			return nil, fmt.Errorf("failed to parse current price %q for auction %s", currentPrice, a.ID)
		}
		if a.MinPrice, ok = sdkmath.NewIntFromString(minPrice); !ok {
			return nil, fmt.Errorf("failed to parse min price %q for auction %s", minPrice, a.ID)
		}
		a.Status = types.AuctionStatus(status)
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating auction records: %w", err)
	}
	return auctions, nil
}
