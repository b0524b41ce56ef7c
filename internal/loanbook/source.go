/*

Loan book boundary.

The loan CRUD layer and its persistence belong to the platform API; the engine
only needs a read view of active loans with their posted collateral and
outstanding debt. Debt amounts arrive as base-unit integers in the wei
convention (18 decimals).

*/

package loanbook

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/microlend/lqd/internal/types"
)

var ErrLoanNotFound = errors.New("loan not found")

// Loan is the engine's read view of one active loan.
type Loan struct {
	ID              string                    `json:"id"`
	Borrower        string                    `json:"borrower"`
	Holdings        []types.CollateralHolding `json:"holdings"`
	DebtAmount      sdkmath.Int               `json:"debt_amount"` // base units, 18 decimals
	DebtAsset       string                    `json:"debt_asset"`
	CollateralAsset string                    `json:"collateral_asset"`
}

// Source abstracts where active loans come from, so tests and simulations can
// substitute an in-memory book for the platform API.
type Source interface {
	// GetActiveLoans returns all loans currently in active (funded, unrepaid) state.
	GetActiveLoans(ctx context.Context) ([]Loan, error)

	// GetLoan returns a single active loan by ID, or ErrLoanNotFound.
	GetLoan(ctx context.Context, loanID string) (Loan, error)
}
