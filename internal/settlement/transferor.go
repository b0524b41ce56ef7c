/*

Settlement/transfer collaborator boundary.

The engine never moves funds itself: it hands fully-resolved integer amounts
to this collaborator and treats any failure as a hard stop. No liquidation
state is committed if the transfer fails, and the engine performs no retries;
retry policy belongs to the relayer.

*/

package settlement

import (
	"context"
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
)

var ErrTransferFailed = errors.New("settlement transfer failed")

// TransferRequest describes one liquidation settlement: the liquidator repays
// DebtAmount of the loan's debt and receives CollateralAmount of collateral,
// while FeeAmount goes to the protocol treasury.
type TransferRequest struct {
	LoanID            string      `json:"loan_id"`
	Liquidator        string      `json:"liquidator"`
	DebtAmount        sdkmath.Int `json:"debt_amount"`
	CollateralAmount  sdkmath.Int `json:"collateral_amount"`
	FeeAmount         sdkmath.Int `json:"fee_amount"`
	ReceiveCollateral bool        `json:"receive_collateral"`
}

// TransferReceipt is the relayer's confirmation of a settled transfer.
type TransferReceipt struct {
	TxRef     string    `json:"tx_ref"`
	Timestamp time.Time `json:"timestamp"`
}

// Transferor is the opaque capability to move funds and collateral.
type Transferor interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferReceipt, error)
}
