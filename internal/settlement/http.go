package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microlend/lqd/internal/logger"
)

var settlementLogger = logger.GetForComponent("settlement_client")

const requestTimeout = 30 * time.Second

// Client submits settlement transfers to the transaction relayer. No retries:
// money movement is never silently replayed from here.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a settlement client against the relayer endpoint.
func NewClient(baseURL string) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("settlement base URL cannot be empty")
	}
	return &Client{
		http:    &http.Client{Timeout: requestTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Transfer submits one transfer and waits for the relayer's confirmation.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (TransferReceipt, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return TransferReceipt{}, fmt.Errorf("%w: failed to encode request: %w", ErrTransferFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(payload))
	if err != nil {
		return TransferReceipt{}, fmt.Errorf("%w: failed to build request: %w", ErrTransferFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return TransferReceipt{}, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TransferReceipt{}, fmt.Errorf("%w: failed to read response: %w", ErrTransferFailed, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		settlementLogger.Error().
			Int("status", resp.StatusCode).
			Str("loanId", req.LoanID).
			Str("body", string(body)).
			Msg("Relayer rejected transfer")
		return TransferReceipt{}, fmt.Errorf("%w: relayer returned status %d", ErrTransferFailed, resp.StatusCode)
	}

	var receipt TransferReceipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return TransferReceipt{}, fmt.Errorf("%w: failed to parse receipt: %w", ErrTransferFailed, err)
	}
	if strings.TrimSpace(receipt.TxRef) == "" {
		return TransferReceipt{}, fmt.Errorf("%w: relayer receipt missing tx ref", ErrTransferFailed)
	}
	if receipt.Timestamp.IsZero() {
		receipt.Timestamp = time.Now()
	}

	settlementLogger.Info().
		Str("loanId", req.LoanID).
		Str("liquidator", req.Liquidator).
		Str("txRef", receipt.TxRef).
		Str("debtAmount", req.DebtAmount.String()).
		Str("collateralAmount", req.CollateralAmount.String()).
		Msg("Settlement transfer confirmed")
	return receipt, nil
}
