package loanbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/microlend/lqd/internal/logger"
	"github.com/microlend/lqd/internal/types"
)

var loanLogger = logger.GetForComponent("loanbook_client")

var ErrInvalidLoanData = errors.New("invalid loan data received")

const (
	maxFetchAttempts = 3
	requestTimeout   = 15 * time.Second
)

// wireLoan is the platform API's loan representation. Amounts travel as
// decimal strings to survive JSON number precision limits.
type wireLoan struct {
	ID         string `json:"id"`
	Borrower   string `json:"borrower"`
	Collateral []struct {
		TokenAddress string `json:"token_address"`
		Amount       string `json:"amount"`
	} `json:"collateral"`
	DebtAmount      string `json:"debt_amount"`
	DebtAsset       string `json:"debt_asset"`
	CollateralAsset string `json:"collateral_asset"`
}

// Client fetches active loans from the platform API.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a loan book client against the platform API endpoint.
func NewClient(baseURL string) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("loan book base URL cannot be empty")
	}
	return &Client{
		http:    &http.Client{Timeout: requestTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// GetActiveLoans returns all active loans, retrying transient failures.
func (c *Client) GetActiveLoans(ctx context.Context) ([]Loan, error) {
	body, err := c.get(ctx, c.baseURL+"/v1/loans?status=active")
	if err != nil {
		return nil, fmt.Errorf("active loans fetch failed: %w", err)
	}

	var wire struct {
		Loans []wireLoan `json:"loans"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse active loans response: %w", err)
	}

	loans := make([]Loan, 0, len(wire.Loans))
	for i, raw := range wire.Loans {
		loan, err := decodeLoan(raw)
		if err != nil {
			loanLogger.Error().Err(err).Int("index", i).Str("loanId", raw.ID).Msg("Invalid loan entry")
			return nil, fmt.Errorf("invalid loan entry %d: %w", i, err)
		}
		loans = append(loans, loan)
	}

	loanLogger.Debug().Int("loanCount", len(loans)).Msg("Fetched active loans")
	return loans, nil
}

// GetLoan returns one active loan by ID.
func (c *Client) GetLoan(ctx context.Context, loanID string) (Loan, error) {
	if strings.TrimSpace(loanID) == "" {
		return Loan{}, fmt.Errorf("%w: empty loan id", ErrLoanNotFound)
	}

	body, err := c.get(ctx, c.baseURL+"/v1/loans/"+url.PathEscape(loanID))
	if err != nil {
		if errors.Is(err, errNotFound) {
			return Loan{}, fmt.Errorf("%w: %s", ErrLoanNotFound, loanID)
		}
		return Loan{}, fmt.Errorf("loan fetch failed for %s: %w", loanID, err)
	}

	var raw wireLoan
	if err := json.Unmarshal(body, &raw); err != nil {
		return Loan{}, fmt.Errorf("failed to parse loan response for %s: %w", loanID, err)
	}

	loan, err := decodeLoan(raw)
	if err != nil {
		return Loan{}, fmt.Errorf("invalid loan %s: %w", loanID, err)
	}
	return loan, nil
}

var errNotFound = errors.New("not found")

func (c *Client) get(ctx context.Context, requestURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed on attempt %d: %w", attempt, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, errNotFound
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("platform API returned status %d", resp.StatusCode)
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}
		return body, nil
	}
	return nil, lastErr
}

// decodeLoan validates and converts a wire loan into the internal type.
func decodeLoan(raw wireLoan) (Loan, error) {
	if strings.TrimSpace(raw.ID) == "" {
		return Loan{}, fmt.Errorf("%w: loan id is empty", ErrInvalidLoanData)
	}
	if strings.TrimSpace(raw.Borrower) == "" {
		return Loan{}, fmt.Errorf("%w: borrower is empty", ErrInvalidLoanData)
	}

	debt, ok := sdkmath.NewIntFromString(raw.DebtAmount)
	if !ok || debt.IsNegative() {
		return Loan{}, fmt.Errorf("%w: bad debt amount %q", ErrInvalidLoanData, raw.DebtAmount)
	}

	holdings := make([]types.CollateralHolding, 0, len(raw.Collateral))
	for _, h := range raw.Collateral {
		amount, ok := sdkmath.NewIntFromString(h.Amount)
		if !ok || amount.IsNegative() {
			return Loan{}, fmt.Errorf("%w: bad collateral amount %q for token %s",
				ErrInvalidLoanData, h.Amount, h.TokenAddress)
		}
		holdings = append(holdings, types.CollateralHolding{
			TokenAddress: h.TokenAddress,
			Amount:       amount,
		})
	}

	return Loan{
		ID:              raw.ID,
		Borrower:        raw.Borrower,
		Holdings:        holdings,
		DebtAmount:      debt,
		DebtAsset:       raw.DebtAsset,
		CollateralAsset: raw.CollateralAsset,
	}, nil
}
