package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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
		TotalLiquidations:     0,
		TotalDebtRepaid:       sdkmath.ZeroInt(),
		TotalCollateralSeized: sdkmath.ZeroInt(),
		TotalProtocolFees:     sdkmath.ZeroInt(),
	}, nil
}

type nopRecorder struct{}

func (nopRecorder) UpsertAuction(types.LiquidationAuction) error { return nil }

func newTestServer(t *testing.T, loans ...loanbook.Loan) *WebServer {
	t.Helper()

	reg := registry.NewFromTable(map[string]config.CollateralTokenInfo{
		tethAddress: {Symbol: "TETH", Name: "Test Ether", Decimals: 18, MaxLTV: 80, LiquidationThreshold: 150},
	})
	prices := &oracle.Static{Quotes: map[string]types.PriceQuote{
		"TETH": oracle.NewStaticQuote("TETH", sdkmath.LegacyNewDec(2000), sdkmath.LegacyOneDec()),
	}}

	holder, err := types.NewConfigHolder(config.DefaultLiquidationConfig)
	require.NoError(t, err)

	val, err := valuation.NewEngine(reg, prices, holder)
	require.NoError(t, err)

	book := loanbook.NewMemory(loans...)
	engine, err := liquidation.NewEngine(book, val, nopTransferor{}, nopHistory{}, nopRecorder{}, holder)
	require.NoError(t, err)

	return NewWebServer("0", engine, val, book)
}

func tethLoan(id string, collateralETH, debtETH int64) loanbook.Loan {
	return loanbook.Loan{
		ID:       id,
		Borrower: "0xborrower",
		Holdings: []types.CollateralHolding{
			{TokenAddress: tethAddress, Amount: sdkmath.NewIntWithDecimal(collateralETH, 18)},
		},
		DebtAmount:      sdkmath.NewIntWithDecimal(debtETH, 18),
		DebtAsset:       "ETH",
		CollateralAsset: "TETH",
	}
}

func doRequest(ws *WebServer, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	ws.router.ServeHTTP(recorder, req)
	return recorder
}

func TestGetCandidatesEndpoint(t *testing.T) {
	ws := newTestServer(t,
		tethLoan("underwater", 700, 1000),
		tethLoan("healthy", 3000, 1000),
	)

	resp := doRequest(ws, http.MethodGet, "/api/candidates", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var payload struct {
		Count      int                          `json:"count"`
		Candidates []types.LiquidationCandidate `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	require.Equal(t, 1, payload.Count)
	assert.Equal(t, "underwater", payload.Candidates[0].LoanID)
}

func TestEligibilityEndpoint(t *testing.T) {
	ws := newTestServer(t, tethLoan("at-risk", 1400, 1000))

	resp := doRequest(ws, http.MethodGet, "/api/loans/at-risk/eligibility", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var eligibility types.Eligibility
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &eligibility))
	assert.False(t, eligibility.IsEligible)
	assert.Contains(t, eligibility.Reason, "not below 1")
	assert.True(t, eligibility.HealthFactor.Equal(sdkmath.LegacyNewDecWithPrec(14, 1)))
}

func TestPreviewLiquidationEndpoint(t *testing.T) {
	ws := newTestServer(t, tethLoan("loan-1", 1400, 1000))

	resp := doRequest(ws, http.MethodPost, "/api/liquidations/preview",
		`{"loan_id": "loan-1", "debt_amount": "500000000000000000000"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var amounts types.LiquidationAmounts
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &amounts))
	assert.True(t, amounts.BaseCollateral.Equal(sdkmath.NewIntWithDecimal(700, 18)))
	assert.True(t, amounts.NetCollateral.Equal(sdkmath.NewIntWithDecimal(728, 18)))
}

func TestExecuteLiquidationEndpoint(t *testing.T) {
	ws := newTestServer(t, tethLoan("loan-1", 700, 1000))

	resp := doRequest(ws, http.MethodPost, "/api/liquidations",
		`{"loan_id": "loan-1", "debt_amount": "100000000000000000000", "liquidator": "0xliq"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	var result types.LiquidationResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.Equal(t, "tx-test", result.SettlementRef)
}

func TestExecuteLiquidationIneligibleIncludesHealthFactor(t *testing.T) {
	ws := newTestServer(t, tethLoan("loan-1", 1400, 1000))

	resp := doRequest(ws, http.MethodPost, "/api/liquidations",
		`{"loan_id": "loan-1", "debt_amount": "100000000000000000000", "liquidator": "0xliq"}`)
	require.Equal(t, http.StatusConflict, resp.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, true, payload["error"])
	assert.Contains(t, payload, "health_factor")
}

func TestExecuteLiquidationValidation(t *testing.T) {
	ws := newTestServer(t, tethLoan("loan-1", 700, 1000))

	resp := doRequest(ws, http.MethodPost, "/api/liquidations",
		`{"loan_id": "loan-1", "debt_amount": "oops", "liquidator": "0xliq"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(ws, http.MethodPost, "/api/liquidations",
		`{"loan_id": "loan-1", "debt_amount": "1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(ws, http.MethodPost, "/api/liquidations",
		`{"loan_id": "missing", "debt_amount": "1", "liquidator": "0xliq"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAuctionLifecycleEndpoints(t *testing.T) {
	ws := newTestServer(t, tethLoan("loan-1", 700, 1000))

	resp := doRequest(ws, http.MethodPost, "/api/auctions", `{"loan_id": "loan-1"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	var auction types.LiquidationAuction
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &auction))
	assert.Equal(t, types.AuctionActive, auction.Status)

	// Duplicate auction for the same loan is refused.
	resp = doRequest(ws, http.MethodPost, "/api/auctions", `{"loan_id": "loan-1"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)

	// A bid below the current ask reports the live price.
	resp = doRequest(ws, http.MethodPost, "/api/auctions/"+auction.ID+"/bids",
		`{"bidder": "0xbidder", "amount": "1"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, resp.Body.String(), "current price")

	// A bid at the starting price clears immediately.
	resp = doRequest(ws, http.MethodPost, "/api/auctions/"+auction.ID+"/bids",
		`{"bidder": "0xbidder", "amount": "`+auction.StartingPrice.String()+`"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var won types.LiquidationAuction
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &won))
	assert.Equal(t, types.AuctionCompleted, won.Status)
	assert.Equal(t, "0xbidder", won.HighestBidder)

	resp = doRequest(ws, http.MethodPost, "/api/auctions/"+auction.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestAuctionHistoryEndpoint(t *testing.T) {
	ws := newTestServer(t)

	// The history route must win over the {id} route and validate its input.
	resp := doRequest(ws, http.MethodGet, "/api/auctions/history?limit=nope", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// Without a database the audit trail is unavailable.
	resp = doRequest(ws, http.MethodGet, "/api/auctions/history", "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestGetConfigEndpoint(t *testing.T) {
	ws := newTestServer(t)

	resp := doRequest(ws, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var cfg types.LiquidationConfig
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cfg))
	assert.Equal(t, 150.0, cfg.LiquidationThreshold)
}

func TestUpdateConfigEndpointRejectsInvalid(t *testing.T) {
	ws := newTestServer(t)

	bad := config.DefaultLiquidationConfig
	bad.MaxLiquidationRatio = 0
	body, err := json.Marshal(bad)
	require.NoError(t, err)

	resp := doRequest(ws, http.MethodPut, "/api/config", string(body))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestValidateCollateralEndpoint(t *testing.T) {
	ws := newTestServer(t)

	resp := doRequest(ws, http.MethodPost, "/api/collateral/validate",
		`{"holdings": [{"token_address": "0xdeadbeef", "amount": "1000"}], "loan_amount": "1000"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var validation types.CollateralValidation
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &validation))
	assert.False(t, validation.IsValid)
	assert.Contains(t, validation.Message, "unsupported collateral token")
}
