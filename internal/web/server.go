package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/microlend/lqd/internal/liquidation"
	"github.com/microlend/lqd/internal/loanbook"
	"github.com/microlend/lqd/internal/logger"
	"github.com/microlend/lqd/internal/state"
	"github.com/microlend/lqd/internal/types"
	"github.com/microlend/lqd/internal/valuation"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the liquidation engine over HTTP.
type WebServer struct {
	router    *mux.Router
	port      string
	engine    *liquidation.Engine
	valuation *valuation.Engine
	loans     loanbook.Source
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, engine *liquidation.Engine, val *valuation.Engine, loans loanbook.Source) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		engine:    engine,
		valuation: val,
		loans:     loans,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/candidates", ws.handleGetCandidates).Methods("GET")
	api.HandleFunc("/loans/{id}/eligibility", ws.handleGetEligibility).Methods("GET")
	api.HandleFunc("/loans/{id}/position", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/collateral/validate", ws.handleValidateCollateral).Methods("POST")
	api.HandleFunc("/liquidations", ws.handleExecuteLiquidation).Methods("POST")
	api.HandleFunc("/liquidations/preview", ws.handlePreviewLiquidation).Methods("POST")
	api.HandleFunc("/liquidations/recent", ws.handleGetRecentLiquidations).Methods("GET")
	api.HandleFunc("/auctions", ws.handleStartAuction).Methods("POST")
	api.HandleFunc("/auctions", ws.handleListAuctions).Methods("GET")
	api.HandleFunc("/auctions/history", ws.handleGetAuctionHistory).Methods("GET")
	api.HandleFunc("/auctions/{id}", ws.handleGetAuction).Methods("GET")
	api.HandleFunc("/auctions/{id}/bids", ws.handlePlaceBid).Methods("POST")
	api.HandleFunc("/auctions/{id}/cancel", ws.handleCancelAuction).Methods("POST")
	api.HandleFunc("/stats", ws.handleGetStats).Methods("GET")
	api.HandleFunc("/config", ws.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", ws.handleUpdateConfig).Methods("PUT")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := state.TestDBConnection() == nil

	status := "healthy"
	statusCode := http.StatusOK
	if !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":    status,
		"database":  dbHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// handleGetCandidates returns every loan currently eligible for liquidation.
func (ws *WebServer) handleGetCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := ws.engine.GetCandidates(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Candidate scan failed")
		ws.writeErrorResponse(w, http.StatusBadGateway, "failed to scan loan book")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"count":      len(candidates),
		"candidates": candidates,
	})
}

func (ws *WebServer) handleGetEligibility(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["id"]
	eligibility := ws.engine.CheckEligibility(r.Context(), loanID)
	ws.writeJSONResponse(w, http.StatusOK, eligibility)
}

func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["id"]
	loan, err := ws.loans.GetLoan(r.Context(), loanID)
	if err != nil {
		if errors.Is(err, loanbook.ErrLoanNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "loan not found")
			return
		}
		ws.writeErrorResponse(w, http.StatusBadGateway, "loan lookup failed")
		return
	}

	position, err := ws.valuation.GetPosition(r.Context(), loan.ID, loan.Borrower, loan.Holdings, loan.DebtAmount)
	if err != nil {
		webLogger.Error().Err(err).Str("loanId", loanID).Msg("Position valuation failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "valuation failed")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, position)
}

type validateCollateralRequest struct {
	Holdings   []types.CollateralHolding `json:"holdings"`
	LoanAmount string                    `json:"loan_amount"`
}

func (ws *WebServer) handleValidateCollateral(w http.ResponseWriter, r *http.Request) {
	var req validateCollateralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	loanAmount, ok := sdkmath.NewIntFromString(req.LoanAmount)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "loan_amount must be a base-10 integer string")
		return
	}

	validation, err := ws.valuation.ValidateCollateral(r.Context(), req.Holdings, loanAmount)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, validation)
}

type liquidationRequest struct {
	LoanID            string `json:"loan_id"`
	DebtAmount        string `json:"debt_amount"`
	Liquidator        string `json:"liquidator"`
	ReceiveCollateral bool   `json:"receive_collateral"`
}

func (ws *WebServer) decodeLiquidationRequest(w http.ResponseWriter, r *http.Request) (liquidation.ExecuteRequest, bool) {
	var req liquidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return liquidation.ExecuteRequest{}, false
	}
	if req.LoanID == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "loan_id is required")
		return liquidation.ExecuteRequest{}, false
	}
	debtAmount, ok := sdkmath.NewIntFromString(req.DebtAmount)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "debt_amount must be a base-10 integer string")
		return liquidation.ExecuteRequest{}, false
	}
	return liquidation.ExecuteRequest{
		LoanID:            req.LoanID,
		DebtAmount:        debtAmount,
		Liquidator:        req.Liquidator,
		ReceiveCollateral: req.ReceiveCollateral,
	}, true
}

// handlePreviewLiquidation computes the settlement terms without executing.
func (ws *WebServer) handlePreviewLiquidation(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeLiquidationRequest(w, r)
	if !ok {
		return
	}

	amounts, err := ws.engine.CalculateLiquidationAmount(r.Context(), req.LoanID, req.DebtAmount)
	if err != nil {
		ws.writeLiquidationError(w, r, req.LoanID, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, amounts)
}

func (ws *WebServer) handleExecuteLiquidation(w http.ResponseWriter, r *http.Request) {
	req, ok := ws.decodeLiquidationRequest(w, r)
	if !ok {
		return
	}
	if req.Liquidator == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "liquidator is required")
		return
	}

	result, err := ws.engine.ExecuteLiquidation(r.Context(), req)
	if err != nil {
		ws.writeLiquidationError(w, r, req.LoanID, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, result)
}

// writeLiquidationError maps engine errors onto HTTP status codes. Ineligible
// loans get the live health factor in the payload so callers can see how far
// from the bar the position sits.
func (ws *WebServer) writeLiquidationError(w http.ResponseWriter, r *http.Request, loanID string, err error) {
	switch {
	case errors.Is(err, liquidation.ErrLoanNotFound):
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, liquidation.ErrNotEligible):
		eligibility := ws.engine.CheckEligibility(r.Context(), loanID)
		ws.writeJSONResponse(w, http.StatusConflict, map[string]interface{}{
			"error":         true,
			"message":       err.Error(),
			"health_factor": eligibility.HealthFactor,
			"timestamp":     time.Now().UTC(),
		})
	case errors.Is(err, liquidation.ErrInvalidAmount):
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, liquidation.ErrSettlementFailed):
		ws.writeErrorResponse(w, http.StatusBadGateway, err.Error())
	default:
		webLogger.Error().Err(err).Str("loanId", loanID).Msg("Liquidation request failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "liquidation failed")
	}
}

func (ws *WebServer) handleGetRecentLiquidations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	results, err := state.GetRecentLiquidations(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to load recent liquidations")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "failed to load liquidation history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

type startAuctionRequest struct {
	LoanID string `json:"loan_id"`
}

func (ws *WebServer) handleStartAuction(w http.ResponseWriter, r *http.Request) {
	var req startAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LoanID == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "loan_id is required")
		return
	}

	auction, err := ws.engine.StartDutchAuction(r.Context(), req.LoanID)
	if err != nil {
		switch {
		case errors.Is(err, liquidation.ErrAuctionExists):
			ws.writeErrorResponse(w, http.StatusConflict, err.Error())
		default:
			ws.writeLiquidationError(w, r, req.LoanID, err)
		}
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, auction)
}

func (ws *WebServer) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	status := types.AuctionStatus(r.URL.Query().Get("status"))
	auctions := ws.engine.ListAuctions(status)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"count":    len(auctions),
		"auctions": auctions,
	})
}

// handleGetAuctionHistory serves the persisted audit trail, which outlives the
// in-memory book across restarts and includes completed and cancelled auctions.
func (ws *WebServer) handleGetAuctionHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := state.GetAuctionRecords(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to load auction history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "failed to load auction history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"count":    len(records),
		"auctions": records,
	})
}

func (ws *WebServer) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]
	auction, err := ws.engine.GetAuction(auctionID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, auction)
}

type bidRequest struct {
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
}

func (ws *WebServer) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Bidder == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "bidder is required")
		return
	}
	amount, ok := sdkmath.NewIntFromString(req.Amount)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "amount must be a base-10 integer string")
		return
	}

	auction, err := ws.engine.PlaceBid(auctionID, req.Bidder, amount)
	if err != nil {
		switch {
		case errors.Is(err, liquidation.ErrAuctionNotFound):
			ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		case errors.Is(err, liquidation.ErrAuctionNotActive):
			ws.writeErrorResponse(w, http.StatusConflict, err.Error())
		case errors.Is(err, liquidation.ErrBidTooLow):
			// The rejection message carries the live ask so bidders can retry
			// without a second round trip.
			ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		default:
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, auction)
}

func (ws *WebServer) handleCancelAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]
	auction, err := ws.engine.CancelAuction(auctionID)
	if err != nil {
		switch {
		case errors.Is(err, liquidation.ErrAuctionNotFound):
			ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		default:
			ws.writeErrorResponse(w, http.StatusConflict, err.Error())
		}
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, auction)
}

func (ws *WebServer) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := ws.engine.GetProtocolStats()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to aggregate protocol stats")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "failed to aggregate stats")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, stats)
}

func (ws *WebServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.Config())
}

// handleUpdateConfig replaces the live configuration and persists it as a new
// active version. The in-memory swap happens first so the running engine and
// the stored row can never disagree on validation.
func (ws *WebServer) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.LiquidationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := ws.engine.UpdateConfig(cfg); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	version, err := state.GetNextConfigVersion("default")
	if err == nil {
		_, err = state.SaveLiquidationConfig(cfg, "default", version, true)
	}
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to persist updated configuration")
	}

	ws.writeJSONResponse(w, http.StatusOK, cfg)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriterWrapper) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}
