/*

Price Oracle Adapter.

Fetches current USD/ETH prices per token symbol from the platform's price feed
with a short-TTL in-memory cache. Lookup never propagates a feed failure to
valuation callers: it degrades from fresh cache to stale cache to the static
fallback table, because liquidation-eligibility checks are a DoS-sensitive
path that must proceed with best-available data.

*/

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/microlend/lqd/internal/config"
	"github.com/microlend/lqd/internal/logger"
	"github.com/microlend/lqd/internal/metrics"
	"github.com/microlend/lqd/internal/types"
	"github.com/microlend/lqd/internal/utils"
)

var oracleLogger = logger.GetForComponent("price_oracle")

var (
	ErrPriceUnavailable = errors.New("no price available from feed, cache, or fallback")
	ErrInvalidQuote     = errors.New("invalid price quote received")
)

const maxFetchAttempts = 2

// PriceSource is the oracle boundary consumed by the valuation engine.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (types.PriceQuote, error)
}

// feedQuote is the price feed's wire format.
type feedQuote struct {
	Symbol    string  `json:"symbol"`
	PriceUSD  float64 `json:"price_usd"`
	PriceETH  float64 `json:"price_eth"`
	UpdatedAt int64   `json:"updated_at"`
}

type cachedQuote struct {
	quote     types.PriceQuote
	fetchedAt time.Time
}

// Adapter is the HTTP-backed PriceSource with caching and fallbacks.
type Adapter struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	ttl      time.Duration
	now      func() time.Time
	fallback map[string]types.PriceQuote

	mu    sync.RWMutex
	cache map[string]cachedQuote
}

// Option tweaks adapter construction; used by tests.
type Option func(*Adapter)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithHTTPClient substitutes the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) { a.client = client }
}

// New creates a price oracle adapter against the given feed endpoint.
func New(baseURL, apiKey string, ttl, timeout time.Duration, opts ...Option) (*Adapter, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("price feed base URL cannot be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("price cache TTL must be positive, got %s", ttl)
	}

	adapter := &Adapter{
		client:   &http.Client{Timeout: timeout},
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		ttl:      ttl,
		now:      time.Now,
		fallback: buildFallbackTable(),
		cache:    make(map[string]cachedQuote),
	}
	for _, opt := range opts {
		opt(adapter)
	}

	oracleLogger.Info().
		Str("feed", adapter.baseURL).
		Dur("cacheTTL", ttl).
		Int("fallbackSymbols", len(adapter.fallback)).
		Msg("Price oracle adapter initialized")
	return adapter, nil
}

// GetPrice returns the current quote for a symbol. Serving order: fresh cache,
// live feed, stale cache, static fallback. It returns ErrPriceUnavailable only
// when every tier is empty.
func (a *Adapter) GetPrice(ctx context.Context, symbol string) (types.PriceQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return types.PriceQuote{}, fmt.Errorf("%w: empty symbol", ErrInvalidQuote)
	}

	if quote, ok := a.cachedFresh(symbol); ok {
		return quote, nil
	}

	quote, err := a.fetch(ctx, symbol)
	if err == nil {
		a.store(symbol, quote)
		return quote, nil
	}
	oracleLogger.Warn().Err(err).Str("symbol", symbol).Msg("Price feed fetch failed, degrading to cache/fallback")

	if quote, ok := a.cachedAny(symbol); ok {
		quote.Source = types.PriceSourceStaleCache
		metrics.OracleFallbackServed.WithLabelValues(types.PriceSourceStaleCache).Inc()
		return quote, nil
	}

	if quote, ok := a.fallback[symbol]; ok {
		quote.LastUpdated = a.now()
		metrics.OracleFallbackServed.WithLabelValues(types.PriceSourceFallback).Inc()
		oracleLogger.Warn().Str("symbol", symbol).Msg("Serving static fallback price")
		return quote, nil
	}

	return types.PriceQuote{}, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol)
}

// fetch performs the live feed request with bounded retries.
func (a *Adapter) fetch(ctx context.Context, symbol string) (types.PriceQuote, error) {
	requestURL := fmt.Sprintf("%s/v1/prices?symbol=%s", a.baseURL, url.QueryEscape(symbol))

	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return types.PriceQuote{}, fmt.Errorf("failed to build feed request: %w", err)
		}
		if a.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.apiKey)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("feed request failed on attempt %d: %w", attempt, err)
			if ctx.Err() != nil {
				return types.PriceQuote{}, lastErr
			}
			continue
		}

		quote, err := a.decodeResponse(resp, symbol)
		if err != nil {
			lastErr = err
			continue
		}
		return quote, nil
	}
	return types.PriceQuote{}, lastErr
}

func (a *Adapter) decodeResponse(resp *http.Response, symbol string) (types.PriceQuote, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.PriceQuote{}, fmt.Errorf("feed returned status %d for %s", resp.StatusCode, symbol)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.PriceQuote{}, fmt.Errorf("failed to read feed response for %s: %w", symbol, err)
	}

	var wire feedQuote
	if err := json.Unmarshal(body, &wire); err != nil {
		return types.PriceQuote{}, fmt.Errorf("failed to parse feed response for %s: %w", symbol, err)
	}

	if wire.PriceUSD <= 0 || wire.PriceETH <= 0 {
		return types.PriceQuote{}, fmt.Errorf("%w: non-positive price for %s (usd=%f eth=%f)",
			ErrInvalidQuote, symbol, wire.PriceUSD, wire.PriceETH)
	}

	priceUSD, err := utils.Float64ToDec(wire.PriceUSD)
	if err != nil {
		return types.PriceQuote{}, fmt.Errorf("%w: usd price for %s: %w", ErrInvalidQuote, symbol, err)
	}
	priceETH, err := utils.Float64ToDec(wire.PriceETH)
	if err != nil {
		return types.PriceQuote{}, fmt.Errorf("%w: eth price for %s: %w", ErrInvalidQuote, symbol, err)
	}

	updated := a.now()
	if wire.UpdatedAt > 0 {
		updated = time.Unix(wire.UpdatedAt, 0)
	}

	return types.PriceQuote{
		Symbol:      symbol,
		PriceUSD:    priceUSD,
		PriceETH:    priceETH,
		LastUpdated: updated,
		Source:      types.PriceSourceFeed,
	}, nil
}

func (a *Adapter) cachedFresh(symbol string) (types.PriceQuote, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.cache[symbol]
	if !ok || a.now().Sub(entry.fetchedAt) > a.ttl {
		return types.PriceQuote{}, false
	}
	return entry.quote, true
}

func (a *Adapter) cachedAny(symbol string) (types.PriceQuote, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.cache[symbol]
	if !ok {
		return types.PriceQuote{}, false
	}
	return entry.quote, true
}

func (a *Adapter) store(symbol string, quote types.PriceQuote) {
	a.mu.Lock()
	a.cache[symbol] = cachedQuote{quote: quote, fetchedAt: a.now()}
	a.mu.Unlock()
}

// buildFallbackTable converts the static config table into quotes.
func buildFallbackTable() map[string]types.PriceQuote {
	table := make(map[string]types.PriceQuote, len(config.FallbackPrices))
	for symbol, price := range config.FallbackPrices {
		usd, err := utils.Float64ToDec(price.USD)
		if err != nil {
			oracleLogger.Error().Err(err).Str("symbol", symbol).Msg("Invalid fallback USD price, skipping")
			continue
		}
		eth, err := utils.Float64ToDec(price.ETH)
		if err != nil {
			oracleLogger.Error().Err(err).Str("symbol", symbol).Msg("Invalid fallback ETH price, skipping")
			continue
		}
		if !usd.IsPositive() || !eth.IsPositive() {
			oracleLogger.Error().Str("symbol", symbol).Msg("Non-positive fallback price, skipping")
			continue
		}
		table[symbol] = types.PriceQuote{
			Symbol:   symbol,
			PriceUSD: usd,
			PriceETH: eth,
			Source:   types.PriceSourceFallback,
		}
	}
	return table
}

// Static is a fixed-price PriceSource used by tests and simulations.
type Static struct {
	Quotes map[string]types.PriceQuote
}

// GetPrice returns the fixed quote for a symbol.
func (s *Static) GetPrice(_ context.Context, symbol string) (types.PriceQuote, error) {
	quote, ok := s.Quotes[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return types.PriceQuote{}, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol)
	}
	return quote, nil
}

// NewStaticQuote is a convenience constructor for fixed quotes.
func NewStaticQuote(symbol string, priceUSD, priceETH sdkmath.LegacyDec) types.PriceQuote {
	return types.PriceQuote{
		Symbol:      strings.ToUpper(symbol),
		PriceUSD:    priceUSD,
		PriceETH:    priceETH,
		LastUpdated: time.Now(),
		Source:      types.PriceSourceFeed,
	}
}
