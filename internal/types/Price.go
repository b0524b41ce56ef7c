package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// Price source tiers recorded on every quote so callers can tell live feed
// data apart from fallbacks.
const (
	PriceSourceFeed       = "feed"
	PriceSourceStaleCache = "stale-cache"
	PriceSourceFallback   = "fallback"
)

// PriceQuote is a per-symbol price observation from the oracle adapter.
type PriceQuote struct {
	Symbol      string            `json:"symbol"`
	PriceUSD    sdkmath.LegacyDec `json:"price_usd"`
	PriceETH    sdkmath.LegacyDec `json:"price_eth"`
	LastUpdated time.Time         `json:"last_updated"`
	Source      string            `json:"source"`
}
