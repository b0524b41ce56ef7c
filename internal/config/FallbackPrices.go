/*

Static fallback prices served when the upstream feed is unreachable and no
cached quote exists.

A stalled price feed must never block a liquidation-eligibility check, so the
oracle degrades through cache then this table rather than erroring. Values are
deliberately conservative and only matter during a total feed outage; keep
them roughly current when touching this file.

*/

package config

// FallbackPrice is a static USD/ETH price pair for one symbol.
type FallbackPrice struct {
	USD float64
	ETH float64
}

var (
	// FallbackPrices maps token symbols to their static fallback quotes.
	FallbackPrices = map[string]FallbackPrice{
		"ETH":  {USD: 2000.0, ETH: 1.0},
		"WETH": {USD: 2000.0, ETH: 1.0},
		"WBTC": {USD: 40000.0, ETH: 20.0},
		"USDC": {USD: 1.0, ETH: 0.0005},
		"USDT": {USD: 1.0, ETH: 0.0005},
		"DAI":  {USD: 1.0, ETH: 0.0005},
		"LINK": {USD: 14.0, ETH: 0.007},
	}
)
