/*

Static registry of collateral tokens the platform accepts.

An address missing from this table is treated as unsupported everywhere:
valuation counts it as zero so junk tokens cannot inflate a position, and
funding-time validation rejects it outright.

Keep this table in sync with governance; adding a token here is what makes it
count as collateral.

*/

package config

// CollateralTokenInfo describes one supported collateral token.
type CollateralTokenInfo struct {
	Symbol               string
	Name                 string
	Decimals             int
	MaxLTV               float64 // percent of value that may be borrowed against
	LiquidationThreshold float64 // percent collateral ratio at which the asset is at risk
}

var (
	// CollateralTokens maps token contract addresses to their metadata.
	CollateralTokens = map[string]CollateralTokenInfo{
		"0x0000000000000000000000000000000000000000": {
			Symbol: "ETH", Name: "Ether", Decimals: 18, MaxLTV: 80, LiquidationThreshold: 150,
		},
		"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": {
			Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18, MaxLTV: 80, LiquidationThreshold: 150,
		},
		"0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": {
			Symbol: "WBTC", Name: "Wrapped Bitcoin", Decimals: 8, MaxLTV: 75, LiquidationThreshold: 150,
		},
		"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": {
			Symbol: "USDC", Name: "USD Coin", Decimals: 6, MaxLTV: 85, LiquidationThreshold: 120,
		},
		"0xdac17f958d2ee523a2206206994597c13d831ec7": {
			Symbol: "USDT", Name: "Tether USD", Decimals: 6, MaxLTV: 80, LiquidationThreshold: 125,
		},
		"0x6b175474e89094c44da98b954eedeac495271d0f": {
			Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18, MaxLTV: 85, LiquidationThreshold: 120,
		},
		"0x514910771af9ca656af840dff83e8264ecf986ca": {
			Symbol: "LINK", Name: "Chainlink", Decimals: 18, MaxLTV: 65, LiquidationThreshold: 160,
		},
	}
)
