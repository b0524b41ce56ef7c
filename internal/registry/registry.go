/*

Token Registry: the static mapping of supported collateral token addresses to
their metadata. Unknown addresses are reported as unsupported, never as an
error, so valuation cannot be crashed by arbitrary token addresses in a loan's
holdings.

*/

package registry

import (
	"strings"

	"github.com/microlend/lqd/internal/config"
	"github.com/microlend/lqd/internal/logger"
)

var registryLogger = logger.GetForComponent("token_registry")

// Token is the registry's view of one supported collateral token.
type Token struct {
	Address              string
	Symbol               string
	Name                 string
	Decimals             int
	MaxLTV               float64
	LiquidationThreshold float64
}

// Registry resolves token addresses to metadata. Lookups are case-insensitive
// on the address.
type Registry struct {
	tokens map[string]Token
}

// New builds a registry from the static collateral token table.
func New() *Registry {
	return NewFromTable(config.CollateralTokens)
}

// NewFromTable builds a registry from an explicit table, used by tests to
// substitute synthetic tokens.
func NewFromTable(table map[string]config.CollateralTokenInfo) *Registry {
	tokens := make(map[string]Token, len(table))
	for address, info := range table {
		key := strings.ToLower(address)
		tokens[key] = Token{
			Address:              key,
			Symbol:               info.Symbol,
			Name:                 info.Name,
			Decimals:             info.Decimals,
			MaxLTV:               info.MaxLTV,
			LiquidationThreshold: info.LiquidationThreshold,
		}
	}
	registryLogger.Info().Int("tokenCount", len(tokens)).Msg("Token registry initialized")
	return &Registry{tokens: tokens}
}

// Lookup returns the token metadata for an address. The second return value
// reports whether the token is supported collateral.
func (r *Registry) Lookup(address string) (Token, bool) {
	token, ok := r.tokens[strings.ToLower(strings.TrimSpace(address))]
	return token, ok
}

// IsSupported reports whether an address is accepted as collateral.
func (r *Registry) IsSupported(address string) bool {
	_, ok := r.Lookup(address)
	return ok
}

// Symbols returns the symbols of all supported tokens.
func (r *Registry) Symbols() []string {
	symbols := make([]string, 0, len(r.tokens))
	for _, token := range r.tokens {
		symbols = append(symbols, token.Symbol)
	}
	return symbols
}
