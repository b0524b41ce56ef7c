package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microlend/lqd/internal/config"
)

func TestLookupIsCaseInsensitive(t *testing.T) {
	reg := NewFromTable(map[string]config.CollateralTokenInfo{
		"0xAbCd000000000000000000000000000000000001": {
			Symbol: "TKN", Name: "Token", Decimals: 18, MaxLTV: 80, LiquidationThreshold: 150,
		},
	})

	token, ok := reg.Lookup("0xABCD000000000000000000000000000000000001")
	require.True(t, ok)
	assert.Equal(t, "TKN", token.Symbol)

	token, ok = reg.Lookup("  0xabcd000000000000000000000000000000000001  ")
	require.True(t, ok)
	assert.Equal(t, 18, token.Decimals)
}

func TestUnknownAddressIsUnsupportedNotAnError(t *testing.T) {
	reg := New()

	_, ok := reg.Lookup("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	assert.False(t, ok)
	assert.False(t, reg.IsSupported("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"))
}

func TestDefaultTableIsLoaded(t *testing.T) {
	reg := New()

	assert.True(t, reg.IsSupported("0x0000000000000000000000000000000000000000"), "ETH must be supported")
	assert.NotEmpty(t, reg.Symbols())
}
