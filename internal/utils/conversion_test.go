package utils

import (
	"math"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPowerOfTen(t *testing.T) {
	assert.True(t, PowerOfTen(0).Equal(sdkmath.LegacyOneDec()))
	assert.True(t, PowerOfTen(6).Equal(sdkmath.LegacyNewDec(1_000_000)))
	assert.True(t, PowerOfTen(18).Equal(sdkmath.LegacyNewDec(1).MulInt(sdkmath.NewIntWithDecimal(1, 18))))
}

func TestPercentToDec(t *testing.T) {
	five, err := PercentToDec(5.0)
	require.NoError(t, err)
	assert.True(t, five.Equal(sdkmath.LegacyNewDecWithPrec(5, 2)))

	oneFifty, err := PercentToDec(150.0)
	require.NoError(t, err)
	assert.True(t, oneFifty.Equal(sdkmath.LegacyNewDecWithPrec(15, 1)))

	_, err = PercentToDec(math.NaN())
	assert.ErrorIs(t, err, ErrNotFinite)
	_, err = PercentToDec(math.Inf(1))
	assert.ErrorIs(t, err, ErrNotFinite)
}

func TestFloat64ToDec(t *testing.T) {
	dec, err := Float64ToDec(1.4)
	require.NoError(t, err)
	assert.True(t, dec.Equal(sdkmath.LegacyNewDecWithPrec(14, 1)))
}

func TestSDKIntRoundTrip(t *testing.T) {
	amount, err := Float64ToSDKInt(1.5, 18)
	require.NoError(t, err)
	assert.True(t, amount.Equal(sdkmath.NewIntWithDecimal(15, 17)))

	back, err := SDKIntToFloat64(amount, 18)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, back, 1e-12)
}

func TestFloat64ToSDKIntRejectsNegative(t *testing.T) {
	_, err := Float64ToSDKInt(-1, 18)
	assert.ErrorIs(t, err, ErrAmountNegative)
}
