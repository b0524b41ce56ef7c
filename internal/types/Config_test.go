package types

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() LiquidationConfig {
	return LiquidationConfig{
		LiquidationThreshold:   150,
		LiquidationBonus:       5,
		MaxLiquidationRatio:    50,
		ProtocolFee:            1,
		GracePeriodSeconds:     86400,
		MinCollateralRatio:     150,
		AuctionDurationSeconds: 21600,
		AuctionFloorPercent:    70,
	}
}

func TestLiquidationConfigValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*LiquidationConfig)
	}{
		{"threshold at 100", func(c *LiquidationConfig) { c.LiquidationThreshold = 100 }},
		{"negative bonus", func(c *LiquidationConfig) { c.LiquidationBonus = -1 }},
		{"zero max ratio", func(c *LiquidationConfig) { c.MaxLiquidationRatio = 0 }},
		{"fee above bonus", func(c *LiquidationConfig) { c.ProtocolFee = 6 }},
		{"negative grace period", func(c *LiquidationConfig) { c.GracePeriodSeconds = -1 }},
		{"min ratio below 100", func(c *LiquidationConfig) { c.MinCollateralRatio = 99 }},
		{"zero auction duration", func(c *LiquidationConfig) { c.AuctionDurationSeconds = 0 }},
		{"floor above 100", func(c *LiquidationConfig) { c.AuctionFloorPercent = 101 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigDurations(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 24*time.Hour, cfg.GracePeriod())
	assert.Equal(t, 6*time.Hour, cfg.AuctionDuration())
}

func TestConfigHolderSwapsAtomically(t *testing.T) {
	holder, err := NewConfigHolder(validConfig())
	require.NoError(t, err)

	updated := validConfig()
	updated.LiquidationBonus = 10
	updated.ProtocolFee = 2
	require.NoError(t, holder.Set(updated))
	assert.Equal(t, 10.0, holder.Get().LiquidationBonus)

	bad := validConfig()
	bad.MaxLiquidationRatio = 101
	assert.Error(t, holder.Set(bad))
	assert.Equal(t, 10.0, holder.Get().LiquidationBonus, "a rejected update must not change the held value")
}

func TestConfigHolderConcurrentAccess(t *testing.T) {
	holder, err := NewConfigHolder(validConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cfg := holder.Get()
				// The bonus/fee pair always comes from the same write.
				assert.True(t, cfg.ProtocolFee <= cfg.LiquidationBonus)

				next := validConfig()
				next.LiquidationBonus = float64(1 + j%10)
				next.ProtocolFee = next.LiquidationBonus / 2
				_ = holder.Set(next)
			}
		}()
	}
	wg.Wait()
}
