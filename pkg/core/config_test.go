package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultsAreValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestConfig_ValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"adx thresholds inverted", func(c *Config) { c.ADXLow = 30; c.ADXHigh = 20 }},
		{"zero vote threshold", func(c *Config) { c.MinVotesBuy = 0 }},
		{"size clamp inverted", func(c *Config) { c.SizeMin = 0.8; c.SizeMax = 0.7 }},
		{"kelly fraction above one", func(c *Config) { c.KellyFraction = 1.5 }},
		{"risk multiplier below one", func(c *Config) { c.MaxTotalRiskMultiplier = 0.9 }},
		{"negative commission", func(c *Config) { c.CommissionRate = -0.001 }},
		{"zero positions", func(c *Config) { c.MaxPositions = 0 }},
		{"stop loss pct out of range", func(c *Config) { c.MRStopLossPct = 1.2 }},
		{"fast ema above slow", func(c *Config) { c.EMAFastPeriod = 30 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"zero fetch workers", func(c *Config) { c.MaxConcurrentFetches = 0 }},
		{"zero balance", func(c *Config) { c.InitialBalance = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_WarmupPeriod(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 205, cfg.WarmupPeriod())
}

func TestConfig_LowWindowCandles(t *testing.T) {
	cfg := DefaultConfig()

	n, err := cfg.LowWindowCandles("15m")
	require.NoError(t, err)
	require.Equal(t, 96, n)

	n, err = cfg.LowWindowCandles("1h")
	require.NoError(t, err)
	require.Equal(t, 24, n)

	n, err = cfg.LowWindowCandles("1d")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = cfg.LowWindowCandles("bogus")
	require.Error(t, err)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("TIDESHIFT_POLL_INTERVAL", "30s")
	t.Setenv("TIDESHIFT_MIN_DWELL", "1h")
	t.Setenv("TIDESHIFT_INITIAL_BALANCE", "500")
	t.Setenv("TIDESHIFT_MAX_POSITIONS", "5")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.PollInterval)
	require.Equal(t, time.Hour, cfg.MinDwell)
	require.Equal(t, 500.0, cfg.InitialBalance)
	require.Equal(t, 5, cfg.MaxPositions)
}

func TestConfigFromEnv_InvalidDuration(t *testing.T) {
	t.Setenv("TIDESHIFT_FETCH_TIMEOUT", "soon")

	_, err := ConfigFromEnv()
	require.Error(t, err)
}
