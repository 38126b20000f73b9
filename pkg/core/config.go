package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// Config holds every tunable of the signal and position pipeline.
// Defaults reproduce the reference parameter set; Validate must pass
// before the engine starts.
type Config struct {
	// Vote thresholds
	MinVotesBuy        int
	MinVotesSell       int
	MinVotesTransition int

	// Regime detection
	ADXLow   float64
	ADXHigh  float64
	MinDwell time.Duration

	// Mean reversion entry filters
	MRRSIMax    float64
	MRZScoreMax float64
	MRADXMax    float64

	// Exit templates
	MRStopLossPct   float64
	MRTakeProfitPct float64
	MRATRSLMult     float64
	MRATRTPMult     float64
	TFStopLossPct   float64
	TFTakeProfitPct float64

	// Partial take profit (trend following entries only)
	PartialTPTrigger     float64
	PartialTPRemainingTP float64
	PartialClosePct      float64

	// Trailing stop
	TrailActivationMR float64
	TrailActivationTF float64
	TrailDistancePct  float64

	// Averaging
	AveragingDropPct       float64
	AveragingMinAge        time.Duration
	AveragingSizePct       float64
	MaxAveragingAttempts   int
	MaxTotalRiskMultiplier float64
	PyramidADXMin          float64
	PyramidGainPct         float64
	PyramidSizePct         float64
	PyramidStrongDelta     int

	// Position sizing
	UseKelly          bool
	MinTradesForKelly int
	KellyLookback     int
	KellyFraction     float64
	SizeMin           float64
	SizeMax           float64

	// Portfolio
	MaxPositions   int
	CommissionRate float64
	InitialBalance float64
	MinNotional    float64

	// Common entry filters
	NoBuyBelowPct   float64
	LowWindow       time.Duration
	VolumeSpikeMult float64
	EMASlopeMin     float64

	// Vote rule thresholds
	RSIOversold    float64
	RSIOverbought  float64
	ADXVoteMin     float64
	VolumeVoteMult float64

	// Indicator periods
	EMAFastPeriod    int
	EMASlowPeriod    int
	EMALongPeriod    int
	MACDSignalPeriod int
	SlopeLookback    int
	RSIPeriod        int
	ADXPeriod        int
	ATRPeriod        int
	BBPeriod         int
	BBStdDev         float64
	ZScoreWindow     int
	VolumeMeanPeriod int
	CrossLookback    int

	// Scheduler
	PollInterval         time.Duration
	FetchTimeout         time.Duration
	MaxConcurrentFetches int
}

// DefaultConfig returns the reference parameter set
func DefaultConfig() Config {
	return Config{
		MinVotesBuy:        5,
		MinVotesSell:       5,
		MinVotesTransition: 5,

		ADXLow:   20,
		ADXHigh:  24,
		MinDwell: 30 * time.Minute,

		MRRSIMax:    40,
		MRZScoreMax: -1.8,
		MRADXMax:    35,

		MRStopLossPct:   0.03,
		MRTakeProfitPct: 0.02,
		MRATRSLMult:     1.5,
		MRATRTPMult:     2.0,
		TFStopLossPct:   0.05,
		TFTakeProfitPct: 0.05,

		PartialTPTrigger:     0.015,
		PartialTPRemainingTP: 0.03,
		PartialClosePct:      0.5,

		TrailActivationMR: 0.008,
		TrailActivationTF: 0.015,
		TrailDistancePct:  0.01,

		AveragingDropPct:       0.05,
		AveragingMinAge:        24 * time.Hour,
		AveragingSizePct:       0.5,
		MaxAveragingAttempts:   2,
		MaxTotalRiskMultiplier: 1.5,
		PyramidADXMin:          25,
		PyramidGainPct:         0.02,
		PyramidSizePct:         0.3,
		PyramidStrongDelta:     7,

		UseKelly:          true,
		MinTradesForKelly: 10,
		KellyLookback:     50,
		KellyFraction:     0.25,
		SizeMin:           0.20,
		SizeMax:           0.70,

		MaxPositions:   3,
		CommissionRate: 0.0009,
		InitialBalance: 1000,
		MinNotional:    10,

		NoBuyBelowPct:   0.10,
		LowWindow:       24 * time.Hour,
		VolumeSpikeMult: 3.0,
		EMASlopeMin:     -0.003,

		RSIOversold:    30,
		RSIOverbought:  70,
		ADXVoteMin:     25,
		VolumeVoteMult: 1.2,

		EMAFastPeriod:    12,
		EMASlowPeriod:    26,
		EMALongPeriod:    200,
		MACDSignalPeriod: 9,
		SlopeLookback:    5,
		RSIPeriod:        14,
		ADXPeriod:        14,
		ATRPeriod:        14,
		BBPeriod:         20,
		BBStdDev:         2.0,
		ZScoreWindow:     50,
		VolumeMeanPeriod: 20,
		CrossLookback:    3,

		PollInterval:         10 * time.Second,
		FetchTimeout:         10 * time.Second,
		MaxConcurrentFetches: 8,
	}
}

// ConfigFromEnv returns DefaultConfig overlaid with the operational
// environment variables. Durations accept the extended syntax of
// str2duration ("1d", "30m", "1w2d").
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("TIDESHIFT_POLL_INTERVAL"); v != "" {
		d, err := str2duration.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("TIDESHIFT_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}

	if v := os.Getenv("TIDESHIFT_FETCH_TIMEOUT"); v != "" {
		d, err := str2duration.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("TIDESHIFT_FETCH_TIMEOUT: %w", err)
		}
		cfg.FetchTimeout = d
	}

	if v := os.Getenv("TIDESHIFT_MIN_DWELL"); v != "" {
		d, err := str2duration.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("TIDESHIFT_MIN_DWELL: %w", err)
		}
		cfg.MinDwell = d
	}

	if v := os.Getenv("TIDESHIFT_AVERAGING_MIN_AGE"); v != "" {
		d, err := str2duration.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("TIDESHIFT_AVERAGING_MIN_AGE: %w", err)
		}
		cfg.AveragingMinAge = d
	}

	if v := os.Getenv("TIDESHIFT_INITIAL_BALANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("TIDESHIFT_INITIAL_BALANCE: %w", err)
		}
		cfg.InitialBalance = f
	}

	if v := os.Getenv("TIDESHIFT_COMMISSION_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("TIDESHIFT_COMMISSION_RATE: %w", err)
		}
		cfg.CommissionRate = f
	}

	if v := os.Getenv("TIDESHIFT_MAX_POSITIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("TIDESHIFT_MAX_POSITIONS: %w", err)
		}
		cfg.MaxPositions = n
	}

	if v := os.Getenv("TIDESHIFT_USE_KELLY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("TIDESHIFT_USE_KELLY: %w", err)
		}
		cfg.UseKelly = b
	}

	return cfg, nil
}

// Validate rejects configurations the engine must not start with
func (c Config) Validate() error {
	if c.MinVotesBuy < 1 || c.MinVotesSell < 1 || c.MinVotesTransition < 1 {
		return fmt.Errorf("vote thresholds must be at least 1")
	}

	if c.ADXLow >= c.ADXHigh {
		return fmt.Errorf("ADX low threshold %.2f must be below high threshold %.2f", c.ADXLow, c.ADXHigh)
	}

	if c.MinDwell < 0 {
		return fmt.Errorf("minimum dwell must not be negative")
	}

	for name, pct := range map[string]float64{
		"MRStopLossPct":    c.MRStopLossPct,
		"MRTakeProfitPct":  c.MRTakeProfitPct,
		"TFStopLossPct":    c.TFStopLossPct,
		"TFTakeProfitPct":  c.TFTakeProfitPct,
		"PartialTPTrigger": c.PartialTPTrigger,
		"TrailDistancePct": c.TrailDistancePct,
		"AveragingDropPct": c.AveragingDropPct,
		"PyramidGainPct":   c.PyramidGainPct,
	} {
		if pct <= 0 || pct >= 1 {
			return fmt.Errorf("%s must be within (0, 1), got %f", name, pct)
		}
	}

	if c.PartialClosePct <= 0 || c.PartialClosePct >= 1 {
		return fmt.Errorf("partial close fraction must be within (0, 1), got %f", c.PartialClosePct)
	}

	if c.SizeMin <= 0 || c.SizeMin > c.SizeMax || c.SizeMax > 1 {
		return fmt.Errorf("size clamp [%f, %f] out of range", c.SizeMin, c.SizeMax)
	}

	if c.KellyFraction <= 0 || c.KellyFraction > 1 {
		return fmt.Errorf("kelly fraction must be within (0, 1], got %f", c.KellyFraction)
	}

	if c.MaxTotalRiskMultiplier < 1 {
		return fmt.Errorf("total risk multiplier must be at least 1, got %f", c.MaxTotalRiskMultiplier)
	}

	if c.MaxAveragingAttempts < 0 {
		return fmt.Errorf("averaging attempts must not be negative")
	}

	if c.PyramidStrongDelta < 1 {
		return fmt.Errorf("pyramid strong delta must be at least 1, got %d", c.PyramidStrongDelta)
	}

	if c.MaxPositions < 1 {
		return fmt.Errorf("max positions must be at least 1, got %d", c.MaxPositions)
	}

	if c.CommissionRate < 0 || c.CommissionRate >= 0.1 {
		return fmt.Errorf("commission rate %f out of range", c.CommissionRate)
	}

	if c.InitialBalance <= 0 {
		return fmt.Errorf("initial balance must be positive, got %f", c.InitialBalance)
	}

	if c.MinNotional < 0 {
		return fmt.Errorf("minimum notional must not be negative, got %f", c.MinNotional)
	}

	for name, period := range map[string]int{
		"EMAFastPeriod":    c.EMAFastPeriod,
		"EMASlowPeriod":    c.EMASlowPeriod,
		"EMALongPeriod":    c.EMALongPeriod,
		"MACDSignalPeriod": c.MACDSignalPeriod,
		"SlopeLookback":    c.SlopeLookback,
		"RSIPeriod":        c.RSIPeriod,
		"ADXPeriod":        c.ADXPeriod,
		"ATRPeriod":        c.ATRPeriod,
		"BBPeriod":         c.BBPeriod,
		"ZScoreWindow":     c.ZScoreWindow,
		"VolumeMeanPeriod": c.VolumeMeanPeriod,
		"CrossLookback":    c.CrossLookback,
	} {
		if period < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, period)
		}
	}

	if c.EMAFastPeriod >= c.EMASlowPeriod {
		return fmt.Errorf("fast EMA period %d must be below slow EMA period %d",
			c.EMAFastPeriod, c.EMASlowPeriod)
	}

	if c.PollInterval <= 0 || c.FetchTimeout <= 0 {
		return fmt.Errorf("poll interval and fetch timeout must be positive")
	}

	if c.MaxConcurrentFetches < 1 {
		return fmt.Errorf("concurrent fetch limit must be at least 1, got %d", c.MaxConcurrentFetches)
	}

	return nil
}

// WarmupPeriod returns the number of candles required before the indicator
// snapshot is fully populated
func (c Config) WarmupPeriod() int {
	return c.EMALongPeriod + c.SlopeLookback
}

// LowWindowCandles converts the N-day-low window into a candle count for
// the given timeframe, rounding up and never below one candle
func (c Config) LowWindowCandles(timeframe string) (int, error) {
	d, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return 0, fmt.Errorf("invalid timeframe %q: %w", timeframe, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", timeframe)
	}

	n := int((c.LowWindow + d - 1) / d)
	if n < 1 {
		n = 1
	}

	return n, nil
}
