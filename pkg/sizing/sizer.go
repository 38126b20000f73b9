// Package sizing computes the fraction of free cash committed to a new
// entry: a vote-conviction base, a regime multiplier, and an optional
// fractional Kelly adjustment learned from recent closed trades.
package sizing

import (
	"math"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/logger"
)

// TradeHistory supplies the closed-trade window used by the Kelly
// adjustment. The ledger implements it.
type TradeHistory interface {
	RecentClosedTrades(limit int) ([]core.TradeRecord, error)
}

type Sizer struct {
	cfg     core.Config
	history TradeHistory
	log     logger.Logger
}

func New(cfg core.Config, history TradeHistory, log logger.Logger) *Sizer {
	return &Sizer{cfg: cfg, history: history, log: log}
}

// Fraction returns the fraction of free cash to deploy for a new entry.
// The result is always clamped to the configured [SizeMin, SizeMax] band.
func (s *Sizer) Fraction(votesDelta int, mode core.RegimeType, adx, atrPct float64) float64 {
	fraction := baseFraction(votesDelta) * regimeMultiplier(mode, adx)

	if s.cfg.UseKelly {
		fraction *= s.kellyAdjustment(atrPct)
	}

	return clamp(fraction, s.cfg.SizeMin, s.cfg.SizeMax)
}

// baseFraction maps vote conviction to a starting fraction
func baseFraction(votesDelta int) float64 {
	delta := votesDelta
	if delta < 0 {
		delta = -delta
	}

	switch {
	case delta >= 7:
		return 0.70
	case delta >= 5:
		return 0.50
	case delta >= 3:
		return 0.35
	default:
		return 0.25
	}
}

// regimeMultiplier scales with trend strength: strong trends reward trend
// entries, quiet tapes reward mean reversion entries
func regimeMultiplier(mode core.RegimeType, adx float64) float64 {
	switch mode {
	case core.RegimeTrendFollowing:
		switch {
		case adx > 35:
			return 1.3
		case adx > 30:
			return 1.2
		case adx > 26:
			return 1.1
		}
	case core.RegimeMeanReversion:
		switch {
		case adx < 15:
			return 1.3
		case adx < 18:
			return 1.2
		case adx < 20:
			return 1.1
		}
	}
	return 1.0
}

// kellyAdjustment derives a multiplicative factor from the recent trade
// window. It stays neutral until enough trades have closed, and degrades
// to neutral when the history cannot be read.
func (s *Sizer) kellyAdjustment(atrPct float64) float64 {
	trades, err := s.history.RecentClosedTrades(s.cfg.KellyLookback)
	if err != nil {
		s.log.WithError(err).Warn("kelly sizing skipped, trade history unavailable")
		return 1.0
	}

	factor, ok := KellyFactor(trades, s.cfg.MinTradesForKelly, s.cfg.KellyFraction)
	if !ok {
		return 1.0
	}

	// normalize by current volatility so hot markets do not inflate size
	factor /= 1 + atrPct/2

	return clamp(factor, 0.5, 1.5)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
