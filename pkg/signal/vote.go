// Package signal turns indicator snapshots into vote tallies and
// regime-gated trading decisions, and keeps the audit trail needed to
// analyze which vote reasons actually pay off.
package signal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/indicator"
	"github.com/samber/lo"
)

// Stable reason codes. The free-form detail after the colon is for humans;
// the code before it is what the reason analytics group by.
const (
	ReasonEMAOrder      = "ema_order"
	ReasonEMACross      = "ema_cross"
	ReasonMACDMomentum  = "macd_momentum"
	ReasonRSIRising     = "rsi_rising"
	ReasonRSIOversold   = "rsi_oversold"
	ReasonRSIOverbought = "rsi_overbought"
	ReasonBBPosition    = "bb_position"
	ReasonADXTrend      = "adx_trend"
	ReasonVolumeSurge   = "volume_surge"
	ReasonEMALongSlope  = "ema200_slope"
)

// reasonRank orders codes by how much standalone information the rule
// carries; TopReasons picks from the front.
var reasonRank = map[string]int{
	ReasonEMACross:      0,
	ReasonMACDMomentum:  1,
	ReasonADXTrend:      2,
	ReasonRSIOversold:   3,
	ReasonRSIOverbought: 3,
	ReasonRSIRising:     4,
	ReasonVolumeSurge:   5,
	ReasonEMALongSlope:  6,
	ReasonEMAOrder:      7,
	ReasonBBPosition:    8,
}

// VoteResult is the tally of one candle's independent vote rules
type VoteResult struct {
	Bullish int
	Bearish int
	Delta   int
	Reasons []string
	Top3    []string
}

// ReasonCode extracts the stable code from a stored reason string
func ReasonCode(reason string) string {
	if i := strings.IndexByte(reason, ':'); i > 0 {
		return reason[:i]
	}
	return reason
}

// Aggregator maps snapshots to vote tallies. Every rule contributes at most
// one vote to exactly one side; rules are independent of each other.
type Aggregator struct {
	cfg core.Config
}

func NewAggregator(cfg core.Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Evaluate runs the rule set against a snapshot
func (a *Aggregator) Evaluate(snap indicator.Snapshot) VoteResult {
	var res VoteResult

	bullish := func(reason string) {
		res.Bullish++
		res.Reasons = append(res.Reasons, reason)
	}
	bearish := func(reason string) {
		res.Bearish++
		res.Reasons = append(res.Reasons, reason)
	}

	// EMA cross and order
	switch {
	case snap.EMACrossedUp:
		bullish(fmt.Sprintf("%s: fast EMA crossed above slow (%.4f > %.4f)",
			ReasonEMACross, snap.EMAFast, snap.EMASlow))
	case snap.EMAFast > snap.EMASlow:
		bullish(fmt.Sprintf("%s: fast EMA above slow (%.4f > %.4f)",
			ReasonEMAOrder, snap.EMAFast, snap.EMASlow))
	case snap.EMAFast < snap.EMASlow:
		bearish(fmt.Sprintf("%s: fast EMA below slow (%.4f < %.4f)",
			ReasonEMAOrder, snap.EMAFast, snap.EMASlow))
	}

	// MACD momentum with a recent line cross
	switch {
	case snap.MACDHist > 0 && snap.MACDCrossedUp:
		bullish(fmt.Sprintf("%s: histogram %.6f with recent cross up",
			ReasonMACDMomentum, snap.MACDHist))
	case snap.MACDHist < 0 && snap.MACDCrossedDown:
		bearish(fmt.Sprintf("%s: histogram %.6f with recent cross down",
			ReasonMACDMomentum, snap.MACDHist))
	}

	// RSI band, rising, and extremes
	switch {
	case snap.RSI < a.cfg.RSIOversold:
		bullish(fmt.Sprintf("%s: RSI %.2f below %.0f", ReasonRSIOversold, snap.RSI, a.cfg.RSIOversold))
	case snap.RSI > a.cfg.RSIOverbought:
		bearish(fmt.Sprintf("%s: RSI %.2f above %.0f", ReasonRSIOverbought, snap.RSI, a.cfg.RSIOverbought))
	case snap.RSI > snap.PrevRSI:
		bullish(fmt.Sprintf("%s: RSI rising %.2f -> %.2f", ReasonRSIRising, snap.PrevRSI, snap.RSI))
	}

	// Price relative to the Bollinger middle band
	switch {
	case snap.Close > snap.BBMiddle:
		bullish(fmt.Sprintf("%s: close %.4f above mid band %.4f", ReasonBBPosition, snap.Close, snap.BBMiddle))
	case snap.Close < snap.BBMiddle:
		bearish(fmt.Sprintf("%s: close %.4f below mid band %.4f", ReasonBBPosition, snap.Close, snap.BBMiddle))
	}

	// Trend strength with directional confirmation
	if snap.ADX > a.cfg.ADXVoteMin {
		switch {
		case snap.PlusDI > snap.MinusDI:
			bullish(fmt.Sprintf("%s: ADX %.2f with +DI %.2f > -DI %.2f",
				ReasonADXTrend, snap.ADX, snap.PlusDI, snap.MinusDI))
		case snap.MinusDI > snap.PlusDI:
			bearish(fmt.Sprintf("%s: ADX %.2f with -DI %.2f > +DI %.2f",
				ReasonADXTrend, snap.ADX, snap.MinusDI, snap.PlusDI))
		}
	}

	// Volume confirmation
	if snap.VolumeMean > 0 && snap.Volume > a.cfg.VolumeVoteMult*snap.VolumeMean {
		ratio := snap.Volume / snap.VolumeMean
		switch {
		case snap.Close > snap.PrevClose:
			bullish(fmt.Sprintf("%s: volume %.1fx mean on an up candle", ReasonVolumeSurge, ratio))
		case snap.Close < snap.PrevClose:
			bearish(fmt.Sprintf("%s: volume %.1fx mean on a down candle", ReasonVolumeSurge, ratio))
		}
	}

	// Very long EMA slope
	switch {
	case snap.EMALongSlope > 0:
		bullish(fmt.Sprintf("%s: slope +%.4f%% over %d candles",
			ReasonEMALongSlope, snap.EMALongSlope*100, a.cfg.SlopeLookback))
	case snap.EMALongSlope < a.cfg.EMASlopeMin:
		bearish(fmt.Sprintf("%s: slope %.4f%% over %d candles",
			ReasonEMALongSlope, snap.EMALongSlope*100, a.cfg.SlopeLookback))
	}

	res.Delta = res.Bullish - res.Bearish
	res.Top3 = topReasons(res.Reasons, 3)

	return res
}

// topReasons ranks fired reasons by rule information and keeps the first n
func topReasons(reasons []string, n int) []string {
	ranked := make([]string, len(reasons))
	copy(ranked, reasons)

	sort.SliceStable(ranked, func(i, j int) bool {
		ri, iok := reasonRank[ReasonCode(ranked[i])]
		rj, jok := reasonRank[ReasonCode(ranked[j])]
		if !iok {
			ri = len(reasonRank)
		}
		if !jok {
			rj = len(reasonRank)
		}
		return ri < rj
	})

	return lo.Subset(ranked, 0, uint(n))
}
