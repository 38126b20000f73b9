package signal

import (
	"math"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/indicator"
	"github.com/raykavin/tideshift/pkg/logger"
)

// Block reasons recorded on decisions that wanted to buy but were refused.
// Sells are never blocked.
const (
	BlockWarmup           = "warmup"
	BlockFallingKnife     = "falling_knife"
	BlockVolumeSpike      = "volume_spike"
	BlockDowntrend        = "downtrend"
	BlockPositionLimit    = "position_limit"
	BlockInsufficientCash = "insufficient_cash"
	BlockAlreadyHolding   = "already_holding"
	BlockMRConditions     = "mr_filter"
	BlockTFConditions     = "tf_filter"
	BlockTradingDisabled  = "trading_disabled"
)

// Sizer yields the cash fraction for an approved entry
type Sizer interface {
	Fraction(votesDelta int, mode core.RegimeType, adx, atrPct float64) float64
}

// PortfolioView is the slice of portfolio state the entry filters need.
// It must come from the same ledger read that the subsequent commit is
// built on, so sizing cannot double-spend across symbols.
type PortfolioView struct {
	OpenPosition *core.Position
	OpenCount    int
	FreeCash     float64
}

// Decision is the outcome of one candle's evaluation for one symbol.
//
// Kind is what the portfolio acts on: a blocked buy degrades to HOLD and
// carries the block reason. Intent keeps the raw vote outcome so that
// position management can still see buy pressure on symbols already held.
type Decision struct {
	Symbol     string
	Time       time.Time
	Price      float64
	Kind       core.SignalType
	Intent     core.SignalType
	Mode       core.RegimeType
	VotesDelta int
	Reasons    []string
	Top3       []string

	// Populated only for an approved BUY
	SizeFraction float64
	StopLoss     float64
	TakeProfit   float64

	BlockReason string
}

// Blocked reports whether a buy intent was refused by an entry filter
func (d Decision) Blocked() bool {
	return d.BlockReason != ""
}

// Generator gates vote tallies through regime-specific entry filters and
// attaches sizing and exit levels to approved entries.
type Generator struct {
	cfg   core.Config
	votes *Aggregator
	sizer Sizer
	log   logger.Logger
}

func NewGenerator(cfg core.Config, sizer Sizer, log logger.Logger) *Generator {
	return &Generator{
		cfg:   cfg,
		votes: NewAggregator(cfg),
		sizer: sizer,
		log:   log,
	}
}

// Evaluate produces the decision for one closed candle.
//
// Sells pass through unfiltered. Buys run the common filters first, then
// the regime gate; the first failing filter sets BlockReason and the
// decision degrades to HOLD.
func (g *Generator) Evaluate(snap indicator.Snapshot, mode core.RegimeType, view PortfolioView) Decision {
	d := Decision{
		Symbol: snap.Pair,
		Time:   snap.Time,
		Price:  snap.Close,
		Kind:   core.SignalHold,
		Intent: core.SignalHold,
		Mode:   mode,
	}

	if !snap.Ready {
		d.BlockReason = BlockWarmup
		return d
	}

	votes := g.votes.Evaluate(snap)
	d.VotesDelta = votes.Delta
	d.Reasons = votes.Reasons
	d.Top3 = votes.Top3

	buyMin, sellMin := g.thresholds(mode)
	switch {
	case votes.Delta >= buyMin:
		d.Intent = core.SignalBuy
	case -votes.Delta >= sellMin:
		d.Intent = core.SignalSell
	default:
		return d
	}

	if d.Intent == core.SignalSell {
		d.Kind = core.SignalSell
		return d
	}

	if reason := g.buyBlock(snap, mode, view); reason != "" {
		d.BlockReason = reason
		g.log.WithFields(map[string]any{
			"symbol": snap.Pair,
			"delta":  votes.Delta,
			"mode":   mode,
			"block":  reason,
		}).Debug("buy signal blocked")
		return d
	}

	d.Kind = core.SignalBuy
	d.SizeFraction = g.sizer.Fraction(votes.Delta, mode, snap.ADX, snap.ATRPct)
	d.StopLoss, d.TakeProfit = g.ExitLevels(mode, snap.Close, snap.ATRPct)

	return d
}

// ForceEntry builds an approved buy without running the entry filters, for
// the manual entry command. Conviction is pinned at the minimum buy
// threshold; the caller still enforces the position cap and the cash floor.
func (g *Generator) ForceEntry(snap indicator.Snapshot, mode core.RegimeType) Decision {
	d := Decision{
		Symbol:     snap.Pair,
		Time:       snap.Time,
		Price:      snap.Close,
		Kind:       core.SignalBuy,
		Intent:     core.SignalBuy,
		Mode:       mode,
		VotesDelta: g.cfg.MinVotesBuy,
		Reasons:    []string{"forced: manual entry"},
		Top3:       []string{"forced: manual entry"},
	}

	d.SizeFraction = g.sizer.Fraction(d.VotesDelta, mode, snap.ADX, snap.ATRPct)
	d.StopLoss, d.TakeProfit = g.ExitLevels(mode, snap.Close, snap.ATRPct)

	return d
}

// thresholds returns the vote deltas required on each side for the mode.
// The transition zone demands its own threshold on both sides.
func (g *Generator) thresholds(mode core.RegimeType) (buy, sell int) {
	if mode == core.RegimeTransition {
		return g.cfg.MinVotesTransition, g.cfg.MinVotesTransition
	}
	return g.cfg.MinVotesBuy, g.cfg.MinVotesSell
}

// buyBlock runs the entry filters in their fixed order and returns the
// first failure, or empty when the buy may proceed
func (g *Generator) buyBlock(snap indicator.Snapshot, mode core.RegimeType, view PortfolioView) string {
	if snap.WindowLow > 0 && snap.Close < snap.WindowLow*(1+g.cfg.NoBuyBelowPct) {
		return BlockFallingKnife
	}

	if snap.VolumeMean > 0 && snap.Volume > snap.VolumeMean*g.cfg.VolumeSpikeMult {
		return BlockVolumeSpike
	}

	if snap.EMALongSlope < g.cfg.EMASlopeMin {
		return BlockDowntrend
	}

	if view.OpenCount >= g.cfg.MaxPositions {
		return BlockPositionLimit
	}

	if view.FreeCash*g.cfg.SizeMax < g.cfg.MinNotional {
		return BlockInsufficientCash
	}

	if view.OpenPosition != nil {
		return BlockAlreadyHolding
	}

	switch mode {
	case core.RegimeMeanReversion:
		if snap.RSI >= g.cfg.MRRSIMax || snap.ZScore >= g.cfg.MRZScoreMax || snap.ADX >= g.cfg.MRADXMax {
			return BlockMRConditions
		}
	case core.RegimeTrendFollowing:
		if snap.ADX <= g.cfg.ADXHigh || snap.EMAFast <= snap.EMASlow || snap.MACD <= 0 {
			return BlockTFConditions
		}
	default:
		// Transition entries use the trend structure checks. The ADX gate is
		// skipped: inside the band ADX can never exceed the high threshold.
		if snap.EMAFast <= snap.EMASlow || snap.MACD <= 0 {
			return BlockTFConditions
		}
	}

	return ""
}

// ExitLevels computes the stop loss and take profit template for an entry
// at the given price under the given regime
func (g *Generator) ExitLevels(mode core.RegimeType, price, atrPct float64) (stopLoss, takeProfit float64) {
	if mode == core.RegimeMeanReversion {
		slPct := math.Max(g.cfg.MRStopLossPct, atrPct*g.cfg.MRATRSLMult)
		tpPct := math.Max(g.cfg.MRTakeProfitPct, atrPct*g.cfg.MRATRTPMult)
		return core.Round8(price * (1 - slPct)), core.Round8(price * (1 + tpPct))
	}

	return core.Round8(price * (1 - g.cfg.TFStopLossPct)), core.Round8(price * (1 + g.cfg.TFTakeProfitPct))
}
