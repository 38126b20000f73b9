package sizing

import (
	"math"

	"github.com/raykavin/tideshift/pkg/core"
	"gonum.org/v1/gonum/stat"
)

// TradeReturn recovers the per-trade return fraction of an exit fill from
// its recorded proceeds and realized result
func TradeReturn(t core.TradeRecord) (float64, bool) {
	if !t.Side.IsExit() {
		return 0, false
	}

	proceeds := t.Price*t.Quantity - t.Commission
	cost := proceeds - t.RealizedPnL
	if cost <= 0 {
		return 0, false
	}

	return t.RealizedPnL / cost, true
}

// KellyFactor computes the fractional Kelly multiplier over a window of
// closed trades:
//
//	kelly_raw = (p*W - (1-p)*L) / W
//
// with p the win rate, W the average win magnitude and L the average loss
// magnitude. The result is already scaled by the Kelly fraction but not yet
// normalized by volatility or clamped; the caller owns those steps.
//
// The boolean is false while fewer than minTrades exits are in the window,
// in which case sizing must stay neutral.
func KellyFactor(trades []core.TradeRecord, minTrades int, fraction float64) (float64, bool) {
	var wins, losses []float64
	var flats int

	for _, t := range trades {
		ret, ok := TradeReturn(t)
		if !ok {
			continue
		}

		switch {
		case ret > 0:
			wins = append(wins, ret)
		case ret < 0:
			losses = append(losses, -ret)
		default:
			flats++
		}
	}

	total := len(wins) + len(losses) + flats
	if total < minTrades {
		return 1.0, false
	}

	var raw float64
	if len(wins) > 0 {
		p := float64(len(wins)) / float64(total)
		w := stat.Mean(wins, nil)

		var l float64
		if len(losses) > 0 {
			l = stat.Mean(losses, nil)
		}

		if w > 0 {
			raw = (p*w - (1-p)*l) / w
		}
	}

	return math.Max(0, raw) * fraction, true
}
