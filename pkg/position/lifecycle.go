package position

import (
	"fmt"

	"github.com/raykavin/tideshift/pkg/core"
)

// Stage is the ordered lifecycle of an open position. The ledger persists
// the underlying flags on core.Position; Stage is derived from them so that
// restarts resume in the same stage. Transitions only move forward:
//
//	Entered -> Trailing                    (trail armed, no partial yet)
//	Entered -> PartialClosed               (trend entries only)
//	Trailing -> PartialClosed              (partial on an already armed trail)
//	PartialClosed -> PartialTrailing       (trail armed after the partial)
type Stage int

const (
	// StageEntered is a fresh position with no exit management armed
	StageEntered Stage = iota
	// StageTrailing has the trailing stop armed before any partial close
	StageTrailing
	// StagePartialClosed sold the partial tranche and promoted the stop
	// to the average entry price
	StagePartialClosed
	// StagePartialTrailing has both the partial done and the trail armed
	StagePartialTrailing
)

func (s Stage) String() string {
	switch s {
	case StageEntered:
		return "ENTERED"
	case StageTrailing:
		return "TRAILING"
	case StagePartialClosed:
		return "PARTIAL_CLOSED"
	case StagePartialTrailing:
		return "PARTIAL_TRAILING"
	}
	return "UNKNOWN"
}

// StageOf derives the lifecycle stage from the persisted flags. A break-even
// stop can only exist after the partial tranche was sold, so any other flag
// combination is an invariant violation.
func StageOf(p core.Position) (Stage, error) {
	switch {
	case !p.PartialTPTaken && !p.BreakevenActive && !p.TrailingActive:
		return StageEntered, nil
	case !p.PartialTPTaken && !p.BreakevenActive && p.TrailingActive:
		return StageTrailing, nil
	case p.PartialTPTaken && p.BreakevenActive && !p.TrailingActive:
		return StagePartialClosed, nil
	case p.PartialTPTaken && p.BreakevenActive && p.TrailingActive:
		return StagePartialTrailing, nil
	}

	return StageEntered, fmt.Errorf("%w: %s lifecycle flags partial_tp=%t breakeven=%t trailing=%t",
		core.ErrInvariant, p.Symbol, p.PartialTPTaken, p.BreakevenActive, p.TrailingActive)
}

// armTrailing arms the trailing stop and anchors the trail at the highest
// price seen so far. Arming an armed trail only refreshes the anchor.
func armTrailing(p *core.Position, price float64) {
	p.TrailingActive = true
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
}

// takePartial records the one-shot partial close: the stop is promoted to
// the average entry and the break-even guard takes over from the hard stop
func takePartial(p *core.Position) {
	p.PartialTPTaken = true
	p.BreakevenActive = true
	p.StopLoss = p.AvgEntryPrice
}
