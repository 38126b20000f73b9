// Package strategies assembles the trading stacks shipped with the engine.
package strategies

import (
	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/indicator"
	"github.com/raykavin/tideshift/pkg/logger"
	"github.com/raykavin/tideshift/pkg/position"
	"github.com/raykavin/tideshift/pkg/regime"
	"github.com/raykavin/tideshift/pkg/signal"
	"github.com/raykavin/tideshift/pkg/sizing"
)

// Hybrid is the regime-adaptive long stack: mean reversion entries on a
// quiet tape, trend following in strong trends, one exit protocol and
// adaptive sizing, behind the scheduler's Processor seam.
type Hybrid struct {
	manager  *position.Manager
	detector *regime.Detector
	feed     *position.Feed
}

// NewHybrid wires the vote generator, the sizer, the regime detector and
// the position manager around one broker and one ledger
func NewHybrid(cfg core.Config, broker core.Broker, led core.Ledger, log logger.Logger) *Hybrid {
	feed := position.NewTradeFeed()
	sizer := sizing.New(cfg, led, log)
	signals := signal.NewGenerator(cfg, sizer, log)

	return &Hybrid{
		manager:  position.NewManager(cfg, broker, led, signals, feed, log),
		detector: regime.NewDetector(cfg, log),
		feed:     feed,
	}
}

// ProcessCandle runs one closed candle through the stack
func (h *Hybrid) ProcessCandle(snap indicator.Snapshot, st core.RegimeState) (signal.Decision, error) {
	return h.manager.ProcessCandle(snap, st)
}

// OnCandle keeps the manager's mark prices fresh; register it as a candle
// sink alongside the broker's
func (h *Hybrid) OnCandle(candle core.Candle) {
	h.manager.OnCandle(candle)
}

// SetNotifier fans trade and error events out to the notifier
func (h *Hybrid) SetNotifier(notifier core.Notifier) {
	h.manager.SetNotifier(notifier)
}

// Manager exposes the position manager for the control surface
func (h *Hybrid) Manager() *position.Manager { return h.manager }

// Detector exposes the regime state machine for the scheduler
func (h *Hybrid) Detector() *regime.Detector { return h.detector }

// TradeFeed exposes the fill stream for subscribers
func (h *Hybrid) TradeFeed() *position.Feed { return h.feed }
