// Package regime classifies each symbol into a mean reversion, trend
// following or transition mode from the ADX, with hysteresis so that choppy
// readings around the thresholds cannot flip strategies on every candle.
package regime

import (
	"sync"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/logger"
)

// Detector keeps the per-symbol regime state machine. States survive
// restarts through the ledger; Restore reloads them before polling starts.
type Detector struct {
	mu     sync.Mutex
	cfg    core.Config
	states map[string]core.RegimeState
	log    logger.Logger
}

func NewDetector(cfg core.Config, log logger.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		states: make(map[string]core.RegimeState),
		log:    log,
	}
}

// Restore seeds the in-memory states from persisted records
func (d *Detector) Restore(states []core.RegimeState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, st := range states {
		if st.Symbol == "" {
			continue
		}
		d.states[st.Symbol] = st
	}
}

// State returns the current state for a symbol, if any
func (d *Detector) State(symbol string) (core.RegimeState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[symbol]
	return st, ok
}

// Forget drops the state for a removed symbol
func (d *Detector) Forget(symbol string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.states, symbol)
}

// Evaluate advances the state machine with a fresh ADX reading and returns
// the regime in force for this candle.
//
// The candidate mode switches immediately except when the machine changed
// mode less than the minimum dwell ago; in that case the previous mode is
// held to absorb threshold whipsaw. Leaving the transition band is always
// allowed regardless of dwell.
func (d *Detector) Evaluate(symbol string, adx float64, now time.Time) core.RegimeState {
	d.mu.Lock()
	defer d.mu.Unlock()

	candidate := d.classify(adx)

	st, ok := d.states[symbol]
	switch {
	case !ok || st.Mode == "":
		st = core.RegimeState{Symbol: symbol, Mode: candidate, EnteredAt: now}

	case candidate != st.Mode:
		if st.Mode != core.RegimeTransition && now.Sub(st.EnteredAt) < d.cfg.MinDwell {
			break // dwell guard holds the current mode
		}

		d.log.WithFields(map[string]any{
			"symbol": symbol,
			"from":   st.Mode,
			"to":     candidate,
			"adx":    adx,
		}).Info("market regime changed")

		st.Mode = candidate
		st.EnteredAt = now
	}

	st.ADX = adx
	st.UpdatedAt = now
	d.states[symbol] = st

	return st
}

func (d *Detector) classify(adx float64) core.RegimeType {
	switch {
	case adx < d.cfg.ADXLow:
		return core.RegimeMeanReversion
	case adx > d.cfg.ADXHigh:
		return core.RegimeTrendFollowing
	default:
		return core.RegimeTransition
	}
}
