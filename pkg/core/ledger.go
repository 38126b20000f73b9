package core

import (
	"strings"
	"time"
)

// TradeFilter narrows trade history queries
type TradeFilter func(TradeRecord) bool

// WithSymbol keeps trades of one symbol
func WithSymbol(symbol string) TradeFilter {
	return func(t TradeRecord) bool {
		return strings.EqualFold(t.Symbol, symbol)
	}
}

// WithSide keeps trades whose side matches any of the given sides
func WithSide(sides ...SideType) TradeFilter {
	return func(t TradeRecord) bool {
		for _, s := range sides {
			if t.Side == s {
				return true
			}
		}
		return false
	}
}

// WithExits keeps trades that reduced or closed a position
func WithExits() TradeFilter {
	return func(t TradeRecord) bool {
		return t.Side.IsExit()
	}
}

// WithSince keeps trades at or after the given candle time
func WithSince(since time.Time) TradeFilter {
	return func(t TradeRecord) bool {
		return !t.CandleTime.Before(since)
	}
}

// TickCommit is the atomic outcome of one candle evaluation for one symbol.
// Everything in it is persisted in a single transaction: the position state
// after the tick (nil means flat), the fills the tick produced, the signal
// audit record, and the regime and portfolio states.
//
// Replaying a commit that is already persisted must be a no-op.
type TickCommit struct {
	Symbol     string
	CandleTime time.Time

	Position  *Position
	Trades    []TradeRecord
	Signal    SignalRecord
	Regime    RegimeState
	Portfolio PortfolioState
}

// Validate rejects commits that would persist a broken position
func (c TickCommit) Validate(maxRiskMultiplier float64, maxAveraging int) error {
	if c.Position == nil {
		return nil
	}
	return c.Position.Validate(maxRiskMultiplier, maxAveraging)
}

// Ledger is the durable, serialized state store of the engine. All mutation
// of portfolio state flows through CommitTick or the explicit command
// operations; concurrent commits for different symbols must be safe.
type Ledger interface {
	// Symbol tracking
	AddSymbol(symbol string) error
	RemoveSymbol(symbol string) error
	SetSymbolActive(symbol string, active bool) error
	TrackedSymbols() ([]TrackedSymbol, error)

	// Portfolio
	PortfolioState() (PortfolioState, error)
	SavePortfolioState(state PortfolioState) error

	// Open positions
	OpenPosition(symbol string) (*Position, error)
	OpenPositions() ([]*Position, error)

	// Regime persistence across restarts
	RegimeState(symbol string) (*RegimeState, error)

	// History
	Trades(filters ...TradeFilter) ([]TradeRecord, error)
	RecentClosedTrades(limit int) ([]TradeRecord, error)
	Signals(symbol string, limit int) ([]SignalRecord, error)
	LastProcessed(symbol string) (time.Time, error)

	// Trading toggle flipped by the control surface
	TradingEnabled() (bool, error)
	SetTradingEnabled(enabled bool) error

	// CommitTick persists one tick atomically. Replays of an already
	// persisted tick return nil without writing. A commit that violates a
	// position invariant is rolled back and returns an error wrapping
	// ErrInvariant.
	CommitTick(commit TickCommit) error

	Close() error
}
