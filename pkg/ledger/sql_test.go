package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/stretchr/testify/require"
)

func newTestSQLLedger(t *testing.T) *SQLLedger {
	t.Helper()

	l, err := FromSQLite(filepath.Join(t.TempDir(), "ledger.db"), core.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return l
}

func TestSQLLedger_SymbolLifecycle(t *testing.T) {
	l := newTestSQLLedger(t)

	require.NoError(t, l.AddSymbol("BTCUSDT"))
	require.NoError(t, l.AddSymbol("ETHUSDT"))

	require.NoError(t, l.SetSymbolActive("BTCUSDT", false))

	symbols, err := l.TrackedSymbols()
	require.NoError(t, err)
	require.Len(t, symbols, 2)
	for _, s := range symbols {
		if s.Symbol == "BTCUSDT" {
			require.False(t, s.Active)
		}
	}

	// re-adding reactivates
	require.NoError(t, l.AddSymbol("BTCUSDT"))
	symbols, err = l.TrackedSymbols()
	require.NoError(t, err)
	for _, s := range symbols {
		require.True(t, s.Active)
	}

	require.NoError(t, l.RemoveSymbol("ETHUSDT"))
	require.Error(t, l.RemoveSymbol("ETHUSDT"))
	require.Error(t, l.SetSymbolActive("ETHUSDT", true))
}

func TestSQLLedger_PortfolioInitializedFromConfig(t *testing.T) {
	l := newTestSQLLedger(t)

	state, err := l.PortfolioState()
	require.NoError(t, err)
	require.InDelta(t, 1000.0, state.Balance, 1e-9)
	require.InDelta(t, 1000.0, state.StartBalance, 1e-9)
	require.InDelta(t, 1000.0, state.PeakEquity, 1e-9)
}

func TestSQLLedger_CommitTickPersistsEverything(t *testing.T) {
	l := newTestSQLLedger(t)

	candleTime := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	commit := testCommit("BTCUSDT", candleTime, testPosition("BTCUSDT"), entryTrade("BTCUSDT", candleTime))

	require.NoError(t, l.CommitTick(commit))

	position, err := l.OpenPosition("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, position)
	require.InDelta(t, 3.49685, position.Quantity, 1e-9)
	require.InDelta(t, 350.0, position.TotalInvested, 1e-9)

	trades, err := l.Trades()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, core.SideTypeBuy, trades[0].Side)

	signals, err := l.Signals("BTCUSDT", 0)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	require.Equal(t, core.SignalBuy, signals[0].Signal)

	regime, err := l.RegimeState("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, regime)
	require.Equal(t, core.RegimeMeanReversion, regime.Mode)

	state, err := l.PortfolioState()
	require.NoError(t, err)
	require.InDelta(t, 650.0, state.Balance, 1e-9)

	last, err := l.LastProcessed("BTCUSDT")
	require.NoError(t, err)
	require.True(t, last.Equal(candleTime))
}

func TestSQLLedger_ReplayIsIdempotent(t *testing.T) {
	l := newTestSQLLedger(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	open := testCommit("BTCUSDT", base, testPosition("BTCUSDT"), entryTrade("BTCUSDT", base))

	closed := testCommit("BTCUSDT", base.Add(time.Hour), nil,
		closeTrade("BTCUSDT", base.Add(time.Hour), core.SideTypeTakeProfit, 6.37))
	closed.Portfolio.Balance = 1006.37

	ticks := []core.TickCommit{open, closed}
	for _, tick := range ticks {
		require.NoError(t, l.CommitTick(tick))
	}

	tradesBefore, err := l.Trades()
	require.NoError(t, err)
	stateBefore, err := l.PortfolioState()
	require.NoError(t, err)

	// full replay must not change anything
	for _, tick := range ticks {
		require.NoError(t, l.CommitTick(tick))
	}

	tradesAfter, err := l.Trades()
	require.NoError(t, err)
	require.Equal(t, len(tradesBefore), len(tradesAfter))

	stateAfter, err := l.PortfolioState()
	require.NoError(t, err)
	require.InDelta(t, stateBefore.Balance, stateAfter.Balance, 1e-9)

	position, err := l.OpenPosition("BTCUSDT")
	require.NoError(t, err)
	require.Nil(t, position)
}

func TestSQLLedger_InvariantViolationRollsBack(t *testing.T) {
	l := newTestSQLLedger(t)

	candleTime := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	broken := testPosition("BTCUSDT")
	broken.StopLoss = 105 // above the average entry

	commit := testCommit("BTCUSDT", candleTime, broken, entryTrade("BTCUSDT", candleTime))

	err := l.CommitTick(commit)
	require.ErrorIs(t, err, core.ErrInvariant)

	trades, ferr := l.Trades()
	require.NoError(t, ferr)
	require.Empty(t, trades)

	position, perr := l.OpenPosition("BTCUSDT")
	require.NoError(t, perr)
	require.Nil(t, position)
}

func TestSQLLedger_PositionRoundTripsAveragingEntries(t *testing.T) {
	l := newTestSQLLedger(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	averaged := testPosition("BTCUSDT")
	averaged.AveragingCount = 1
	averaged.AveragingEntries = []core.AveragingEntry{{
		Symbol:   "BTCUSDT",
		Price:    95,
		Quantity: 1.2,
		Mode:     core.SideTypeAverageDown,
		Time:     base,
	}}

	require.NoError(t, l.CommitTick(testCommit("BTCUSDT", base, averaged)))

	position, err := l.OpenPosition("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, position)
	require.Len(t, position.AveragingEntries, 1)
	require.InDelta(t, 95.0, position.AveragingEntries[0].Price, 1e-9)

	// closing the position clears its averaging entries too
	require.NoError(t, l.CommitTick(testCommit("BTCUSDT", base.Add(time.Hour), nil)))

	position, err = l.OpenPosition("BTCUSDT")
	require.NoError(t, err)
	require.Nil(t, position)
}

func TestSQLLedger_TradingToggle(t *testing.T) {
	l := newTestSQLLedger(t)

	enabled, err := l.TradingEnabled()
	require.NoError(t, err)
	require.True(t, enabled)

	require.NoError(t, l.SetTradingEnabled(false))

	enabled, err = l.TradingEnabled()
	require.NoError(t, err)
	require.False(t, enabled)
}
