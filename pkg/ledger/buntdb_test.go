package ledger

import (
	"testing"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *BuntLedger {
	t.Helper()

	l, err := FromMemory(core.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return l
}

func testPosition(symbol string) *core.Position {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &core.Position{
		ID:              1,
		Symbol:          symbol,
		Quantity:        3.49685,
		AvgEntryPrice:   100,
		TotalInvested:   350,
		InitialInvested: 350,
		CommissionPaid:  0.315,
		StopLoss:        97,
		TakeProfit:      102,
		HighestPrice:    100,
		EntryMode:       core.RegimeMeanReversion,
		EntryVotesDelta: 6,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func testCommit(symbol string, candleTime time.Time, position *core.Position, trades ...core.TradeRecord) core.TickCommit {
	return core.TickCommit{
		Symbol:     symbol,
		CandleTime: candleTime,
		Position:   position,
		Trades:     trades,
		Signal: core.SignalRecord{
			Symbol:     symbol,
			CandleTime: candleTime,
			Signal:     core.SignalBuy,
			Regime:     core.RegimeMeanReversion,
			VotesDelta: 6,
			Price:      100,
			CreatedAt:  candleTime,
		},
		Regime: core.RegimeState{
			Symbol:    symbol,
			Mode:      core.RegimeMeanReversion,
			EnteredAt: candleTime,
			ADX:       18,
			UpdatedAt: candleTime,
		},
		Portfolio: core.PortfolioState{
			ID:           1,
			Balance:      650,
			StartBalance: 1000,
			Equity:       1000,
			PeakEquity:   1000,
			UpdatedAt:    candleTime,
		},
	}
}

func entryTrade(symbol string, candleTime time.Time) core.TradeRecord {
	return core.TradeRecord{
		Symbol:     symbol,
		CandleTime: candleTime,
		Reason:     string(core.SideTypeBuy),
		Side:       core.SideTypeBuy,
		Price:      100,
		Quantity:   3.49685,
		Commission: 0.315,
		VotesDelta: 6,
		Regime:     core.RegimeMeanReversion,
		CreatedAt:  candleTime,
	}
}

func closeTrade(symbol string, candleTime time.Time, side core.SideType, pnl float64) core.TradeRecord {
	return core.TradeRecord{
		Symbol:      symbol,
		CandleTime:  candleTime,
		Reason:      string(side),
		Side:        side,
		Price:       102,
		Quantity:    3.49685,
		Commission:  0.321,
		RealizedPnL: pnl,
		Regime:      core.RegimeMeanReversion,
		CreatedAt:   candleTime,
	}
}

func TestBuntLedger_SymbolLifecycle(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.AddSymbol("BTCUSDT"))
	require.NoError(t, l.AddSymbol("ETHUSDT"))

	symbols, err := l.TrackedSymbols()
	require.NoError(t, err)
	require.Len(t, symbols, 2)

	require.NoError(t, l.SetSymbolActive("BTCUSDT", false))

	symbols, err = l.TrackedSymbols()
	require.NoError(t, err)
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

func TestBuntLedger_PortfolioInitializedFromConfig(t *testing.T) {
	l := newTestLedger(t)

	state, err := l.PortfolioState()
	require.NoError(t, err)
	require.InDelta(t, 1000.0, state.Balance, 1e-9)
	require.InDelta(t, 1000.0, state.StartBalance, 1e-9)
	require.InDelta(t, 1000.0, state.PeakEquity, 1e-9)
}

func TestBuntLedger_CommitTickPersistsEverything(t *testing.T) {
	l := newTestLedger(t)

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

func TestBuntLedger_ReplayIsIdempotent(t *testing.T) {
	l := newTestLedger(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// three ticks: open, hold, close
	open := testCommit("BTCUSDT", base, testPosition("BTCUSDT"), entryTrade("BTCUSDT", base))

	hold := testCommit("BTCUSDT", base.Add(time.Hour), testPosition("BTCUSDT"))
	hold.Signal.Signal = core.SignalHold
	hold.Signal.CandleTime = base.Add(time.Hour)

	closed := testCommit("BTCUSDT", base.Add(2*time.Hour), nil,
		closeTrade("BTCUSDT", base.Add(2*time.Hour), core.SideTypeTakeProfit, 6.37))
	closed.Portfolio.Balance = 1006.37

	ticks := []core.TickCommit{open, hold, closed}
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

	signals, err := l.Signals("BTCUSDT", 0)
	require.NoError(t, err)
	require.Len(t, signals, 3)
}

func TestBuntLedger_InvariantViolationRollsBack(t *testing.T) {
	l := newTestLedger(t)

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

func TestBuntLedger_RiskCapInvariant(t *testing.T) {
	l := newTestLedger(t)

	candleTime := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	over := testPosition("BTCUSDT")
	over.TotalInvested = over.InitialInvested*1.5 + 1

	err := l.CommitTick(testCommit("BTCUSDT", candleTime, over))
	require.ErrorIs(t, err, core.ErrInvariant)

	// exactly at the cap is legal
	at := testPosition("BTCUSDT")
	at.TotalInvested = at.InitialInvested * 1.5
	at.Quantity = 5.2

	require.NoError(t, l.CommitTick(testCommit("BTCUSDT", candleTime, at)))
}

func TestBuntLedger_FlatTickClearsPosition(t *testing.T) {
	l := newTestLedger(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.CommitTick(testCommit("BTCUSDT", base, testPosition("BTCUSDT"))))

	open, err := l.OpenPositions()
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, l.CommitTick(testCommit("BTCUSDT", base.Add(time.Hour), nil)))

	open, err = l.OpenPositions()
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestBuntLedger_RecentClosedTradesNewestFirst(t *testing.T) {
	l := newTestLedger(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, side := range []core.SideType{core.SideTypeStopLoss, core.SideTypeTakeProfit, core.SideTypeSignalExit} {
		tick := testCommit("BTCUSDT", base.Add(time.Duration(i)*time.Hour), nil,
			closeTrade("BTCUSDT", base.Add(time.Duration(i)*time.Hour), side, float64(i)))
		require.NoError(t, l.CommitTick(tick))
	}

	recent, err := l.RecentClosedTrades(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, core.SideTypeSignalExit, recent[0].Side)
	require.Equal(t, core.SideTypeTakeProfit, recent[1].Side)
}

func TestBuntLedger_TradeFilters(t *testing.T) {
	l := newTestLedger(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.CommitTick(testCommit("BTCUSDT", base, testPosition("BTCUSDT"), entryTrade("BTCUSDT", base))))
	require.NoError(t, l.CommitTick(testCommit("ETHUSDT", base, testPosition("ETHUSDT"), entryTrade("ETHUSDT", base))))
	require.NoError(t, l.CommitTick(testCommit("BTCUSDT", base.Add(time.Hour), nil,
		closeTrade("BTCUSDT", base.Add(time.Hour), core.SideTypeStopLoss, -10))))

	btc, err := l.Trades(core.WithSymbol("BTCUSDT"))
	require.NoError(t, err)
	require.Len(t, btc, 2)

	exits, err := l.Trades(core.WithExits())
	require.NoError(t, err)
	require.Len(t, exits, 1)

	stops, err := l.Trades(core.WithSide(core.SideTypeStopLoss))
	require.NoError(t, err)
	require.Len(t, stops, 1)

	since, err := l.Trades(core.WithSince(base.Add(time.Hour)))
	require.NoError(t, err)
	require.Len(t, since, 1)

	both, err := l.Trades(core.WithSymbol("BTCUSDT"), core.WithExits())
	require.NoError(t, err)
	require.Len(t, both, 1)
}

func TestBuntLedger_SignalsPerSymbolAndAcross(t *testing.T) {
	l := newTestLedger(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		btc := testCommit("BTCUSDT", ts, nil)
		btc.Signal.VotesDelta = i
		require.NoError(t, l.CommitTick(btc))

		eth := testCommit("ETHUSDT", ts.Add(time.Minute), nil)
		eth.Signal.VotesDelta = 10 + i
		require.NoError(t, l.CommitTick(eth))
	}

	last2, err := l.Signals("BTCUSDT", 2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	require.Equal(t, 2, last2[0].VotesDelta)
	require.Equal(t, 3, last2[1].VotesDelta)

	all, err := l.Signals("", 3)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 13, all[2].VotesDelta)
}

func TestBuntLedger_TradingToggle(t *testing.T) {
	l := newTestLedger(t)

	enabled, err := l.TradingEnabled()
	require.NoError(t, err)
	require.True(t, enabled)

	require.NoError(t, l.SetTradingEnabled(false))

	enabled, err = l.TradingEnabled()
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestBuntLedger_LastProcessedZeroWhenEmpty(t *testing.T) {
	l := newTestLedger(t)

	last, err := l.LastProcessed("BTCUSDT")
	require.NoError(t, err)
	require.True(t, last.IsZero())
}
