package notification

import (
	"strings"
	"testing"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/metric"
	"github.com/raykavin/tideshift/pkg/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRegexes_ExtractSymbol(t *testing.T) {
	match := addRegexp.FindStringSubmatch("/add btcusdt")
	require.NotEmpty(t, match)
	assert.Equal(t, "btcusdt", extractCommandParams(addRegexp, match)["symbol"])

	match = removeRegexp.FindStringSubmatch("/remove ETHUSDT")
	require.NotEmpty(t, match)
	assert.Equal(t, "ETHUSDT", extractCommandParams(removeRegexp, match)["symbol"])

	match = forceBuyRegexp.FindStringSubmatch("/force_buy solusdt")
	require.NotEmpty(t, match)
	assert.Equal(t, "solusdt", extractCommandParams(forceBuyRegexp, match)["symbol"])

	assert.Empty(t, addRegexp.FindStringSubmatch("/add"))
	assert.Empty(t, forceBuyRegexp.FindStringSubmatch("/force_buy"))
}

func TestTradesRegexp_OptionalLimit(t *testing.T) {
	match := tradesRegexp.FindStringSubmatch("/trades 25")
	require.NotEmpty(t, match)
	assert.Equal(t, "25", extractCommandParams(tradesRegexp, match)["limit"])

	match = tradesRegexp.FindStringSubmatch("/trades")
	require.NotEmpty(t, match)
	assert.Empty(t, extractCommandParams(tradesRegexp, match)["limit"])
}

func TestFormatSymbolList(t *testing.T) {
	added := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := formatSymbolList([]core.TrackedSymbol{
		{Symbol: "BTCUSDT", Active: true, AddedAt: added},
		{Symbol: "ETHUSDT", Active: false, AddedAt: added},
	})

	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "active")
	assert.Contains(t, out, "paused")
	assert.Contains(t, out, "2024-05-01")
}

func TestFormatStatus_NoPositions(t *testing.T) {
	portfolio := core.PortfolioState{Balance: 1000, Equity: 1000}

	out := formatStatus(false, portfolio, nil, nil)

	assert.Contains(t, out, "PAUSED")
	assert.Contains(t, out, "No open positions.")
}

func TestFormatStatus_MarksOpenPositions(t *testing.T) {
	portfolio := core.PortfolioState{
		Balance: 800, Equity: 1100, RealizedPnL: 100,
		WinCount: 3, LossCount: 1, PeakEquity: 1100,
	}
	open := []*core.Position{{
		Symbol:         "BTCUSDT",
		Quantity:       0.5,
		AvgEntryPrice:  2000,
		TotalInvested:  1000,
		StopLoss:       1900,
		EntryMode:      core.RegimeMeanReversion,
		PartialTPTaken: true,
		TrailingActive: true,
	}}
	prices := map[string]float64{"BTCUSDT": 2200}

	out := formatStatus(true, portfolio, open, prices)

	assert.Contains(t, out, "RUNNING")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "+10.00%")
	assert.Contains(t, out, "partial,trailing")
	assert.Contains(t, out, "75.0%")
}

func TestFormatStatus_FallsBackToEntryPrice(t *testing.T) {
	open := []*core.Position{{
		Symbol:        "ETHUSDT",
		Quantity:      1,
		AvgEntryPrice: 3000,
		TotalInvested: 3000,
	}}

	out := formatStatus(true, core.PortfolioState{}, open, nil)

	assert.Contains(t, out, "+0.00%")
	assert.NotContains(t, out, "-100.00%")
}

func TestFormatBalance(t *testing.T) {
	account := core.Account{Balances: []core.Balance{
		{Asset: "USDT", Free: 523.5, Lock: 0},
		{Asset: "BTC", Free: 0.0042, Lock: 0},
	}}
	portfolio := core.PortfolioState{
		StartBalance: 1000, Balance: 523.5, Equity: 987.2,
		RealizedPnL: -12.8, WinCount: 2, LossCount: 3,
	}

	out := formatBalance(account, portfolio)

	assert.Contains(t, out, "USDT")
	assert.Contains(t, out, "BTC")
	assert.Contains(t, out, "-12.80")
	assert.Contains(t, out, "2` wins")
}

func TestFormatTrades_NewestFirst(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	trades := []core.TradeRecord{
		{Symbol: "OLDUSDT", Side: core.SideTypeBuy, CandleTime: base, Price: 10, Quantity: 1},
		{Symbol: "NEWUSDT", Side: core.SideTypeStopLoss, CandleTime: base.Add(time.Hour), Price: 9, Quantity: 1, RealizedPnL: -1.5},
	}

	out := formatTrades(trades)

	assert.Contains(t, out, "LAST 2 TRADES")
	assert.Less(t, strings.Index(out, "NEWUSDT"), strings.Index(out, "OLDUSDT"))
	assert.Contains(t, out, "-1.50")
}

func TestFormatTradeEvent(t *testing.T) {
	exit := core.TradeRecord{
		Symbol: "BTCUSDT", Side: core.SideTypeTakeProfit,
		Price: 51000, Quantity: 0.01, RealizedPnL: 42.5,
		Reason: "TAKE_PROFIT", Regime: core.RegimeMeanReversion,
	}

	out := formatTradeEvent(exit)

	assert.Contains(t, out, "💎")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "+42.50")
	assert.Contains(t, out, "MR")

	entry := core.TradeRecord{Symbol: "BTCUSDT", Side: core.SideTypeBuy, Price: 50000, Quantity: 0.01}
	assert.NotContains(t, formatTradeEvent(entry), "PnL")
	assert.Contains(t, formatTradeEvent(entry), "🟢")
}

func TestSideEmoji(t *testing.T) {
	assert.Equal(t, "🟢", sideEmoji(core.SideTypeBuy))
	assert.Equal(t, "🟢", sideEmoji(core.SideTypeAverageDown))
	assert.Equal(t, "🛑", sideEmoji(core.SideTypeStopLoss))
	assert.Equal(t, "💎", sideEmoji(core.SideTypePartialTP))
	assert.Equal(t, "🔻", sideEmoji(core.SideTypeTrailingStop))
	assert.Equal(t, "🔴", sideEmoji(core.SideTypeSell))
	assert.Equal(t, "🔴", sideEmoji(core.SideTypeSignalExit))
}

func TestFormatSignalStats(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stats := signal.Stats{
		Total: 10, Buys: 2, Sells: 1, Holds: 7,
		LastBuyAt: at,
		Blocked: []signal.BlockCount{
			{Reason: "regime transition", Count: 3},
			{Reason: "cooldown", Count: 1},
		},
		Recent: []core.SignalRecord{
			{CandleTime: at, Signal: core.SignalBuy, VotesDelta: 6, Regime: core.RegimeMeanReversion},
			{CandleTime: at.Add(time.Hour), Signal: core.SignalHold, VotesDelta: 2, Regime: core.RegimeTrendFollowing, BlockReason: "cooldown"},
		},
	}

	out := formatSignalStats("BTCUSDT", stats)

	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "BUY: `2` (20.0%)")
	assert.Contains(t, out, "HOLD: `7` (70.0%)")
	assert.Contains(t, out, "2024-05-01 12:00")
	assert.Contains(t, out, "regime transition: 3x")
	assert.Contains(t, out, "✅")
	assert.Contains(t, out, "❌")
	assert.Contains(t, out, "Δ+6")
}

func TestFormatSignalStats_NoBuys(t *testing.T) {
	out := formatSignalStats("ETHUSDT", signal.Stats{Total: 5, Holds: 5})

	assert.Contains(t, out, "No BUY signal in the window.")
	assert.NotContains(t, out, "Blocked entries")
}

func TestFormatDeltaAnalysis_QuietMarket(t *testing.T) {
	analysis := signal.DeltaAnalysis{
		Samples: 40, Min: -4, Max: 2, Mean: -0.5, Median: 0,
		Buckets: []signal.DeltaBucket{{Label: "weakly bullish (0 .. 3)", Count: 12, Share: 0.3}},
	}

	out := formatDeltaAnalysis(analysis, 5)

	assert.Contains(t, out, "Samples: `40`")
	assert.Contains(t, out, "weakly bullish (0 .. 3): 12 (30.0%)")
	assert.Contains(t, out, "never reached the buy threshold `5`")
}

func TestFormatDeltaAnalysis_BuyReady(t *testing.T) {
	analysis := signal.DeltaAnalysis{
		Samples: 20, Min: -2, Max: 7, Mean: 1.2, Median: 1,
		BuyReady: 4,
	}

	out := formatDeltaAnalysis(analysis, 5)

	assert.Contains(t, out, "`4` samples (20.0%) at or above the buy threshold")
}

func TestFormatReasonPerformance(t *testing.T) {
	perf := []signal.ReasonPerformance{
		{Reason: "rsi_oversold", Trades: 12, Wins: 8, WinRate: 8.0 / 12.0, NetPnL: 31.4,
			Interval: metric.BootstrapInterval{Lower: -0.5, Upper: 2.5, Mean: 1.0, StdDev: 0.2}},
		{Reason: "macd_cross", Trades: 3, Wins: 1, WinRate: 1.0 / 3.0, NetPnL: -4.2},
	}

	out := formatReasonPerformance(perf)

	assert.Contains(t, out, "rsi_oversold")
	assert.Contains(t, out, "-0.50 ~ 2.50")
	assert.Contains(t, out, "+31.40")
	assert.Contains(t, out, "macd_cross")
	assert.Contains(t, out, "-4.20")
}
