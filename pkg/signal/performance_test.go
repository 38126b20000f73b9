package signal

import (
	"testing"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func perfTime(hour int) time.Time {
	return time.Date(2024, 5, 1, hour, 0, 0, 0, time.UTC)
}

func entrySignal(symbol string, at time.Time, reasons ...string) core.SignalRecord {
	return core.SignalRecord{
		Symbol:     symbol,
		CandleTime: at,
		Signal:     core.SignalBuy,
		TopReasons: reasons,
	}
}

func fill(symbol string, at time.Time, side core.SideType, pnl float64) core.TradeRecord {
	return core.TradeRecord{
		Symbol:      symbol,
		CandleTime:  at,
		Side:        side,
		Reason:      string(side),
		RealizedPnL: pnl,
	}
}

func TestComputeReasonPerformance_AttributesExitsToEntryReasons(t *testing.T) {
	signals := []core.SignalRecord{
		entrySignal("BTCUSDT", perfTime(0), "rsi_oversold", "zscore_low"),
		entrySignal("ETHUSDT", perfTime(1), "macd_cross"),
		entrySignal("BTCUSDT", perfTime(4), "macd_cross"),
	}

	trades := []core.TradeRecord{
		fill("BTCUSDT", perfTime(0), core.SideTypeBuy, 0),
		fill("ETHUSDT", perfTime(1), core.SideTypeBuy, 0),
		fill("BTCUSDT", perfTime(2), core.SideTypePartialTP, 5),
		fill("BTCUSDT", perfTime(3), core.SideTypeTrailingStop, 3),
		fill("BTCUSDT", perfTime(4), core.SideTypeBuy, 0),
		fill("ETHUSDT", perfTime(5), core.SideTypeStopLoss, -4),
		fill("BTCUSDT", perfTime(6), core.SideTypeSignalExit, 2),
	}

	perf := ComputeReasonPerformance(trades, signals)
	require.Len(t, perf, 3)

	// equal trade counts fall back to alphabetical order
	assert.Equal(t, "macd_cross", perf[0].Reason)
	assert.Equal(t, 2, perf[0].Trades)
	assert.Equal(t, 1, perf[0].Wins)
	assert.InDelta(t, -2.0, perf[0].NetPnL, 1e-9)
	assert.InDelta(t, 0.5, perf[0].WinRate, 1e-9)

	assert.Equal(t, "rsi_oversold", perf[1].Reason)
	assert.Equal(t, 2, perf[1].Trades)
	assert.Equal(t, 2, perf[1].Wins)
	assert.InDelta(t, 8.0, perf[1].NetPnL, 1e-9)

	assert.Equal(t, "zscore_low", perf[2].Reason)
	assert.InDelta(t, 8.0, perf[2].NetPnL, 1e-9)

	// samples too small for a confidence interval
	for _, p := range perf {
		assert.Zero(t, p.Interval)
	}
}

func TestComputeReasonPerformance_PartialKeepsAttribution(t *testing.T) {
	signals := []core.SignalRecord{
		entrySignal("BTCUSDT", perfTime(0), "breakout"),
	}
	trades := []core.TradeRecord{
		fill("BTCUSDT", perfTime(0), core.SideTypeBuy, 0),
		fill("BTCUSDT", perfTime(1), core.SideTypePartialTP, 2),
		fill("BTCUSDT", perfTime(2), core.SideTypeTakeProfit, 4),
		// a later exit with no open entry attributes nothing
		fill("BTCUSDT", perfTime(3), core.SideTypeSell, 9),
	}

	perf := ComputeReasonPerformance(trades, signals)
	require.Len(t, perf, 1)
	assert.Equal(t, 2, perf[0].Trades)
	assert.InDelta(t, 6.0, perf[0].NetPnL, 1e-9)
}

func TestComputeReasonPerformance_EntryWithoutSignalRecord(t *testing.T) {
	trades := []core.TradeRecord{
		fill("BTCUSDT", perfTime(0), core.SideTypeBuy, 0),
		fill("BTCUSDT", perfTime(1), core.SideTypeStopLoss, -3),
	}

	assert.Empty(t, ComputeReasonPerformance(trades, nil))
}

func TestComputeReasonPerformance_IntervalOnLargeSample(t *testing.T) {
	var signals []core.SignalRecord
	var trades []core.TradeRecord

	for i := 0; i < 8; i++ {
		entry := perfTime(2 * i)
		exit := perfTime(2*i + 1)
		signals = append(signals, entrySignal("BTCUSDT", entry, "steady"))
		trades = append(trades,
			fill("BTCUSDT", entry, core.SideTypeBuy, 0),
			fill("BTCUSDT", exit, core.SideTypeTakeProfit, 1),
		)
	}

	perf := ComputeReasonPerformance(trades, signals)
	require.Len(t, perf, 1)
	assert.Equal(t, 8, perf[0].Trades)

	// constant outcomes resample to a degenerate interval at the mean
	assert.InDelta(t, 1.0, perf[0].Interval.Mean, 1e-9)
	assert.InDelta(t, 1.0, perf[0].Interval.Lower, 1e-9)
	assert.InDelta(t, 1.0, perf[0].Interval.Upper, 1e-9)
}
