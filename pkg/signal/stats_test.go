package signal

import (
	"testing"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/stretchr/testify/require"
)

func signalHistory() []core.SignalRecord {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := func(i int, kind core.SignalType, delta int, block string) core.SignalRecord {
		return core.SignalRecord{
			Symbol:      "BTCUSDT",
			CandleTime:  base.Add(time.Duration(i) * time.Hour),
			Signal:      kind,
			VotesDelta:  delta,
			BlockReason: block,
		}
	}

	return []core.SignalRecord{
		rec(0, core.SignalHold, 2, ""),
		rec(1, core.SignalHold, -1, ""),
		rec(2, core.SignalHold, 6, BlockFallingKnife),
		rec(3, core.SignalBuy, 5, ""),
		rec(4, core.SignalHold, 7, BlockFallingKnife),
		rec(5, core.SignalSell, -6, ""),
		rec(6, core.SignalHold, 5, BlockPositionLimit),
		rec(7, core.SignalBuy, 6, ""),
		rec(8, core.SignalHold, -4, ""),
		rec(9, core.SignalHold, 0, ""),
	}
}

func TestComputeStats_CountsAndBlockOrdering(t *testing.T) {
	s := ComputeStats(signalHistory(), 3)

	require.Equal(t, 10, s.Total)
	require.Equal(t, 2, s.Buys)
	require.Equal(t, 1, s.Sells)
	require.Equal(t, 7, s.Holds)

	require.Equal(t, time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC), s.LastBuyAt)

	require.Len(t, s.Blocked, 2)
	require.Equal(t, BlockCount{Reason: BlockFallingKnife, Count: 2}, s.Blocked[0])
	require.Equal(t, BlockCount{Reason: BlockPositionLimit, Count: 1}, s.Blocked[1])

	require.Len(t, s.Recent, 3)
	require.Equal(t, 0, s.Recent[2].VotesDelta)
}

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(nil, 5)

	require.Zero(t, s.Total)
	require.Empty(t, s.Blocked)
	require.Empty(t, s.Recent)
	require.True(t, s.LastBuyAt.IsZero())
}

func TestAnalyzeDeltas_Distribution(t *testing.T) {
	a := AnalyzeDeltas(signalHistory(), 5)

	require.Equal(t, 10, a.Samples)
	require.Equal(t, -6, a.Min)
	require.Equal(t, 7, a.Max)
	require.InDelta(t, 2.0, a.Mean, 1e-9)

	// Deltas at or above the buy threshold: 6, 5, 7, 5, 6
	require.Equal(t, 5, a.BuyReady)
	require.InDelta(t, 0.5, a.BuyReadyShare(), 1e-9)

	total := 0
	for _, b := range a.Buckets {
		total += b.Count
	}
	require.Equal(t, 10, total)
}

func TestAnalyzeDeltas_Empty(t *testing.T) {
	a := AnalyzeDeltas(nil, 5)

	require.Zero(t, a.Samples)
	require.Zero(t, a.BuyReady)
	require.Zero(t, a.BuyReadyShare())
	require.Empty(t, a.Buckets)
}
