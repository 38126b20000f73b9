package signal

import (
	"testing"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/stretchr/testify/require"
)

func TestAggregator_AllRulesBullish(t *testing.T) {
	agg := NewAggregator(core.DefaultConfig())

	res := agg.Evaluate(bullishSnapshot())

	require.Equal(t, 7, res.Bullish)
	require.Zero(t, res.Bearish)
	require.Equal(t, 7, res.Delta)
	require.Len(t, res.Reasons, 7)
	require.Len(t, res.Top3, 3)
}

func TestAggregator_AllRulesBearish(t *testing.T) {
	agg := NewAggregator(core.DefaultConfig())

	res := agg.Evaluate(bearishSnapshot())

	require.Zero(t, res.Bullish)
	require.Equal(t, 7, res.Bearish)
	require.Equal(t, -7, res.Delta)
}

func TestAggregator_EMACrossBeatsOrder(t *testing.T) {
	agg := NewAggregator(core.DefaultConfig())

	snap := bullishSnapshot()
	res := agg.Evaluate(snap)
	require.Equal(t, ReasonEMACross, ReasonCode(res.Reasons[0]))

	snap.EMACrossedUp = false
	res = agg.Evaluate(snap)
	require.Equal(t, ReasonEMAOrder, ReasonCode(res.Reasons[0]))
	require.Equal(t, 7, res.Delta)
}

func TestAggregator_MACDNeedsHistogramAndCross(t *testing.T) {
	agg := NewAggregator(core.DefaultConfig())

	// Positive histogram without a recent cross contributes nothing
	snap := bullishSnapshot()
	snap.MACDCrossedUp = false
	res := agg.Evaluate(snap)
	require.Equal(t, 6, res.Delta)

	// Negative histogram without a recent cross down contributes nothing
	snap = bearishSnapshot()
	snap.MACDCrossedDown = false
	res = agg.Evaluate(snap)
	require.Equal(t, -6, res.Delta)
}

func TestAggregator_RSIBands(t *testing.T) {
	agg := NewAggregator(core.DefaultConfig())

	snap := bullishSnapshot()

	snap.RSI, snap.PrevRSI = 25, 35
	res := agg.Evaluate(snap)
	require.Contains(t, codes(res.Reasons), ReasonRSIOversold)

	snap.RSI, snap.PrevRSI = 75, 60
	res = agg.Evaluate(snap)
	require.Contains(t, codes(res.Reasons), ReasonRSIOverbought)

	snap.RSI, snap.PrevRSI = 50, 45
	res = agg.Evaluate(snap)
	require.Contains(t, codes(res.Reasons), ReasonRSIRising)

	// Falling in the neutral band votes nowhere
	snap.RSI, snap.PrevRSI = 45, 50
	res = agg.Evaluate(snap)
	require.NotContains(t, codes(res.Reasons), ReasonRSIRising)
}

func TestAggregator_ADXRequiresDirectionalEdge(t *testing.T) {
	agg := NewAggregator(core.DefaultConfig())

	snap := bullishSnapshot()
	snap.PlusDI = 20
	snap.MinusDI = 20

	res := agg.Evaluate(snap)
	require.NotContains(t, codes(res.Reasons), ReasonADXTrend)
	require.Equal(t, 6, res.Delta)
}

func TestAggregator_VolumeNeedsDirection(t *testing.T) {
	agg := NewAggregator(core.DefaultConfig())

	snap := bullishSnapshot()
	snap.PrevClose = snap.Close

	res := agg.Evaluate(snap)
	require.NotContains(t, codes(res.Reasons), ReasonVolumeSurge)
}

func TestAggregator_SlopeDeadBand(t *testing.T) {
	agg := NewAggregator(core.DefaultConfig())

	// A mild negative slope above the threshold votes on neither side
	snap := bullishSnapshot()
	snap.EMALongSlope = -0.001

	res := agg.Evaluate(snap)
	require.NotContains(t, codes(res.Reasons), ReasonEMALongSlope)
	require.Equal(t, 6, res.Delta)
}

func TestReasonCode(t *testing.T) {
	require.Equal(t, "ema_cross", ReasonCode("ema_cross: fast EMA crossed above slow (1.0 > 0.9)"))
	require.Equal(t, "bare", ReasonCode("bare"))
}

func codes(reasons []string) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = ReasonCode(r)
	}
	return out
}
