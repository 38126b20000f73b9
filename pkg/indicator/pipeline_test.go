package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/stretchr/testify/require"
)

func buildFrame(t *testing.T, candles int, price func(i int) float64) *core.Dataframe {
	t.Helper()

	df := core.NewDataframe("BTCUSDT")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < candles; i++ {
		p := price(i)
		df.Upsert(core.Candle{
			Pair:     "BTCUSDT",
			Time:     start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     p * 0.999,
			Close:    p,
			High:     p * 1.004,
			Low:      p * 0.996,
			Volume:   100 + float64(i%7),
			Complete: true,
		})
	}

	return df
}

func trendingPrice(i int) float64 {
	return 100 + 0.05*float64(i) + 2*math.Sin(float64(i)/9)
}

func TestPipeline_NotReadyBeforeWarmup(t *testing.T) {
	cfg := core.DefaultConfig()
	p, err := NewPipeline(cfg, "15m")
	require.NoError(t, err)

	df := buildFrame(t, p.WarmupPeriod()-1, trendingPrice)
	p.Fill(df)

	snap := p.Snap(df)
	require.False(t, snap.Ready)
	require.NotZero(t, snap.Close)
	require.NotZero(t, snap.PrevClose)
}

func TestPipeline_SnapshotAfterWarmup(t *testing.T) {
	cfg := core.DefaultConfig()
	p, err := NewPipeline(cfg, "15m")
	require.NoError(t, err)

	df := buildFrame(t, p.WarmupPeriod()+40, trendingPrice)
	p.Fill(df)

	snap := p.Snap(df)
	require.True(t, snap.Ready)

	require.Equal(t, df.Close.Last(0), snap.Close)
	require.Equal(t, df.Close.Last(1), snap.PrevClose)

	require.Greater(t, snap.EMAFast, 0.0)
	require.Greater(t, snap.EMASlow, 0.0)
	require.Greater(t, snap.EMALong, 0.0)

	// sustained uptrend gives a positive long EMA slope
	require.Greater(t, snap.EMALongSlope, 0.0)

	require.GreaterOrEqual(t, snap.RSI, 0.0)
	require.LessOrEqual(t, snap.RSI, 100.0)

	require.Greater(t, snap.BBUpper, snap.BBMiddle)
	require.Greater(t, snap.BBMiddle, snap.BBLower)

	require.Greater(t, snap.ADX, 0.0)
	require.Greater(t, snap.ATRPct, 0.0)
	require.Less(t, snap.ATRPct, 0.05)

	require.Greater(t, snap.VolumeMean, 0.0)
}

func TestPipeline_WindowLowTracksLowestLow(t *testing.T) {
	cfg := core.DefaultConfig()
	p, err := NewPipeline(cfg, "15m")
	require.NoError(t, err)

	df := buildFrame(t, p.WarmupPeriod()+100, trendingPrice)
	p.Fill(df)
	snap := p.Snap(df)

	lowCandles, err := cfg.LowWindowCandles("15m")
	require.NoError(t, err)
	require.Equal(t, 96, lowCandles)

	expected := df.Low.Last(0)
	for i := 1; i < lowCandles; i++ {
		if v := df.Low.Last(i); v < expected {
			expected = v
		}
	}

	require.InDelta(t, expected, snap.WindowLow, 1e-9)
}

func TestPipeline_ZScoreSignReflectsDeviation(t *testing.T) {
	cfg := core.DefaultConfig()
	p, err := NewPipeline(cfg, "15m")
	require.NoError(t, err)

	// flat series with a spike on the final candle
	df := buildFrame(t, p.WarmupPeriod()+20, func(i int) float64 {
		return 100 + 0.3*math.Sin(float64(i)/5)
	})
	df.Upsert(core.Candle{
		Pair:   "BTCUSDT",
		Time:   df.LastTime().Add(15 * time.Minute),
		Open:   100,
		Close:  108,
		High:   108.5,
		Low:    99.9,
		Volume: 100,
	})

	p.Fill(df)
	snap := p.Snap(df)
	require.True(t, snap.Ready)
	require.Greater(t, snap.ZScore, 1.0)
}

func TestPipeline_RejectsUnknownTimeframe(t *testing.T) {
	_, err := NewPipeline(core.DefaultConfig(), "fortnight")
	require.Error(t, err)
}
