package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDataframe_UpsertAppendsAndUpdates(t *testing.T) {
	df := NewDataframe("BTCUSDT")
	open := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	df.Upsert(Candle{Pair: "BTCUSDT", Time: open, Open: 100, Close: 101, High: 102, Low: 99, Volume: 10})
	require.Equal(t, 1, df.Len())

	// same open time replaces the forming candle
	df.Upsert(Candle{Pair: "BTCUSDT", Time: open, Open: 100, Close: 103, High: 104, Low: 99, Volume: 15})
	require.Equal(t, 1, df.Len())
	require.Equal(t, 103.0, df.Close.Last(0))
	require.Equal(t, 104.0, df.High.Last(0))

	df.Upsert(Candle{Pair: "BTCUSDT", Time: open.Add(15 * time.Minute), Open: 103, Close: 105, High: 105, Low: 102, Volume: 12})
	require.Equal(t, 2, df.Len())
	require.Equal(t, open.Add(15*time.Minute), df.LastTime())
}

func TestDataframe_Sample(t *testing.T) {
	df := NewDataframe("ETHUSDT")
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		df.Upsert(Candle{
			Pair:   "ETHUSDT",
			Time:   start.Add(time.Duration(i) * time.Hour),
			Close:  float64(100 + i),
			Open:   float64(99 + i),
			High:   float64(101 + i),
			Low:    float64(98 + i),
			Volume: 1,
		})
	}
	df.Metadata["rsi"] = Series[float64]{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	sample := df.Sample(3)
	require.Equal(t, 3, sample.Len())
	require.Equal(t, 109.0, sample.Close.Last(0))
	require.Equal(t, Series[float64]{8, 9, 10}, sample.Metadata["rsi"])

	// larger than the frame returns everything
	require.Equal(t, 10, df.Sample(50).Len())
}

func TestSeries_CrossoverWithin(t *testing.T) {
	ref := Series[float64]{10, 10, 10, 10, 10}

	// crossed two candles ago, still above
	s := Series[float64]{9, 9, 9, 11, 12}
	require.True(t, s.CrossoverWithin(ref, 3))
	require.False(t, s.CrossoverWithin(ref, 1))

	// never crossed
	require.False(t, Series[float64]{9, 9, 9, 9, 9}.CrossoverWithin(ref, 3))

	// crossed on the latest candle
	require.True(t, Series[float64]{9, 9, 9, 9, 11}.CrossoverWithin(ref, 3))

	// too short to evaluate
	require.False(t, Series[float64]{11}.CrossoverWithin(ref, 3))
}

func TestPriorityQueue_OrdersCandlesByTime(t *testing.T) {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	q := NewPriorityQueue(nil)
	q.Push(Candle{Pair: "ETHUSDT", Time: base.Add(2 * time.Hour)})
	q.Push(Candle{Pair: "BTCUSDT", Time: base})
	q.Push(Candle{Pair: "ETHUSDT", Time: base})
	q.Push(Candle{Pair: "BTCUSDT", Time: base.Add(time.Hour)})

	require.Equal(t, 4, q.Len())

	first := q.Pop().(Candle)
	second := q.Pop().(Candle)
	third := q.Pop().(Candle)
	fourth := q.Pop().(Candle)

	require.Equal(t, base, first.Time)
	require.Equal(t, "BTCUSDT", first.Pair) // pair breaks the tie
	require.Equal(t, "ETHUSDT", second.Pair)
	require.Equal(t, base.Add(time.Hour), third.Time)
	require.Equal(t, base.Add(2*time.Hour), fourth.Time)
	require.Nil(t, q.Pop())
}
