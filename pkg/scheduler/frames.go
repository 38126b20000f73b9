package scheduler

import (
	"time"

	"github.com/raykavin/tideshift/pkg/core"
)

// trimSlack is how far past the frame limit the series may grow before the
// window is copied into fresh backing arrays. Trimming on every candle would
// keep the old arrays alive through slice aliasing.
const trimSlack = 64

// Frame is the rolling candle window for one symbol. It mirrors the fixed
// fetch window the indicator stack was tuned on: once the limit is reached,
// old candles fall off as new ones arrive.
type Frame struct {
	df    *core.Dataframe
	limit int
}

// NewFrame creates an empty frame holding at most limit candles
func NewFrame(pair string, limit int) *Frame {
	return &Frame{
		df:    core.NewDataframe(pair),
		limit: limit,
	}
}

// Dataframe exposes the underlying series for the indicator pipeline
func (f *Frame) Dataframe() *core.Dataframe {
	return f.df
}

// Len returns the number of candles currently held
func (f *Frame) Len() int {
	return f.df.Len()
}

// LastTime returns the open time of the newest candle, or the zero time
// when the frame is empty
func (f *Frame) LastTime() time.Time {
	return f.df.LastTime()
}

// LastCandle rebuilds the newest candle from the series. Only call on a
// non-empty frame.
func (f *Frame) LastCandle() core.Candle {
	return core.Candle{
		Pair:      f.df.Pair,
		Time:      f.df.LastTime(),
		UpdatedAt: f.df.LastUpdate,
		Open:      f.df.Open.Last(0),
		Close:     f.df.Close.Last(0),
		High:      f.df.High.Last(0),
		Low:       f.df.Low.Last(0),
		Volume:    f.df.Volume.Last(0),
		Complete:  true,
	}
}

// Clear drops every candle, forcing a fresh preload
func (f *Frame) Clear() {
	f.df = core.NewDataframe(f.df.Pair)
}

// IsLate reports whether the candle is older than the newest one held;
// late candles would corrupt the series order
func (f *Frame) IsLate(candle core.Candle) bool {
	return f.df.Len() > 0 && candle.Time.Before(f.df.LastTime())
}

// Update appends or replaces the candle and keeps the window at its limit.
// Late candles are dropped.
func (f *Frame) Update(candle core.Candle) {
	if f.IsLate(candle) {
		return
	}

	f.df.Upsert(candle)
	f.trim()
}

// trim copies the trailing window into fresh arrays so the dropped head can
// be collected. Metadata is left empty; the pipeline rebuilds it on the
// next Fill.
func (f *Frame) trim() {
	if f.df.Len() <= f.limit+trimSlack {
		return
	}

	sample := f.df.Sample(f.limit)

	fresh := core.NewDataframe(f.df.Pair)
	fresh.Time = append([]time.Time(nil), sample.Time...)
	fresh.Open = append(core.Series[float64](nil), sample.Open...)
	fresh.Close = append(core.Series[float64](nil), sample.Close...)
	fresh.High = append(core.Series[float64](nil), sample.High...)
	fresh.Low = append(core.Series[float64](nil), sample.Low...)
	fresh.Volume = append(core.Series[float64](nil), sample.Volume...)
	fresh.LastUpdate = sample.LastUpdate

	f.df = fresh
}
