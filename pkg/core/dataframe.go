package core

import (
	"time"
)

// Dataframe is a time series container for OHLCV and custom indicator data
type Dataframe struct {
	Pair string

	Close  Series[float64]
	Open   Series[float64]
	High   Series[float64]
	Low    Series[float64]
	Volume Series[float64]

	Time       []time.Time
	LastUpdate time.Time

	// Custom metadata for indicator outputs
	Metadata map[string]Series[float64]
}

// NewDataframe creates an empty dataframe for the given pair
func NewDataframe(pair string) *Dataframe {
	return &Dataframe{
		Pair:     pair,
		Metadata: make(map[string]Series[float64]),
	}
}

// Len returns the number of candles stored
func (df Dataframe) Len() int {
	return len(df.Time)
}

// LastTime returns the open time of the most recent candle
// Returns the zero time when the dataframe is empty
func (df Dataframe) LastTime() time.Time {
	if len(df.Time) == 0 {
		return time.Time{}
	}
	return df.Time[len(df.Time)-1]
}

// Upsert appends a candle, or replaces the last row when the candle
// carries the same open time (exchange update of a forming candle)
func (df *Dataframe) Upsert(c Candle) {
	if last := len(df.Time) - 1; last >= 0 && c.Time.Equal(df.Time[last]) {
		df.Close[last] = c.Close
		df.Open[last] = c.Open
		df.High[last] = c.High
		df.Low[last] = c.Low
		df.Volume[last] = c.Volume
	} else {
		df.Close = append(df.Close, c.Close)
		df.Open = append(df.Open, c.Open)
		df.High = append(df.High, c.High)
		df.Low = append(df.Low, c.Low)
		df.Volume = append(df.Volume, c.Volume)
		df.Time = append(df.Time, c.Time)
	}
	df.LastUpdate = c.UpdatedAt
}

// Sample returns a subset of the dataframe with the last 'positions' elements
// Used for windowing operations on a dataframe
func (df Dataframe) Sample(positions int) Dataframe {
	size := len(df.Time)
	start := size - positions

	// Return the entire dataframe if requested sample is larger than dataframe
	if start <= 0 {
		return df
	}

	sample := Dataframe{
		Pair:       df.Pair,
		Close:      df.Close.LastValues(positions),
		Open:       df.Open.LastValues(positions),
		High:       df.High.LastValues(positions),
		Low:        df.Low.LastValues(positions),
		Volume:     df.Volume.LastValues(positions),
		Time:       df.Time[start:],
		LastUpdate: df.LastUpdate,
		Metadata:   make(map[string]Series[float64]),
	}

	for key := range df.Metadata {
		sample.Metadata[key] = df.Metadata[key].LastValues(positions)
	}

	return sample
}
