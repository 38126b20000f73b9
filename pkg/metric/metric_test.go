package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Zero(t, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
}

func TestWinRate(t *testing.T) {
	assert.Zero(t, WinRate(nil))
	assert.InDelta(t, 0.5, WinRate([]float64{1, -1, 2, -2}), 1e-9)

	// break-even is not a win
	assert.InDelta(t, 0.25, WinRate([]float64{1, 0, -1, -3}), 1e-9)
}

func TestPayoff(t *testing.T) {
	// avg win 3 vs avg loss 1.5
	assert.InDelta(t, 2.0, Payoff([]float64{4, 2, -1, -2}), 1e-9)

	assert.EqualValues(t, 10, Payoff([]float64{1, 2}), "loss-free sample is capped")
	assert.Zero(t, Payoff([]float64{-1, -2}))
	assert.Zero(t, Payoff(nil))
}

func TestProfitFactor(t *testing.T) {
	assert.InDelta(t, 2.0, ProfitFactor([]float64{4, 2, -1, -2}), 1e-9)

	assert.EqualValues(t, 10, ProfitFactor([]float64{1, 2}), "loss-free sample is capped")
	assert.Zero(t, ProfitFactor([]float64{-1, -2}))
}

func TestBootstrap_ConstantSample(t *testing.T) {
	interval := Bootstrap([]float64{2, 2, 2, 2}, Mean, 200, 0.95)

	assert.InDelta(t, 2.0, interval.Mean, 1e-9)
	assert.InDelta(t, 2.0, interval.Lower, 1e-9)
	assert.InDelta(t, 2.0, interval.Upper, 1e-9)
	assert.InDelta(t, 0.0, interval.StdDev, 1e-9)
}

func TestBootstrap_BoundsOrdered(t *testing.T) {
	values := []float64{-3, -1, 0, 1, 2, 4, 6}
	interval := Bootstrap(values, Mean, 500, 0.90)

	assert.LessOrEqual(t, interval.Lower, interval.Mean)
	assert.LessOrEqual(t, interval.Mean, interval.Upper)
	assert.GreaterOrEqual(t, interval.Lower, -3.0)
	assert.LessOrEqual(t, interval.Upper, 6.0)
}

func TestBootstrap_EmptyInput(t *testing.T) {
	assert.Zero(t, Bootstrap(nil, Mean, 100, 0.95))
	assert.Zero(t, Bootstrap([]float64{1}, Mean, 0, 0.95))
}
