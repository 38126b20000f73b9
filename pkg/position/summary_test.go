package position

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func fixtureSummary() Summary {
	return Summary{
		Symbol:      "BTCUSDT",
		Win:         []float64{12, 8},
		WinPercent:  []float64{0.02, 0.04},
		Lose:        []float64{-5},
		LosePercent: []float64{-0.01},
		Volume:      5000,
	}
}

func TestSummaryBasics(t *testing.T) {
	s := fixtureSummary()

	require.Equal(t, 3, s.Trades())
	require.InDelta(t, 15.0, s.Profit(), 1e-12)
	require.InDelta(t, 66.6667, s.WinRate(), 1e-3)
	require.ElementsMatch(t, []float64{12, 8, -5}, s.Returns())
}

func TestSummaryRatios(t *testing.T) {
	s := fixtureSummary()

	// Average win 3% against average loss 1%
	require.InDelta(t, 3.0, s.Payoff(), 1e-12)

	// Gross win 6% against gross loss 1%
	require.InDelta(t, 6.0, s.ProfitFactor(), 1e-12)

	// sqrt(3) * mean(12, 8, -5) / sampleStd(12, 8, -5)
	require.InDelta(t, 0.9744, s.SQN(), 1e-3)
}

func TestSummaryEmptySeries(t *testing.T) {
	s := Summary{Symbol: "BTCUSDT"}

	require.Equal(t, 0, s.Trades())
	require.Zero(t, s.Profit())
	require.Zero(t, s.WinRate())
	require.Zero(t, s.Payoff())
	require.Zero(t, s.ProfitFactor())
	require.Zero(t, s.SQN())

	// Losses alone must not divide by zero either
	onlyWins := Summary{Win: []float64{5}, WinPercent: []float64{0.02}}
	require.Zero(t, onlyWins.Payoff())
	require.Zero(t, onlyWins.ProfitFactor())
}

func TestSummaryStringRendersTable(t *testing.T) {
	out := fixtureSummary().String()

	require.True(t, strings.Contains(out, "BTCUSDT"))
	require.True(t, strings.Contains(out, "Trades"))
	require.True(t, strings.Contains(out, "Pr.Fact"))

	// Profit and volume are denominated in the quote currency
	require.True(t, strings.Contains(out, "USDT"))
}
