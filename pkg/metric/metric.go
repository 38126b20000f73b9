// Package metric provides the performance statistics used by the trade
// summaries and the signal analytics: aggregate ratios over closed trade
// returns plus a bootstrap estimator for their confidence intervals.
package metric

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ratioCap bounds payoff and profit factor when the sample has no losses,
// so loss-free runs do not report infinities
const ratioCap = 10

// Mean is the arithmetic mean of the values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// WinRate is the fraction of strictly positive values
func WinRate(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	wins := 0
	for _, v := range values {
		if v > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(values))
}

// Payoff is the ratio of the average win to the average loss
func Payoff(values []float64) float64 {
	var wins, losses []float64
	for _, v := range values {
		if v >= 0 {
			wins = append(wins, v)
		} else {
			losses = append(losses, math.Abs(v))
		}
	}

	if len(wins) == 0 {
		return 0
	}
	if len(losses) == 0 {
		return ratioCap
	}

	avgLoss := stat.Mean(losses, nil)
	if avgLoss == 0 {
		return ratioCap
	}

	return math.Abs(stat.Mean(wins, nil) / avgLoss)
}

// ProfitFactor is the ratio of summed wins to summed losses
func ProfitFactor(values []float64) float64 {
	var totalWins, totalLosses float64
	for _, v := range values {
		if v >= 0 {
			totalWins += v
		} else {
			totalLosses += v
		}
	}

	if totalLosses == 0 {
		return ratioCap
	}

	return math.Abs(totalWins / totalLosses)
}
