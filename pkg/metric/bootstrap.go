package metric

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// Measure folds a sample into one statistic
type Measure func([]float64) float64

// BootstrapInterval is the confidence interval of a resampled statistic
type BootstrapInterval struct {
	Lower  float64
	Upper  float64
	Mean   float64
	StdDev float64
}

// Bootstrap estimates the sampling distribution of a statistic by drawing
// the values with replacement iterations times, and returns the quantile
// interval at the given confidence level together with the mean and the
// standard deviation of the resampled statistic.
func Bootstrap(values []float64, measure Measure, iterations int, confidence float64) BootstrapInterval {
	if len(values) == 0 || iterations <= 0 {
		return BootstrapInterval{}
	}

	stats := make([]float64, 0, iterations)
	resample := make([]float64, len(values))

	for i := 0; i < iterations; i++ {
		for j := range resample {
			resample[j] = lo.Sample(values)
		}
		stats = append(stats, measure(resample))
	}

	sort.Float64s(stats)
	tail := (1 - confidence) / 2

	mean, stdDev := stat.MeanStdDev(stats, nil)
	return BootstrapInterval{
		Lower:  stat.Quantile(tail, stat.LinInterp, stats, nil),
		Upper:  stat.Quantile(1-tail, stat.LinInterp, stats, nil),
		Mean:   mean,
		StdDev: stdDev,
	}
}
