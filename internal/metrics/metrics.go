package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// MSE returns the mean squared error between a and b.
// a and b must have the same length.
func MSE(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	return floats.Dot(diff, diff) / float64(len(a))
}

// PSNR returns the peak signal-to-noise ratio in dB for the given data range.
// Identical inputs give +Inf.
func PSNR(a, b []float64, dataRange float64) float64 {
	mse := MSE(a, b)
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(dataRange*dataRange/mse)
}

// Mean returns the arithmetic mean of values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values) / float64(len(values))
}
