package noise

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Gaussian returns data perturbed by zero-mean additive Gaussian noise with
// standard deviation sigma, clipped to [0,1]. data is left untouched.
func Gaussian(data []float64, sigma float64, seed uint64) []float64 {
	normal := distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.NewPCG(seed, seed)}
	out := make([]float64, len(data))
	for i, v := range data {
		v += normal.Rand()
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		out[i] = v
	}
	return out
}
