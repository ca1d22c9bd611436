package svdlab

import "fmt"

type Option func(*Processor) error

// WithPowerIterations sets the number of power iterations of the randomized SVD.
// More iterations bring the approximation closer to the exact truncation.
func WithPowerIterations(n int) Option {
	return func(p *Processor) error {
		if n < 0 {
			return fmt.Errorf("power iterations must be >= 0, got %d", n)
		}
		p.powerIterations = n
		return nil
	}
}

// WithOversamples sets how many extra random directions the randomized SVD samples
// beyond the requested rank.
func WithOversamples(n int) Option {
	return func(p *Processor) error {
		if n < 0 {
			return fmt.Errorf("oversamples must be >= 0, got %d", n)
		}
		p.oversamples = n
		return nil
	}
}

// WithSeed fixes the random source of the randomized SVD and of the synthetic noise.
func WithSeed(seed uint64) Option {
	return func(p *Processor) error {
		p.seed = seed
		return nil
	}
}

// WithNoiseSigma sets the standard deviation of the Gaussian noise added in denoise mode.
func WithNoiseSigma(sigma float64) Option {
	return func(p *Processor) error {
		if sigma < 0 {
			return fmt.Errorf("noise sigma must be >= 0, got %g", sigma)
		}
		p.noiseSigma = sigma
		return nil
	}
}
