package embedding

import "fmt"

// Dimensions is the dimensionality of the produced embedding.
const Dimensions = 3

// Params configures the projector. The zero value is not usable; start from DefaultParams.
type Params struct {
	// Perplexity is the effective number of neighbours per point.
	Perplexity float64
	// Iterations is the gradient descent budget.
	Iterations int
	// Seed drives the random initial layout.
	Seed uint64
	// EarlyExaggeration multiplies P during the first ExaggerationIterations steps.
	EarlyExaggeration      float64
	ExaggerationIterations int
	// LearningRate of the optimiser; <= 0 selects max(N/EarlyExaggeration/4, 50).
	LearningRate float64
	// MinGradNorm stops optimisation once the gradient norm falls below it.
	MinGradNorm float64
}

// DefaultParams returns the fixed parameters used for the served embedding.
func DefaultParams() Params {
	return Params{
		Perplexity:             30,
		Iterations:             1000,
		Seed:                   42,
		EarlyExaggeration:      12,
		ExaggerationIterations: 250,
		MinGradNorm:            1e-7,
	}
}

func (p Params) validate() error {
	if p.Perplexity <= 0 {
		return fmt.Errorf("perplexity must be positive, got %g", p.Perplexity)
	}
	if p.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", p.Iterations)
	}
	if p.EarlyExaggeration < 1 {
		return fmt.Errorf("early exaggeration must be >= 1, got %g", p.EarlyExaggeration)
	}
	if p.ExaggerationIterations < 0 {
		return fmt.Errorf("exaggeration iterations must be >= 0, got %d", p.ExaggerationIterations)
	}
	return nil
}
