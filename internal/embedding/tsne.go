// Package embedding projects high-dimensional feature vectors into 3D with
// t-distributed stochastic neighbour embedding (exact gradient, O(N²) memory).
package embedding

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	emberrors "github.com/23skdu/embedview/internal/errors"
)

const (
	machineEpsilon   = 2.220446049250313e-16
	minGain          = 0.01
	perplexityTol    = 1e-5
	perplexitySteps  = 100
	cancelCheckEvery = 50
)

// Coordinate is one embedded point.
type Coordinate [Dimensions]float64

// Result is the output of a projection.
type Result struct {
	Coords     []Coordinate
	KL         float64
	Iterations int
}

// Projector runs t-SNE with fixed parameters.
type Projector struct {
	params Params
	logger zerolog.Logger
}

// NewProjector creates a projector.
func NewProjector(params Params, logger zerolog.Logger) *Projector {
	return &Projector{
		params: params,
		logger: logger.With().Str("component", "projector").Logger(),
	}
}

// Params returns the projector configuration.
func (p *Projector) Params() Params {
	return p.params
}

// Project embeds features into 3D, preserving input order.
//
// It fails with embedding_precondition when the input is empty, ragged, holds
// NaN or infinite values, or has no more rows than the perplexity.
func (p *Projector) Project(ctx context.Context, features [][]float64) (*Result, error) {
	if err := p.params.validate(); err != nil {
		return nil, emberrors.Wrap(err, emberrors.ErrorTypeEmbeddingPrecondition, "project", "invalid parameters")
	}
	n := len(features)
	if n == 0 {
		return nil, emberrors.NewEmbeddingPrecondition("no feature vectors to embed")
	}
	d := len(features[0])
	if d == 0 {
		return nil, emberrors.NewEmbeddingPrecondition("feature vectors are empty")
	}
	for i, v := range features {
		if len(v) != d {
			return nil, emberrors.NewEmbeddingPrecondition(
				fmt.Sprintf("feature vector %d has dimension %d, expected %d", i, len(v), d))
		}
		for j, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, emberrors.NewEmbeddingPrecondition(
					fmt.Sprintf("feature vector %d has non-finite value %g at position %d", i, x, j)).
					WithContext("row", i)
			}
		}
	}
	if p.params.Perplexity >= float64(n) {
		return nil, emberrors.NewEmbeddingPrecondition(
			fmt.Sprintf("perplexity (%g) must be less than n_samples (%d)", p.params.Perplexity, n)).
			WithContext("n_samples", n)
	}

	x := mat.NewDense(n, d, nil)
	for i, v := range features {
		x.SetRow(i, v)
	}

	P, err := p.jointProbabilities(ctx, squaredDistances(x))
	if err != nil {
		return nil, err
	}

	y := p.initialLayout(n)
	iters, err := p.optimize(ctx, P, y)
	if err != nil {
		return nil, err
	}

	yd := y.RawMatrix().Data
	coords := make([]Coordinate, n)
	for i := range coords {
		copy(coords[i][:], yd[i*Dimensions:(i+1)*Dimensions])
	}

	kl := klDivergence(P, yd, degreesOfFreedom())
	p.logger.Info().
		Int("points", n).
		Int("dimensions", d).
		Int("iterations", iters).
		Float64("kl_divergence", kl).
		Msg("embedding optimised")

	return &Result{Coords: coords, KL: kl, Iterations: iters}, nil
}

// degreesOfFreedom of the Student-t kernel in the embedded space.
func degreesOfFreedom() float64 {
	return math.Max(Dimensions-1, 1)
}

// squaredDistances returns the pairwise squared Euclidean distances of the rows of x.
func squaredDistances(x *mat.Dense) *mat.SymDense {
	n, _ := x.Dims()
	var gram mat.SymDense
	gram.SymOuterK(1, x)

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := gram.At(i, i) + gram.At(j, j) - 2*gram.At(i, j)
			if v < 0 {
				v = 0
			}
			out.SetSym(i, j, v)
		}
	}
	return out
}

// jointProbabilities calibrates a Gaussian per row to the target perplexity and
// returns the symmetrised joint distribution as a dense N×N matrix summing to 1.
func (p *Projector) jointProbabilities(ctx context.Context, dist *mat.SymDense) (*mat.Dense, error) {
	n := dist.SymmetricDim()
	cond := mat.NewDense(n, n, nil)
	raw := cond.RawMatrix()
	desired := math.Log(p.params.Perplexity)

	parallelRows(n, func(i int) {
		row := make([]float64, n)
		for j := 0; j < n; j++ {
			row[j] = dist.At(i, j)
		}
		conditionalRow(row, i, desired, raw.Data[i*raw.Stride:i*raw.Stride+n])
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	joint := mat.NewDense(n, n, nil)
	joint.Add(cond, cond.T())
	total := math.Max(mat.Sum(joint), machineEpsilon)
	joint.Apply(func(i, j int, v float64) float64 {
		if i == j {
			return 0
		}
		return math.Max(v/total, machineEpsilon)
	}, joint)
	return joint, nil
}

// conditionalRow binary-searches the Gaussian precision for row i so that the
// entropy of the conditional distribution equals desired (natural log).
func conditionalRow(dist []float64, i int, desired float64, out []float64) {
	beta := 1.0
	betaMin, betaMax := math.Inf(-1), math.Inf(1)

	for step := 0; step < perplexitySteps; step++ {
		sumP := 0.0
		for j, d := range dist {
			if j == i {
				out[j] = 0
				continue
			}
			out[j] = math.Exp(-d * beta)
			sumP += out[j]
		}
		if sumP == 0 {
			sumP = 1e-8
		}

		sumDistP := 0.0
		for j := range out {
			out[j] /= sumP
			sumDistP += dist[j] * out[j]
		}

		diff := math.Log(sumP) + beta*sumDistP - desired
		if math.Abs(diff) <= perplexityTol {
			return
		}
		if diff > 0 {
			betaMin = beta
			if math.IsInf(betaMax, 1) {
				beta *= 2
			} else {
				beta = (beta + betaMax) / 2
			}
		} else {
			betaMax = beta
			if math.IsInf(betaMin, -1) {
				beta /= 2
			} else {
				beta = (beta + betaMin) / 2
			}
		}
	}
}

// initialLayout draws N random positions from N(0, 1e-4²).
func (p *Projector) initialLayout(n int) *mat.Dense {
	rng := rand.New(rand.NewPCG(p.params.Seed, p.params.Seed))
	data := make([]float64, n*Dimensions)
	for k := range data {
		data[k] = 1e-4 * rng.NormFloat64()
	}
	return mat.NewDense(n, Dimensions, data)
}

func (p *Projector) optimize(ctx context.Context, P *mat.Dense, y *mat.Dense) (int, error) {
	n, _ := y.Dims()
	yd := y.RawMatrix().Data
	alpha := degreesOfFreedom()

	lr := p.params.LearningRate
	if lr <= 0 {
		lr = math.Max(float64(n)/p.params.EarlyExaggeration/4, 50)
	}

	grad := make([]float64, len(yd))
	update := make([]float64, len(yd))
	gains := make([]float64, len(yd))
	for k := range gains {
		gains[k] = 1
	}

	for it := 0; it < p.params.Iterations; it++ {
		if it%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return it, err
			}
		}

		exaggeration, momentum := 1.0, 0.8
		if it < p.params.ExaggerationIterations {
			exaggeration, momentum = p.params.EarlyExaggeration, 0.5
		}

		gradient(P, yd, grad, exaggeration, alpha)

		for k := range grad {
			if update[k]*grad[k] < 0 {
				gains[k] += 0.2
			} else {
				gains[k] *= 0.8
			}
			if gains[k] < minGain {
				gains[k] = minGain
			}
			grad[k] *= gains[k]
			update[k] = momentum*update[k] - lr*grad[k]
			yd[k] += update[k]
		}

		norm := floats.Norm(grad, 2)
		if it%cancelCheckEvery == 0 {
			p.logger.Debug().Int("iteration", it).Float64("grad_norm", norm).Msg("gradient step")
		}
		if it >= p.params.ExaggerationIterations && norm < p.params.MinGradNorm {
			return it + 1, nil
		}
	}
	return p.params.Iterations, nil
}

// kernel evaluates the unnormalised Student-t affinity for squared distance d2.
func kernel(d2, alpha float64) float64 {
	t := 1 + d2/alpha
	switch alpha {
	case 1:
		return 1 / t
	case 2:
		return 1 / (t * math.Sqrt(t))
	default:
		return math.Pow(t, -(alpha+1)/2)
	}
}

func sqDist(y []float64, i, j int) float64 {
	var s float64
	for k := 0; k < Dimensions; k++ {
		diff := y[i*Dimensions+k] - y[j*Dimensions+k]
		s += diff * diff
	}
	return s
}

// normalizer returns the sum of the off-diagonal kernel values.
func normalizer(y []float64, alpha float64) float64 {
	n := len(y) / Dimensions
	rowSums := make([]float64, n)
	parallelRows(n, func(i int) {
		var s float64
		for j := 0; j < n; j++ {
			if j != i {
				s += kernel(sqDist(y, i, j), alpha)
			}
		}
		rowSums[i] = s
	})
	return math.Max(floats.Sum(rowSums), machineEpsilon)
}

// gradient writes dKL/dy into grad.
func gradient(P *mat.Dense, y, grad []float64, exaggeration, alpha float64) {
	n := len(y) / Dimensions
	sumQ := normalizer(y, alpha)
	c := 2 * (alpha + 1) / alpha
	raw := P.RawMatrix()

	parallelRows(n, func(i int) {
		var g [Dimensions]float64
		prow := raw.Data[i*raw.Stride : i*raw.Stride+n]
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			d2 := sqDist(y, i, j)
			q := math.Max(kernel(d2, alpha)/sumQ, machineEpsilon)
			f := (exaggeration*prow[j] - q) / (1 + d2/alpha)
			for k := 0; k < Dimensions; k++ {
				g[k] += f * (y[i*Dimensions+k] - y[j*Dimensions+k])
			}
		}
		for k := 0; k < Dimensions; k++ {
			grad[i*Dimensions+k] = c * g[k]
		}
	})
}

func klDivergence(P *mat.Dense, y []float64, alpha float64) float64 {
	n := len(y) / Dimensions
	sumQ := normalizer(y, alpha)
	raw := P.RawMatrix()

	rowKL := make([]float64, n)
	parallelRows(n, func(i int) {
		var s float64
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			pij := raw.Data[i*raw.Stride+j]
			q := math.Max(kernel(sqDist(y, i, j), alpha)/sumQ, machineEpsilon)
			s += pij * math.Log(math.Max(pij, machineEpsilon)/q)
		}
		rowKL[i] = s
	})
	return floats.Sum(rowKL)
}

// parallelRows runs fn for every row index, partitioned across GOMAXPROCS workers.
// Each index is visited by exactly one goroutine.
func parallelRows(n int, fn func(i int)) {
	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	if chunk < 1 {
		chunk = 1
	}

	var g errgroup.Group
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				fn(i)
			}
			return nil
		})
	}
	_ = g.Wait()
}
