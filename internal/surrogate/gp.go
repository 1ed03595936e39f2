package surrogate

import (
	"errors"
	"fmt"
	"math"

	"github.com/auto-tuner-laser/tuning-core/pkg/utils"
)

// ErrInsufficientData indicates a fit attempt with fewer than two observations
var ErrInsufficientData = errors.New("insufficient data: at least 2 observations required")

// Sample is one (normalized parameter vector, objective) observation.
// Noise optionally hints the objective's measurement stddev.
type Sample struct {
	X     []float64
	Y     float64
	Noise float64
}

// GP is a Gaussian-process regression model with a squared-exponential
// kernel over normalized parameter vectors. Hyperparameters are
// re-estimated from the full sample set on every Fit call; there is no
// incremental update, which is fine at the iteration counts a physical
// tuning session can afford.
type GP struct {
	samples []Sample

	lengthScale float64
	signalVar   float64
	noiseVar    float64

	// Fit products: Cholesky factor of the covariance matrix and the
	// precomputed weight vector for mean prediction.
	chol  *choleskyFactor
	alpha []float64

	// Objective standardization applied before fitting
	yMean float64
	yStd  float64

	fitted bool
}

// NewGP creates an unfitted Gaussian process
func NewGP() *GP {
	return &GP{}
}

// Fitted reports whether the model has been fit
func (gp *GP) Fitted() bool {
	return gp.fitted
}

// Fit estimates hyperparameters and factorizes the covariance matrix from
// the full sample history. Fails with ErrInsufficientData for fewer than
// two samples.
func (gp *GP) Fit(samples []Sample) error {
	if len(samples) < 2 {
		return ErrInsufficientData
	}

	dims := len(samples[0].X)
	if dims == 0 {
		return fmt.Errorf("samples have zero dimensions")
	}
	for i, s := range samples {
		if len(s.X) != dims {
			return fmt.Errorf("sample %d has %d dimensions, expected %d", i, len(s.X), dims)
		}
	}

	gp.samples = make([]Sample, len(samples))
	for i, s := range samples {
		x := make([]float64, dims)
		copy(x, s.X)
		gp.samples[i] = Sample{X: x, Y: s.Y, Noise: s.Noise}
	}

	// Standardize objectives so the kernel amplitude can stay at 1
	ys := make([]float64, len(gp.samples))
	for i, s := range gp.samples {
		ys[i] = s.Y
	}
	gp.yMean = utils.Mean(ys)
	gp.yStd = utils.StdDev(ys)
	if gp.yStd < 1e-12 {
		gp.yStd = 1
	}

	gp.lengthScale = gp.estimateLengthScale()
	gp.signalVar = 1.0
	gp.noiseVar = gp.estimateNoiseVariance()

	n := len(gp.samples)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
		for j := range cov[i] {
			cov[i][j] = gp.kernel(gp.samples[i].X, gp.samples[j].X)
		}
		cov[i][i] += gp.noiseVar
	}

	chol, err := factorizeWithJitter(cov)
	if err != nil {
		return fmt.Errorf("covariance factorization failed: %w", err)
	}
	gp.chol = chol

	std := make([]float64, n)
	for i, s := range gp.samples {
		std[i] = (s.Y - gp.yMean) / gp.yStd
	}
	gp.alpha = chol.Solve(std)
	gp.fitted = true
	return nil
}

// Predict returns the predictive mean and stddev of the objective at the
// given normalized vector. Before Fit it returns the uninformative prior.
func (gp *GP) Predict(x []float64) (mean, stddev float64) {
	if !gp.fitted {
		return 0, 1
	}

	n := len(gp.samples)
	k := make([]float64, n)
	for i, s := range gp.samples {
		k[i] = gp.kernel(x, s.X)
	}

	var m float64
	for i := range k {
		m += k[i] * gp.alpha[i]
	}

	// Predictive variance: k(x,x) - k*' K^-1 k*, via the Cholesky factor
	v := gp.chol.SolveLower(k)
	variance := gp.signalVar
	for _, vi := range v {
		variance -= vi * vi
	}
	if variance < 0 {
		variance = 0
	}

	return gp.yMean + m*gp.yStd, math.Sqrt(variance) * gp.yStd
}

// kernel is the squared-exponential covariance between two vectors
func (gp *GP) kernel(x1, x2 []float64) float64 {
	var sum float64
	for i := range x1 {
		diff := x1[i] - x2[i]
		sum += diff * diff
	}
	return gp.signalVar * math.Exp(-sum/(2*gp.lengthScale*gp.lengthScale))
}

// estimateLengthScale uses the median pairwise distance heuristic, which
// adapts the kernel width to how spread out the samples are
func (gp *GP) estimateLengthScale() float64 {
	dists := make([]float64, 0, len(gp.samples)*(len(gp.samples)-1)/2)
	for i := 0; i < len(gp.samples); i++ {
		for j := i + 1; j < len(gp.samples); j++ {
			var sum float64
			for d := range gp.samples[i].X {
				diff := gp.samples[i].X[d] - gp.samples[j].X[d]
				sum += diff * diff
			}
			if dist := math.Sqrt(sum); dist > 0 {
				dists = append(dists, dist)
			}
		}
	}
	if len(dists) == 0 {
		// All samples coincide; any positive width works
		return 0.5
	}
	scale := utils.Median(dists)
	if scale < 1e-3 {
		scale = 1e-3
	}
	return scale
}

// estimateNoiseVariance combines a floor with the per-sample noise hints,
// expressed on the standardized objective scale
func (gp *GP) estimateNoiseVariance() float64 {
	const floor = 1e-6

	var sum float64
	var count int
	for _, s := range gp.samples {
		if s.Noise > 0 {
			std := s.Noise / gp.yStd
			sum += std * std
			count++
		}
	}
	if count == 0 {
		return floor
	}
	noise := sum / float64(count)
	if noise < floor {
		noise = floor
	}
	return noise
}
