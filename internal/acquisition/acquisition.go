package acquisition

import (
	"fmt"
	"math"
)

// Params holds the inputs acquisition functions need beyond the model
// prediction itself
type Params struct {
	// Best is the best objective observed so far (on the maximization scale)
	Best float64
	// Xi is the minimum improvement margin for expected improvement
	Xi float64
}

// Func scores a candidate from its predictive mean and stddev; higher
// values mark more promising candidates to sample next. Acquisition never
// evaluates the true objective.
type Func func(mean, stddev float64, p Params) float64

// Policy names accepted in configuration
const (
	PolicyExpectedImprovement = "expected_improvement"
	PolicyExplore             = "explore"
	PolicyExploit             = "exploit"
)

// ExpectedImprovement weights the predicted improvement over the current
// best by the probability mass the model puts above it. With zero
// predictive uncertainty it degenerates to ranking by predicted mean.
func ExpectedImprovement(mean, stddev float64, p Params) float64 {
	improvement := mean - p.Best - p.Xi
	if stddev < 1e-12 {
		return improvement
	}
	z := improvement / stddev
	return improvement*normalCDF(z) + stddev*normalPDF(z)
}

// ExploreOnly ranks purely by predictive uncertainty
func ExploreOnly(mean, stddev float64, p Params) float64 {
	return stddev
}

// ExploitOnly ranks purely by predicted mean
func ExploitOnly(mean, stddev float64, p Params) float64 {
	return mean
}

// ByName resolves a configured policy name to its function
func ByName(name string) (Func, error) {
	switch name {
	case PolicyExpectedImprovement:
		return ExpectedImprovement, nil
	case PolicyExplore:
		return ExploreOnly, nil
	case PolicyExploit:
		return ExploitOnly, nil
	default:
		return nil, fmt.Errorf("unknown acquisition policy: %s", name)
	}
}

// normalCDF is the cumulative distribution function of the standard
// normal distribution
func normalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// normalPDF is the probability density function of the standard normal
// distribution
func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2.0) / math.Sqrt(2.0*math.Pi)
}
