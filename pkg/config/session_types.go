package config

import (
	"github.com/auto-tuner-laser/tuning-core/pkg/models"
)

// Parameter kinds accepted in a session definition
const (
	KindContinuous = "continuous"
	KindDiscrete   = "discrete"
)

// Acquisition policies accepted in a session definition
const (
	AcquisitionExpectedImprovement = "expected_improvement"
	AcquisitionExplore             = "explore"
	AcquisitionExploit             = "exploit"
)

// Optimization directions
const (
	DirectionMaximize = "maximize"
	DirectionMinimize = "minimize"
)

// ParameterDef declares one tunable engraving parameter and its range
type ParameterDef struct {
	Name string  `yaml:"name" json:"name"`
	Kind string  `yaml:"kind" json:"kind"`
	Min  float64 `yaml:"min" json:"min"`
	Max  float64 `yaml:"max" json:"max"`
	Step float64 `yaml:"step,omitempty" json:"step,omitempty"`
}

// ConvergenceDef holds the stopping knobs. Zero values disable a rule;
// defaults are applied at parse time, never hard-coded downstream.
type ConvergenceDef struct {
	// NoImprovementIterations stops after this many iterations without a new best
	NoImprovementIterations int `yaml:"no_improvement_iterations" json:"no_improvement_iterations"`
	// UncertaintyThreshold stops when predictive stddev at the best point drops below it
	UncertaintyThreshold float64 `yaml:"uncertainty_threshold" json:"uncertainty_threshold"`
	// MinIterations is the minimum observation count before convergence can fire
	MinIterations int `yaml:"min_iterations" json:"min_iterations"`
}

// WeightsDef configures signal aggregation. Signal weights cover the metric
// composite, the optional human rating, and the optional model prediction;
// sub-weights combine the metric sub-scores into the composite.
type WeightsDef struct {
	Metric float64 `yaml:"metric" json:"metric"`
	Human  float64 `yaml:"human" json:"human"`
	Model  float64 `yaml:"model" json:"model"`

	Contrast            float64 `yaml:"contrast" json:"contrast"`
	Sharpness           float64 `yaml:"sharpness" json:"sharpness"`
	HistogramSpread     float64 `yaml:"histogram_spread" json:"histogram_spread"`
	HistogramSimilarity float64 `yaml:"histogram_similarity" json:"histogram_similarity"`
}

// SessionDefinition is the one-shot input supplied when a tuning session is
// created: test image, focus region, parameter ranges, budget, and policies.
type SessionDefinition struct {
	Material       string              `yaml:"material" json:"material"`
	ReferenceImage string              `yaml:"reference_image,omitempty" json:"reference_image,omitempty"`
	FocusRegion    *models.FocusRegion `yaml:"focus_region,omitempty" json:"focus_region,omitempty"`
	Parameters     []ParameterDef      `yaml:"parameters" json:"parameters"`
	Budget         int                 `yaml:"iteration_budget" json:"iteration_budget"`
	Direction      string              `yaml:"direction" json:"direction"`
	Acquisition    string              `yaml:"acquisition" json:"acquisition"`
	CandidatePool  int                 `yaml:"candidate_pool_size" json:"candidate_pool_size"`
	RetryLimit     int                 `yaml:"retry_limit" json:"retry_limit"`
	Seed           int64               `yaml:"seed,omitempty" json:"seed,omitempty"`
	Convergence    *ConvergenceDef     `yaml:"convergence,omitempty" json:"convergence,omitempty"`
	Weights        *WeightsDef         `yaml:"weights,omitempty" json:"weights,omitempty"`
	Notes          string              `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// DefaultWeights returns the aggregation weights used when none are supplied.
// Sub-weights follow the original capture-scoring composite.
func DefaultWeights() *WeightsDef {
	return &WeightsDef{
		Metric:              1.0,
		Human:               0,
		Model:               0,
		Contrast:            0.30,
		Sharpness:           0.50,
		HistogramSpread:     0.20,
		HistogramSimilarity: 0,
	}
}

// DefaultConvergence returns the stopping rules used when none are supplied
func DefaultConvergence() *ConvergenceDef {
	return &ConvergenceDef{
		NoImprovementIterations: 4,
		UncertaintyThreshold:    0,
		MinIterations:           3,
	}
}
