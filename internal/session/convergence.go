package session

import (
	"fmt"

	"github.com/auto-tuner-laser/tuning-core/pkg/config"
)

// RuleInput summarizes the session state convergence rules decide on.
// Objectives are on the internal maximization scale in append order.
type RuleInput struct {
	Objectives  []float64
	BestStddev  float64
	ModelFitted bool
}

// Rule decides whether a session has converged
type Rule interface {
	// Converged reports convergence and a human-readable reason
	Converged(in RuleInput) (bool, string)
	// Name returns the rule name
	Name() string
}

// NoImprovementRule fires after a configured number of iterations without
// a new best observation
type NoImprovementRule struct {
	iterations    int
	minIterations int
}

// NewNoImprovementRule creates the rule; iterations <= 0 disables it
func NewNoImprovementRule(iterations, minIterations int) *NoImprovementRule {
	return &NoImprovementRule{iterations: iterations, minIterations: minIterations}
}

func (r *NoImprovementRule) Name() string {
	return "no_improvement"
}

func (r *NoImprovementRule) Converged(in RuleInput) (bool, string) {
	if r.iterations <= 0 || len(in.Objectives) < r.minIterations {
		return false, ""
	}

	bestIdx := 0
	for i, v := range in.Objectives {
		if v > in.Objectives[bestIdx] {
			bestIdx = i
		}
	}

	sinceBest := len(in.Objectives) - 1 - bestIdx
	if sinceBest >= r.iterations {
		return true, fmt.Sprintf("no improvement for %d iterations (best at iteration %d)", sinceBest, bestIdx+1)
	}
	return false, ""
}

// UncertaintyRule fires when the model's predictive stddev at the best
// observed point drops below a threshold
type UncertaintyRule struct {
	threshold     float64
	minIterations int
}

// NewUncertaintyRule creates the rule; threshold <= 0 disables it
func NewUncertaintyRule(threshold float64, minIterations int) *UncertaintyRule {
	return &UncertaintyRule{threshold: threshold, minIterations: minIterations}
}

func (r *UncertaintyRule) Name() string {
	return "uncertainty"
}

func (r *UncertaintyRule) Converged(in RuleInput) (bool, string) {
	if r.threshold <= 0 || !in.ModelFitted || len(in.Objectives) < r.minIterations {
		return false, ""
	}
	if in.BestStddev < r.threshold {
		return true, fmt.Sprintf("predictive uncertainty %.4f below threshold %.4f at best point", in.BestStddev, r.threshold)
	}
	return false, ""
}

// CombinedRule fires when any of its rules fires
type CombinedRule struct {
	rules []Rule
}

// NewCombinedRule creates a rule that checks its members in order
func NewCombinedRule(rules ...Rule) *CombinedRule {
	return &CombinedRule{rules: rules}
}

func (r *CombinedRule) Name() string {
	return "combined"
}

func (r *CombinedRule) Converged(in RuleInput) (bool, string) {
	for _, rule := range r.rules {
		if ok, reason := rule.Converged(in); ok {
			return true, reason
		}
	}
	return false, ""
}

// RuleFromDef builds the convergence rule a session definition asks for
func RuleFromDef(def *config.ConvergenceDef) Rule {
	if def == nil {
		def = config.DefaultConvergence()
	}
	return NewCombinedRule(
		NewNoImprovementRule(def.NoImprovementIterations, def.MinIterations),
		NewUncertaintyRule(def.UncertaintyThreshold, def.MinIterations),
	)
}
