package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auto-tuner-laser/tuning-core/pkg/config"
)

func TestNoImprovementRule(t *testing.T) {
	rule := NewNoImprovementRule(3, 2)

	ok, _ := rule.Converged(RuleInput{Objectives: []float64{0.5}})
	assert.False(t, ok, "below min iterations")

	ok, _ = rule.Converged(RuleInput{Objectives: []float64{0.5, 0.9, 0.6, 0.7}})
	assert.False(t, ok, "only 2 iterations since best")

	ok, reason := rule.Converged(RuleInput{Objectives: []float64{0.9, 0.6, 0.7, 0.5}})
	assert.True(t, ok)
	assert.Contains(t, reason, "no improvement for 3 iterations")
}

func TestNoImprovementRuleTieKeepsEarliest(t *testing.T) {
	rule := NewNoImprovementRule(2, 1)

	// The repeated 0.9 does not reset the counter
	ok, _ := rule.Converged(RuleInput{Objectives: []float64{0.9, 0.9, 0.9}})
	assert.True(t, ok)
}

func TestNoImprovementRuleDisabled(t *testing.T) {
	rule := NewNoImprovementRule(0, 0)
	ok, _ := rule.Converged(RuleInput{Objectives: []float64{0.9, 0.1, 0.1, 0.1, 0.1}})
	assert.False(t, ok)
}

func TestUncertaintyRule(t *testing.T) {
	rule := NewUncertaintyRule(0.05, 2)

	ok, _ := rule.Converged(RuleInput{Objectives: []float64{0.5, 0.6}, BestStddev: 0.01})
	assert.False(t, ok, "requires a fitted model")

	ok, _ = rule.Converged(RuleInput{Objectives: []float64{0.5, 0.6}, BestStddev: 0.1, ModelFitted: true})
	assert.False(t, ok, "stddev above threshold")

	ok, reason := rule.Converged(RuleInput{Objectives: []float64{0.5, 0.6}, BestStddev: 0.01, ModelFitted: true})
	assert.True(t, ok)
	assert.Contains(t, reason, "uncertainty")
}

func TestUncertaintyRuleDisabled(t *testing.T) {
	rule := NewUncertaintyRule(0, 0)
	ok, _ := rule.Converged(RuleInput{Objectives: []float64{0.5, 0.6}, BestStddev: 0, ModelFitted: true})
	assert.False(t, ok)
}

func TestCombinedRule(t *testing.T) {
	rule := NewCombinedRule(
		NewNoImprovementRule(5, 1),
		NewUncertaintyRule(0.05, 1),
	)

	ok, reason := rule.Converged(RuleInput{
		Objectives:  []float64{0.5, 0.6},
		BestStddev:  0.01,
		ModelFitted: true,
	})
	require.True(t, ok, "any member firing converges the combination")
	assert.Contains(t, reason, "uncertainty")

	ok, _ = rule.Converged(RuleInput{Objectives: []float64{0.5, 0.6}, BestStddev: 0.5, ModelFitted: true})
	assert.False(t, ok)
}

func TestRuleFromDef(t *testing.T) {
	rule := RuleFromDef(nil)
	assert.Equal(t, "combined", rule.Name())

	rule = RuleFromDef(&config.ConvergenceDef{NoImprovementIterations: 2, MinIterations: 1})
	ok, _ := rule.Converged(RuleInput{Objectives: []float64{0.9, 0.5, 0.5}})
	assert.True(t, ok)
}
