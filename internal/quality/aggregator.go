package quality

import (
	"fmt"

	"github.com/auto-tuner-laser/tuning-core/pkg/config"
	"github.com/auto-tuner-laser/tuning-core/pkg/models"
)

// InvalidRatingError indicates a human rating outside the 1..5 scale
type InvalidRatingError struct {
	Rating int
}

func (e *InvalidRatingError) Error() string {
	return fmt.Sprintf("human rating must be in [1,5], got %d", e.Rating)
}

// Aggregator folds the available quality signals into a single objective
// value in [0,1]. The signal weights are renormalized over whichever
// signals are actually present, so a missing rating never drags the
// objective toward zero.
type Aggregator struct {
	weights *config.WeightsDef
	policy  string
}

// NewAggregator creates an aggregator with the given signal weights.
// policy is recorded on every score for traceability.
func NewAggregator(weights *config.WeightsDef, policy string) *Aggregator {
	if weights == nil {
		weights = config.DefaultWeights()
	}
	return &Aggregator{weights: weights, policy: policy}
}

// Aggregate combines the metric composite with the optional human rating
// and model prediction. Ratings on the 1..5 scale map linearly onto [0,1].
func (a *Aggregator) Aggregate(metrics models.MetricScores, humanRating *int, modelPrediction *float64) (models.QualityScore, error) {
	weighted := metrics.Composite * a.weights.Metric
	total := a.weights.Metric

	if humanRating != nil {
		if *humanRating < 1 || *humanRating > 5 {
			return models.QualityScore{}, &InvalidRatingError{Rating: *humanRating}
		}
		normalized := float64(*humanRating-1) / 4.0
		weighted += normalized * a.weights.Human
		total += a.weights.Human
	}
	if modelPrediction != nil {
		weighted += *modelPrediction * a.weights.Model
		total += a.weights.Model
	}

	objective := 0.0
	if total > 0 {
		objective = weighted / total
	}

	return models.QualityScore{
		Objective:       objective,
		Metrics:         metrics,
		HumanRating:     humanRating,
		ModelPrediction: modelPrediction,
		Policy:          a.policy,
	}, nil
}
