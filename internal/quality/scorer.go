package quality

import (
	"fmt"

	"github.com/auto-tuner-laser/tuning-core/pkg/config"
	"github.com/auto-tuner-laser/tuning-core/pkg/models"
)

// Scorer computes the deterministic metric scores for captured images.
// The same capture always produces the same scores; the scorer holds no
// per-trial state.
type Scorer struct {
	weights *config.WeightsDef
	region  models.FocusRegion
	refHist []float64
}

// NewScorer creates a scorer with the given aggregation weights and focus
// region. When referencePath is non-empty the reference image is decoded
// once and its histogram reused for every capture.
func NewScorer(weights *config.WeightsDef, region models.FocusRegion, referencePath string) (*Scorer, error) {
	if weights == nil {
		weights = config.DefaultWeights()
	}
	s := &Scorer{weights: weights, region: region}

	if referencePath != "" {
		ref, err := loadGray(referencePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load reference image: %w", err)
		}
		cropped, err := ref.crop(region)
		if err != nil {
			return nil, fmt.Errorf("failed to crop reference image: %w", err)
		}
		s.refHist = cropped.histogram()
	}
	return s, nil
}

// HasReference reports whether a reference histogram is available
func (s *Scorer) HasReference() bool {
	return s.refHist != nil
}

// Score computes the metric scores for the capture at path. Every
// sub-score lands in [0,1]; the composite combines the sub-scores with the
// configured sub-weights, renormalized over the signals actually present.
func (s *Scorer) Score(path string) (models.MetricScores, error) {
	img, err := loadGray(path)
	if err != nil {
		return models.MetricScores{}, err
	}
	region, err := img.crop(s.region)
	if err != nil {
		return models.MetricScores{}, err
	}

	scores := models.MetricScores{
		Contrast:        region.contrast(),
		Sharpness:       region.sharpness(),
		HistogramSpread: region.histogramSpread(),
	}
	if s.refHist != nil {
		sim := histogramIntersection(region.histogram(), s.refHist)
		scores.HistogramSimilarity = &sim
	}
	scores.Composite = s.composite(scores)
	return scores, nil
}

// composite renormalizes the sub-weights over the present sub-scores.
// Histogram similarity only contributes when a reference image was given.
func (s *Scorer) composite(m models.MetricScores) float64 {
	weighted := m.Contrast*s.weights.Contrast +
		m.Sharpness*s.weights.Sharpness +
		m.HistogramSpread*s.weights.HistogramSpread
	total := s.weights.Contrast + s.weights.Sharpness + s.weights.HistogramSpread

	if m.HistogramSimilarity != nil {
		weighted += *m.HistogramSimilarity * s.weights.HistogramSimilarity
		total += s.weights.HistogramSimilarity
	}
	if total <= 0 {
		return 0
	}
	return weighted / total
}
