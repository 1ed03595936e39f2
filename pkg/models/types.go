package models

import (
	"sort"
	"time"
)

// ParameterSet maps engraving parameter names to concrete values.
// A ParameterSet identifies one physical trial within a session.
type ParameterSet map[string]float64

// Clone returns an independent copy of the parameter set
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Names returns the parameter names in sorted order
func (p ParameterSet) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two parameter sets hold the same values
func (p ParameterSet) Equal(other ParameterSet) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// FocusRegion is the sub-area of a captured image used for quality scoring
type FocusRegion struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Empty reports whether the region is unset (score the whole image)
func (r FocusRegion) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Capture describes one microscope capture returned by the image source
type Capture struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	TakenAt time.Time `json:"taken_at"`
}

// MetricScores holds the deterministic image sub-scores, each in [0,1]
type MetricScores struct {
	Contrast            float64  `json:"contrast"`
	Sharpness           float64  `json:"sharpness"`
	HistogramSpread     float64  `json:"histogram_spread"`
	HistogramSimilarity *float64 `json:"histogram_similarity,omitempty"`
	Composite           float64  `json:"composite"`
}

// QualityScore is the objective value plus the breakdown that produced it.
// Once attached to an Observation it is never recomputed.
type QualityScore struct {
	Objective       float64      `json:"objective"`
	Metrics         MetricScores `json:"metrics"`
	HumanRating     *int         `json:"human_rating,omitempty"`
	ModelPrediction *float64     `json:"model_prediction,omitempty"`
	Policy          string       `json:"policy"`
}

// Observation is one recorded (trial parameters, resulting objective) pair.
// Immutable once recorded; the observation sequence is the session's
// sufficient statistic.
type Observation struct {
	Params     ParameterSet `json:"params"`
	Objective  float64      `json:"objective"`
	Noise      float64      `json:"noise,omitempty"`
	Score      QualityScore `json:"score"`
	Capture    *Capture     `json:"capture,omitempty"`
	Iteration  int          `json:"iteration"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// TrialFailure annotates an iteration whose trial could not be completed.
// Failed iterations do not enter the objective history.
type TrialFailure struct {
	Iteration  int       `json:"iteration"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TrialRecord is the append-only row emitted to the result sink per
// observation, mirroring the capture-log spreadsheet layout.
type TrialRecord struct {
	CaptureID string       `json:"capture_id"`
	Timestamp time.Time    `json:"timestamp"`
	JobID     string       `json:"job_id"`
	Material  string       `json:"material,omitempty"`
	ImagePath string       `json:"image_path,omitempty"`
	Params    ParameterSet `json:"params"`
	Score     QualityScore `json:"score"`
	SessionID string       `json:"session_id"`
	Iteration int          `json:"iteration"`
	Notes     string       `json:"notes,omitempty"`
}
