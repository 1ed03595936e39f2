package sink

import (
	"fmt"

	"github.com/auto-tuner-laser/tuning-core/pkg/config"
	"github.com/auto-tuner-laser/tuning-core/pkg/models"
)

// Sink receives one append-only row per recorded trial. Rows are never
// recomputed; the only permitted mutation is attaching a manual score to
// an existing row.
type Sink interface {
	// Append writes the trial record as a new row
	Append(record models.TrialRecord) error
	// UpdateManualScore attaches a human rating to the row for captureID
	UpdateManualScore(captureID string, rating int) error
	// Close flushes and releases the sink
	Close() error
}

// CaptureNotFoundError indicates a manual-score update for a capture the
// sink never saw
type CaptureNotFoundError struct {
	CaptureID string
}

func (e *CaptureNotFoundError) Error() string {
	return fmt.Sprintf("no sink row for capture %s", e.CaptureID)
}

// FromConfig builds the configured sink. A nil config or type "none"
// yields the in-memory sink so the daemon always has somewhere to write.
func FromConfig(cfg *config.SinkConfig) (Sink, error) {
	if cfg == nil || cfg.Type == config.SinkTypeNone {
		return NewMemorySink(), nil
	}
	switch cfg.Type {
	case config.SinkTypeXLSX:
		return NewXLSXSink(cfg.Path, cfg.Sheet)
	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Type)
	}
}
