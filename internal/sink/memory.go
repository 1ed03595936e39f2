package sink

import (
	"sync"

	"github.com/auto-tuner-laser/tuning-core/pkg/models"
)

// MemorySink keeps trial rows in memory. Used when no sink is configured
// and throughout the tests.
type MemorySink struct {
	mu      sync.Mutex
	records []models.TrialRecord
	index   map[string]int
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{index: make(map[string]int)}
}

// Append stores the record
func (s *MemorySink) Append(record models.TrialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[record.CaptureID] = len(s.records)
	s.records = append(s.records, record)
	return nil
}

// UpdateManualScore attaches a rating to a stored record
func (s *MemorySink) UpdateManualScore(captureID string, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[captureID]
	if !ok {
		return &CaptureNotFoundError{CaptureID: captureID}
	}
	r := rating
	s.records[i].Score.HumanRating = &r
	return nil
}

// Close is a no-op
func (s *MemorySink) Close() error {
	return nil
}

// Records returns a copy of the stored records in append order
func (s *MemorySink) Records() []models.TrialRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TrialRecord, len(s.records))
	copy(out, s.records)
	return out
}
