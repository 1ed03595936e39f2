package session

import (
	"context"
	"errors"

	"github.com/auto-tuner-laser/tuning-core/pkg/models"
)

// ErrTrialTimeout indicates an external collaborator that did not finish
// within its configured deadline. The call fails, it never hangs.
var ErrTrialTimeout = errors.New("trial timed out")

// ErrSessionTerminal indicates an operation on a session that has already
// reached Converged or Aborted
var ErrSessionTerminal = errors.New("session is in a terminal state")

// TrialExecutor runs one physical engraving trial. The engine treats it
// as an opaque operation bounded by the context deadline.
type TrialExecutor interface {
	Execute(ctx context.Context, jobID string, params models.ParameterSet) error
}

// ImageSource captures a microscope image for a completed trial
type ImageSource interface {
	Capture(ctx context.Context, jobID string) (*models.Capture, error)
}

// InvalidTransitionError indicates a session operation that is not legal
// from the current status
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return "invalid session transition: " + string(e.From) + " -> " + string(e.To)
}
