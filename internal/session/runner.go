package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/auto-tuner-laser/tuning-core/internal/quality"
	"github.com/auto-tuner-laser/tuning-core/internal/sink"
	"github.com/auto-tuner-laser/tuning-core/pkg/config"
	"github.com/auto-tuner-laser/tuning-core/pkg/models"
	"github.com/auto-tuner-laser/tuning-core/pkg/utils"
)

// Runner drives a session's full tuning loop against the physical rig:
// propose, engrave, capture, score, record, log — until the session
// reaches a terminal state. One trial is outstanding at a time; every
// external call carries an explicit timeout.
type Runner struct {
	executor TrialExecutor
	camera   ImageSource
	results  sink.Sink
	backoff  utils.BackoffStrategy

	executeTimeout time.Duration
	captureTimeout time.Duration

	log *slog.Logger
}

// NewRunner creates a runner over the external collaborators. A nil sink
// falls back to the in-memory sink; a nil trial config uses defaults.
func NewRunner(executor TrialExecutor, camera ImageSource, results sink.Sink, trial *config.TrialConfig, log *slog.Logger) *Runner {
	if trial == nil {
		trial = config.DefaultConfig().Trial
	}
	if results == nil {
		results = sink.NewMemorySink()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		executor:       executor,
		camera:         camera,
		results:        results,
		backoff:        utils.BackoffFromConfig(trial.Backoff, trial.BackoffBaseMs, trial.BackoffMaxMs),
		executeTimeout: time.Duration(trial.ExecuteTimeoutSeconds) * time.Second,
		captureTimeout: time.Duration(trial.CaptureTimeoutSeconds) * time.Second,
		log:            log,
	}
}

// Run loops the session to a terminal state. Context cancellation aborts
// the session before the next observation is recorded, never mid-append.
func (r *Runner) Run(ctx context.Context, sess *Session) error {
	def := sess.Definition()

	region := models.FocusRegion{}
	if def.FocusRegion != nil {
		region = *def.FocusRegion
	}
	scorer, err := quality.NewScorer(def.Weights, region, def.ReferenceImage)
	if err != nil {
		sess.Abort("scorer setup failed: " + err.Error())
		return err
	}
	aggregator := quality.NewAggregator(def.Weights, def.Acquisition)

	log := r.log.With("session_id", sess.ID())
	attempt := 0
	for {
		if ctx.Err() != nil {
			sess.Abort("run cancelled: " + ctx.Err().Error())
			return ctx.Err()
		}

		params, iteration, err := sess.NextProposal()
		if errors.Is(err, ErrSessionTerminal) {
			r.logOutcome(log, sess)
			return nil
		}
		if err != nil {
			return err
		}

		jobID := utils.GenerateJobID(sess.ID(), iteration)
		log.Info("trial proposed", "iteration", iteration, "job_id", jobID, "params", params)

		trialErr := r.runTrial(ctx, sess, scorer, aggregator, jobID, params, iteration)
		if trialErr == nil {
			attempt = 0
			if status, _ := sess.Status(); status.Terminal() {
				r.logOutcome(log, sess)
				return nil
			}
			continue
		}
		if errors.Is(trialErr, ErrSessionTerminal) {
			r.logOutcome(log, sess)
			return nil
		}

		log.Warn("trial failed", "iteration", iteration, "job_id", jobID, "error", trialErr)
		if err := sess.RecordFailure(trialErr.Error()); err != nil {
			if errors.Is(err, ErrSessionTerminal) {
				r.logOutcome(log, sess)
				return nil
			}
			return err
		}
		if status, _ := sess.Status(); status.Terminal() {
			r.logOutcome(log, sess)
			return nil
		}

		attempt++
		select {
		case <-time.After(r.backoff.NextDelay(attempt)):
		case <-ctx.Done():
			sess.Abort("run cancelled: " + ctx.Err().Error())
			return ctx.Err()
		}
	}
}

// runTrial executes one engraving, captures and scores its image, and
// records the observation. Any error marks the iteration failed.
func (r *Runner) runTrial(ctx context.Context, sess *Session, scorer *quality.Scorer, aggregator *quality.Aggregator, jobID string, params models.ParameterSet, iteration int) error {
	if err := r.execute(ctx, jobID, params); err != nil {
		return err
	}

	capture, err := r.capture(ctx, jobID)
	if err != nil {
		return err
	}

	metrics, err := scorer.Score(capture.Path)
	if err != nil {
		return err
	}
	score, err := aggregator.Aggregate(metrics, nil, nil)
	if err != nil {
		return err
	}

	// An abort that arrived while the trial was out is honored here,
	// before the observation is appended
	obs, err := sess.Record(score, capture, 0)
	if err != nil {
		return err
	}

	record := models.TrialRecord{
		CaptureID: capture.ID,
		Timestamp: obs.RecordedAt,
		JobID:     jobID,
		Material:  sess.Definition().Material,
		ImagePath: capture.Path,
		Params:    obs.Params,
		Score:     obs.Score,
		SessionID: sess.ID(),
		Iteration: obs.Iteration,
	}
	if err := r.results.Append(record); err != nil {
		// The observation is already recorded; a sink failure must not
		// kill the session
		r.log.Error("result sink append failed", "session_id", sess.ID(), "capture_id", capture.ID, "error", err)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, jobID string, params models.ParameterSet) error {
	ctx, cancel := context.WithTimeout(ctx, r.executeTimeout)
	defer cancel()

	if err := r.executor.Execute(ctx, jobID, params); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: engraving job %s exceeded %s", ErrTrialTimeout, jobID, r.executeTimeout)
		}
		return fmt.Errorf("trial execution failed: %w", err)
	}
	return nil
}

func (r *Runner) capture(ctx context.Context, jobID string) (*models.Capture, error) {
	ctx, cancel := context.WithTimeout(ctx, r.captureTimeout)
	defer cancel()

	capture, err := r.camera.Capture(ctx, jobID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: capture for job %s exceeded %s", ErrTrialTimeout, jobID, r.captureTimeout)
		}
		return nil, fmt.Errorf("image capture failed: %w", err)
	}
	return capture, nil
}

func (r *Runner) logOutcome(log *slog.Logger, sess *Session) {
	status, reason := sess.Status()
	if best, ok := sess.Best(); ok {
		log.Info("session finished", "status", status, "reason", reason,
			"best_objective", best.Objective, "best_iteration", best.Iteration, "best_params", best.Params)
		return
	}
	log.Info("session finished", "status", status, "reason", reason)
}
