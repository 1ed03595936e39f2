package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auto-tuner-laser/tuning-core/internal/sink"
	"github.com/auto-tuner-laser/tuning-core/pkg/config"
	"github.com/auto-tuner-laser/tuning-core/pkg/models"
)

type fakeExecutor struct {
	mu        sync.Mutex
	calls     int
	err       error
	failFirst int // > 0: only the first N calls fail
}

func (e *fakeExecutor) Execute(ctx context.Context, jobID string, params models.ParameterSet) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failFirst > 0 && e.calls > e.failFirst {
		return nil
	}
	return e.err
}

func (e *fakeExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeCamera struct {
	mu    sync.Mutex
	path  string
	calls int
	err   error
}

func (c *fakeCamera) Capture(ctx context.Context, jobID string) (*models.Capture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &models.Capture{
		ID:      jobID + "-cap",
		Path:    c.path,
		Width:   64,
		Height:  64,
		TakenAt: time.Now(),
	}, nil
}

// writeCheckerPNG writes a high-contrast test capture
func writeCheckerPNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	path := filepath.Join(dir, "capture.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func testTrialConfig() *config.TrialConfig {
	return &config.TrialConfig{
		ExecuteTimeoutSeconds: 5,
		CaptureTimeoutSeconds: 5,
		Backoff:               "constant",
		BackoffBaseMs:         1,
		BackoffMaxMs:          1,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerRunsSessionToBudget(t *testing.T) {
	executor := &fakeExecutor{}
	camera := &fakeCamera{path: writeCheckerPNG(t, t.TempDir())}
	results := sink.NewMemorySink()
	runner := NewRunner(executor, camera, results, testTrialConfig(), discardLogger())

	sess, err := New("", testDefinition(3, 0))
	require.NoError(t, err)

	require.NoError(t, runner.Run(context.Background(), sess))

	status, reason := sess.Status()
	assert.Equal(t, StatusConverged, status)
	assert.Contains(t, reason, "budget")

	obs := sess.Observations()
	require.Len(t, obs, 3)
	assert.Equal(t, 3, executor.callCount())

	// Identical captures score identically
	for _, o := range obs {
		assert.Equal(t, obs[0].Objective, o.Objective)
		assert.Greater(t, o.Objective, 0.0)
		require.NotNil(t, o.Capture)
	}

	rows := results.Records()
	require.Len(t, rows, 3)
	assert.Equal(t, sess.ID(), rows[0].SessionID)
	assert.Equal(t, 1, rows[0].Iteration)
	assert.Equal(t, camera.path, rows[0].ImagePath)
	assert.Equal(t, obs[0].Objective, rows[0].Score.Objective)
}

func TestRunnerRetriesThenAborts(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("machine fault")}
	camera := &fakeCamera{}
	runner := NewRunner(executor, camera, nil, testTrialConfig(), discardLogger())

	sess, err := New("", testDefinition(5, 1))
	require.NoError(t, err)

	require.NoError(t, runner.Run(context.Background(), sess))

	status, reason := sess.Status()
	assert.Equal(t, StatusAborted, status)
	assert.Contains(t, reason, "machine fault")

	assert.Equal(t, 2, executor.callCount(), "one attempt plus one retry")
	assert.Len(t, sess.Failures(), 2)
	assert.Empty(t, sess.Observations())
	assert.Zero(t, camera.calls, "capture is never attempted when engraving fails")
}

func TestRunnerUnreadableCaptureAborts(t *testing.T) {
	executor := &fakeExecutor{}
	camera := &fakeCamera{path: filepath.Join(t.TempDir(), "missing.png")}
	runner := NewRunner(executor, camera, nil, testTrialConfig(), discardLogger())

	sess, err := New("", testDefinition(5, 0))
	require.NoError(t, err)

	require.NoError(t, runner.Run(context.Background(), sess))

	status, reason := sess.Status()
	assert.Equal(t, StatusAborted, status)
	assert.Contains(t, reason, "image unreadable")
	assert.Empty(t, sess.Observations())
}

func TestRunnerFailureRecovery(t *testing.T) {
	// The first engraving fails, every later one succeeds; the session
	// still reaches its budget
	executor := &fakeExecutor{err: errors.New("transient fault"), failFirst: 1}
	camera := &fakeCamera{path: writeCheckerPNG(t, t.TempDir())}
	runner := NewRunner(executor, camera, nil, testTrialConfig(), discardLogger())

	sess, err := New("", testDefinition(2, 1))
	require.NoError(t, err)

	require.NoError(t, runner.Run(context.Background(), sess))

	status, _ := sess.Status()
	assert.Equal(t, StatusConverged, status)
	assert.Len(t, sess.Observations(), 2)
}

func TestRunnerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executor := &fakeExecutor{}
	camera := &fakeCamera{path: writeCheckerPNG(t, t.TempDir())}
	runner := NewRunner(executor, camera, nil, testTrialConfig(), discardLogger())

	sess, err := New("", testDefinition(5, 0))
	require.NoError(t, err)

	err = runner.Run(ctx, sess)
	assert.ErrorIs(t, err, context.Canceled)

	status, reason := sess.Status()
	assert.Equal(t, StatusAborted, status)
	assert.Contains(t, reason, "cancelled")
}

func TestRunnerBadReferenceImageAborts(t *testing.T) {
	def := testDefinition(3, 0)
	def.ReferenceImage = filepath.Join(t.TempDir(), "no-such-ref.png")

	sess, err := New("", def)
	require.NoError(t, err)

	runner := NewRunner(&fakeExecutor{}, &fakeCamera{}, nil, testTrialConfig(), discardLogger())
	err = runner.Run(context.Background(), sess)
	require.Error(t, err)

	status, reason := sess.Status()
	assert.Equal(t, StatusAborted, status)
	assert.Contains(t, reason, "scorer setup failed")
}
