package tunerd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auto-tuner-laser/tuning-core/pkg/models"
)

func TestMachineClientExecute(t *testing.T) {
	var got struct {
		JobID  string             `json:"job_id"`
		Params map[string]float64 `json:"params"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/jobs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewMachineClient(srv.URL)
	err := client.Execute(context.Background(), "tune-a-001", models.ParameterSet{"feedRate_mm_min": 1200})
	require.NoError(t, err)

	assert.Equal(t, "tune-a-001", got.JobID)
	assert.Equal(t, 1200.0, got.Params["feedRate_mm_min"])
}

func TestMachineClientErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "laser interlock open"})
	}))
	defer srv.Close()

	err := NewMachineClient(srv.URL).Execute(context.Background(), "job-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "laser interlock open")
}

func TestMachineClientContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnect and
		// cancels the request context; otherwise srv.Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewMachineClient(srv.URL).Execute(ctx, "job-1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCameraClientCapture(t *testing.T) {
	taken := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/captures", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "cap-abc",
			"path":     "/captures/cap-abc.png",
			"width":    1920,
			"height":   1080,
			"taken_at": taken,
		})
	}))
	defer srv.Close()

	capture, err := NewCameraClient(srv.URL).Capture(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, "cap-abc", capture.ID)
	assert.Equal(t, "/captures/cap-abc.png", capture.Path)
	assert.Equal(t, 1920, capture.Width)
	assert.True(t, capture.TakenAt.Equal(taken))
}

func TestCameraClientMissingPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "cap-abc"})
	}))
	defer srv.Close()

	_, err := NewCameraClient(srv.URL).Capture(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image path")
}

func TestCameraClientErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "camera offline"})
	}))
	defer srv.Close()

	_, err := NewCameraClient(srv.URL).Capture(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera offline")
}
