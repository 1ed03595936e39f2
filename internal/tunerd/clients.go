package tunerd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/auto-tuner-laser/tuning-core/pkg/models"
)

// MachineClient drives the engraving machine controller over HTTP. It
// implements session.TrialExecutor; the caller's context carries the
// trial deadline.
type MachineClient struct {
	baseURL string
	client  *http.Client
}

// NewMachineClient creates a client for the controller at baseURL
func NewMachineClient(baseURL string) *MachineClient {
	return &MachineClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// Execute runs one engraving job and blocks until the controller reports
// completion or the context expires
func (c *MachineClient) Execute(ctx context.Context, jobID string, params models.ParameterSet) error {
	body, err := json.Marshal(map[string]any{
		"job_id": jobID,
		"params": params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", jobID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("machine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("machine rejected job %s: %s", jobID, readErrorBody(resp))
	}
	return nil
}

// CameraClient requests microscope captures over HTTP. It implements
// session.ImageSource.
type CameraClient struct {
	baseURL string
	client  *http.Client
}

// NewCameraClient creates a client for the capture service at baseURL
func NewCameraClient(baseURL string) *CameraClient {
	return &CameraClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// Capture triggers a capture for the given job and returns its metadata
func (c *CameraClient) Capture(ctx context.Context, jobID string) (*models.Capture, error) {
	body, err := json.Marshal(map[string]any{"job_id": jobID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode capture request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/captures", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("camera rejected capture for job %s: %s", jobID, readErrorBody(resp))
	}

	var payload struct {
		ID      string    `json:"id"`
		Path    string    `json:"path"`
		Width   int       `json:"width"`
		Height  int       `json:"height"`
		TakenAt time.Time `json:"taken_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid capture response: %w", err)
	}
	if payload.Path == "" {
		return nil, fmt.Errorf("capture response for job %s has no image path", jobID)
	}
	if payload.TakenAt.IsZero() {
		payload.TakenAt = time.Now()
	}

	return &models.Capture{
		ID:      payload.ID,
		Path:    payload.Path,
		Width:   payload.Width,
		Height:  payload.Height,
		TakenAt: payload.TakenAt,
	}, nil
}

// readErrorBody extracts a short error message from a non-2xx response
func readErrorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil || len(data) == 0 {
		return resp.Status
	}

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return resp.Status + ": " + strings.TrimSpace(string(data))
}
