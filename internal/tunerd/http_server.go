package tunerd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/auto-tuner-laser/tuning-core/internal/quality"
	"github.com/auto-tuner-laser/tuning-core/internal/session"
	"github.com/auto-tuner-laser/tuning-core/internal/sink"
	"github.com/auto-tuner-laser/tuning-core/pkg/config"
	"github.com/auto-tuner-laser/tuning-core/pkg/models"
	"github.com/auto-tuner-laser/tuning-core/pkg/utils"
)

// HTTPServer exposes the tuning engine to external orchestrators: session
// lifecycle, proposal/trial exchange, human feedback, and the autonomous
// run loop.
type HTTPServer struct {
	mux     *http.ServeMux
	store   *session.Store
	runner  *session.Runner
	results sink.Sink
	log     *slog.Logger

	// base context for background run loops; cancelled on shutdown
	baseCtx context.Context

	mu      sync.Mutex
	scorers map[string]*quality.Scorer
	running map[string]bool
}

// NewHTTPServer creates the API server. runner may be nil when the daemon
// has no physical rig attached; `:run` then returns an error while the
// proposal/trial endpoints keep working.
func NewHTTPServer(baseCtx context.Context, store *session.Store, runner *session.Runner, results sink.Sink, log *slog.Logger) *HTTPServer {
	if log == nil {
		log = slog.Default()
	}
	if results == nil {
		results = sink.NewMemorySink()
	}
	s := &HTTPServer{
		mux:     http.NewServeMux(),
		store:   store,
		runner:  runner,
		results: results,
		log:     log,
		baseCtx: baseCtx,
		scorers: make(map[string]*quality.Scorer),
		running: make(map[string]bool),
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/sessions", s.handleSessions)
	s.mux.HandleFunc("/v1/sessions/", s.handleSessionByID)

	return s
}

// Handler returns the HTTP handler
func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSessions handles /v1/sessions
func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	case http.MethodGet:
		s.handleListSessions(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSessionByID routes /v1/sessions/{id} and its sub-resources
func (s *HTTPServer) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	if strings.HasSuffix(path, ":abort") {
		id := strings.TrimSuffix(path, ":abort")
		if r.Method == http.MethodPost {
			s.handleAbort(w, r, id)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, ":run") {
		id := strings.TrimSuffix(path, ":run")
		if r.Method == http.MethodPost {
			s.handleRun(w, r, id)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, "/best") {
		id := strings.TrimSuffix(path, "/best")
		if r.Method == http.MethodGet {
			s.handleBest(w, r, id)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, "/observations") {
		id := strings.TrimSuffix(path, "/observations")
		if r.Method == http.MethodGet {
			s.handleObservations(w, r, id)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, "/proposals") {
		id := strings.TrimSuffix(path, "/proposals")
		if r.Method == http.MethodPost {
			s.handleProposal(w, r, id)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, "/trials") {
		id := strings.TrimSuffix(path, "/trials")
		if r.Method == http.MethodPost {
			s.handleTrial(w, r, id)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, "/feedback") {
		id := strings.TrimSuffix(path, "/feedback")
		if r.Method == http.MethodPost {
			s.handleFeedback(w, r, id)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if r.Method == http.MethodGet {
		s.handleGetSession(w, r, path)
	} else {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCreateSession handles POST /v1/sessions
func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID  string                    `json:"session_id,omitempty"`
		Definition *config.SessionDefinition `json:"definition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Definition == nil {
		s.writeError(w, http.StatusBadRequest, "definition is required")
		return
	}

	sess, err := session.New(req.SessionID, req.Definition)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.Create(sess); err != nil {
		switch {
		case strings.Contains(err.Error(), "already exists"):
			s.writeError(w, http.StatusConflict, err.Error())
		case strings.Contains(err.Error(), "still active"):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.log.Info("session created", "session_id", sess.ID(), "material", req.Definition.Material, "budget", req.Definition.Budget)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"session": sess.Snapshot(),
	})
}

// handleListSessions handles GET /v1/sessions
func (s *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	sessions := s.store.List(limit)
	out := make([]session.Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Snapshot())
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessions": out,
		"count":    len(out),
	})
}

// handleGetSession handles GET /v1/sessions/{id}
func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess.Snapshot(),
		"failures": sess.Failures(),
	})
}

// handleAbort handles POST /v1/sessions/{id}:abort
func (s *HTTPServer) handleAbort(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "abort requested"
	}

	if err := sess.Abort(req.Reason); err != nil {
		if errors.Is(err, session.ErrSessionTerminal) {
			s.writeError(w, http.StatusConflict, "session already terminal")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info("session aborted", "session_id", id, "reason", req.Reason)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session": sess.Snapshot(),
	})
}

// handleRun handles POST /v1/sessions/{id}:run — starts the autonomous
// tuning loop against the attached rig
func (s *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request, id string) {
	if s.runner == nil {
		s.writeError(w, http.StatusConflict, "no trial rig attached to this daemon")
		return
	}
	sess, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if status, _ := sess.Status(); status.Terminal() {
		s.writeError(w, http.StatusConflict, "session already terminal")
		return
	}

	s.mu.Lock()
	if s.running[id] {
		s.mu.Unlock()
		s.writeError(w, http.StatusConflict, "session run loop already started")
		return
	}
	s.running[id] = true
	s.mu.Unlock()

	go func() {
		if err := s.runner.Run(s.baseCtx, sess); err != nil {
			s.log.Error("session run loop failed", "session_id", id, "error", err)
		}
	}()

	s.log.Info("session run loop started", "session_id", id)
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"session": sess.Snapshot(),
	})
}

// handleBest handles GET /v1/sessions/{id}/best
func (s *HTTPServer) handleBest(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	best, ok := sess.Best()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no observations recorded yet")
		return
	}
	status, reason := sess.Status()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"best":   best,
		"status": status,
		"reason": reason,
	})
}

// handleObservations handles GET /v1/sessions/{id}/observations
func (s *HTTPServer) handleObservations(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	obs := sess.Observations()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"observations": obs,
		"count":        len(obs),
	})
}

// handleProposal handles POST /v1/sessions/{id}/proposals — hands the
// next candidate to an external orchestrator
func (s *HTTPServer) handleProposal(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	params, iteration, err := sess.NextProposal()
	if err != nil {
		if errors.Is(err, session.ErrSessionTerminal) {
			status, reason := sess.Status()
			s.writeJSON(w, http.StatusConflict, map[string]any{
				"error":  "session is terminal",
				"status": status,
				"reason": reason,
			})
			return
		}
		var invalid *session.InvalidTransitionError
		if errors.As(err, &invalid) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"params":    params,
		"iteration": iteration,
		"job_id":    utils.GenerateJobID(id, iteration),
	})
}

// handleTrial handles POST /v1/sessions/{id}/trials — records a completed
// or failed trial reported by an external orchestrator
func (s *HTTPServer) handleTrial(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req struct {
		Failure     string   `json:"failure,omitempty"`
		CaptureID   string   `json:"capture_id,omitempty"`
		CapturePath string   `json:"capture_path,omitempty"`
		Width       int      `json:"width,omitempty"`
		Height      int      `json:"height,omitempty"`
		Rating      *int     `json:"rating,omitempty"`
		Prediction  *float64 `json:"model_prediction,omitempty"`
		Noise       float64  `json:"noise,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Failure != "" {
		if err := sess.RecordFailure(req.Failure); err != nil {
			s.trialStateError(w, err)
			return
		}
		status, reason := sess.Status()
		s.writeJSON(w, http.StatusOK, map[string]any{
			"recorded": false,
			"status":   status,
			"reason":   reason,
		})
		return
	}

	if req.CapturePath == "" {
		s.writeError(w, http.StatusBadRequest, "capture_path or failure is required")
		return
	}

	scorer, err := s.scorerFor(sess)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics, err := scorer.Score(req.CapturePath)
	if err != nil {
		// Scoring failures are trial failures, never silent zero scores
		if recErr := sess.RecordFailure(err.Error()); recErr != nil {
			s.trialStateError(w, recErr)
			return
		}
		status, reason := sess.Status()
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  err.Error(),
			"status": status,
			"reason": reason,
		})
		return
	}

	aggregator := quality.NewAggregator(sess.Definition().Weights, sess.Definition().Acquisition)
	score, err := aggregator.Aggregate(metrics, req.Rating, req.Prediction)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	captureID := req.CaptureID
	if captureID == "" {
		captureID = utils.GenerateCaptureID()
	}
	capture := &models.Capture{
		ID:      captureID,
		Path:    req.CapturePath,
		Width:   req.Width,
		Height:  req.Height,
		TakenAt: time.Now(),
	}

	obs, err := sess.Record(score, capture, req.Noise)
	if err != nil {
		s.trialStateError(w, err)
		return
	}

	record := models.TrialRecord{
		CaptureID: capture.ID,
		Timestamp: obs.RecordedAt,
		JobID:     utils.GenerateJobID(id, obs.Iteration),
		Material:  sess.Definition().Material,
		ImagePath: capture.Path,
		Params:    obs.Params,
		Score:     obs.Score,
		SessionID: id,
		Iteration: obs.Iteration,
	}
	if err := s.results.Append(record); err != nil {
		s.log.Error("result sink append failed", "session_id", id, "capture_id", capture.ID, "error", err)
	}

	status, reason := sess.Status()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"observation": obs,
		"status":      status,
		"reason":      reason,
	})
}

// handleFeedback handles POST /v1/sessions/{id}/feedback — back-fills a
// human rating onto a recorded observation and its sink row
func (s *HTTPServer) handleFeedback(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req struct {
		Iteration int `json:"iteration"`
		Rating    int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := sess.AttachRating(req.Iteration, req.Rating); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Back-fill the sink row when the observation carries a capture
	for _, obs := range sess.Observations() {
		if obs.Iteration == req.Iteration && obs.Capture != nil {
			if err := s.results.UpdateManualScore(obs.Capture.ID, req.Rating); err != nil {
				var notFound *sink.CaptureNotFoundError
				if !errors.As(err, &notFound) {
					s.log.Error("manual score back-fill failed", "session_id", id, "capture_id", obs.Capture.ID, "error", err)
				}
			}
			break
		}
	}

	s.log.Info("feedback attached", "session_id", id, "iteration", req.Iteration, "rating", req.Rating)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session": sess.Snapshot(),
	})
}

// scorerFor returns the session's capture scorer, building it on first
// use so the reference image is decoded once
func (s *HTTPServer) scorerFor(sess *session.Session) (*quality.Scorer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scorer, ok := s.scorers[sess.ID()]; ok {
		return scorer, nil
	}

	def := sess.Definition()
	region := models.FocusRegion{}
	if def.FocusRegion != nil {
		region = *def.FocusRegion
	}
	scorer, err := quality.NewScorer(def.Weights, region, def.ReferenceImage)
	if err != nil {
		return nil, err
	}
	s.scorers[sess.ID()] = scorer
	return scorer, nil
}

func (s *HTTPServer) trialStateError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionTerminal) {
		s.writeError(w, http.StatusConflict, "session is terminal")
		return
	}
	var invalid *session.InvalidTransitionError
	if errors.As(err, &invalid) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
