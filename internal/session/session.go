package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/auto-tuner-laser/tuning-core/internal/acquisition"
	"github.com/auto-tuner-laser/tuning-core/internal/paramspace"
	"github.com/auto-tuner-laser/tuning-core/internal/surrogate"
	"github.com/auto-tuner-laser/tuning-core/pkg/config"
	"github.com/auto-tuner-laser/tuning-core/pkg/models"
	"github.com/auto-tuner-laser/tuning-core/pkg/utils"
)

// Status is the session lifecycle state
type Status string

const (
	StatusCreated       Status = "created"
	StatusProposing     Status = "proposing"
	StatusAwaitingTrial Status = "awaiting_trial"
	StatusRecording     Status = "recording"
	StatusConverged     Status = "converged"
	StatusAborted       Status = "aborted"
)

// Terminal reports whether no further transitions are possible
func (s Status) Terminal() bool {
	return s == StatusConverged || s == StatusAborted
}

// transitions is the legal state machine. Terminal states have no
// outgoing edges; that is what makes them terminal.
var transitions = map[Status][]Status{
	StatusCreated:       {StatusProposing, StatusAborted},
	StatusProposing:     {StatusAwaitingTrial, StatusConverged, StatusAborted},
	StatusAwaitingTrial: {StatusRecording, StatusAborted},
	StatusRecording:     {StatusProposing, StatusConverged, StatusAborted},
}

// Session is the stateful tuning orchestrator: it owns the observation
// history, proposes trials, records outcomes, and applies the stopping
// rules. A session is the single writer of its own history; every
// operation serializes on the session mutex so proposing and recording
// never interleave.
type Session struct {
	mu sync.Mutex

	id    string
	def   *config.SessionDefinition
	space *paramspace.Space
	gp    *surrogate.GP
	rule  Rule
	rng   *utils.RandSource

	acquire  acquisition.Func
	minimize bool

	status       Status
	reason       string
	observations []models.Observation
	failures     []models.TrialFailure
	bestIdx      int
	proposed     models.ParameterSet
	retries      int

	createdAt time.Time
	updatedAt time.Time
}

// New creates a session from its definition. The definition is validated
// and defaulted; the parameter space is immutable afterwards.
func New(id string, def *config.SessionDefinition) (*Session, error) {
	config.ApplySessionDefaults(def)
	if err := config.ValidateSession(def); err != nil {
		return nil, fmt.Errorf("invalid session definition: %w", err)
	}

	specs := make([]paramspace.Spec, len(def.Parameters))
	for i, p := range def.Parameters {
		specs[i] = paramspace.Spec{
			Name: p.Name,
			Kind: paramspace.Kind(p.Kind),
			Min:  p.Min,
			Max:  p.Max,
			Step: p.Step,
		}
	}
	space, err := paramspace.New(specs...)
	if err != nil {
		return nil, fmt.Errorf("invalid parameter space: %w", err)
	}

	acquire, err := acquisition.ByName(def.Acquisition)
	if err != nil {
		return nil, err
	}

	if id == "" {
		id = utils.GenerateSessionID()
	}
	now := time.Now()
	return &Session{
		id:        id,
		def:       def,
		space:     space,
		gp:        surrogate.NewGP(),
		rule:      RuleFromDef(def.Convergence),
		rng:       utils.NewRandSource(def.Seed),
		acquire:   acquire,
		minimize:  def.Direction == config.DirectionMinimize,
		status:    StatusCreated,
		bestIdx:   -1,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Definition returns the session definition
func (s *Session) Definition() *config.SessionDefinition {
	return s.def
}

// Space returns the session's parameter space
func (s *Session) Space() *paramspace.Space {
	return s.space
}

// Status returns the current lifecycle state and its reason (set on
// terminal states)
func (s *Session) Status() (Status, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.reason
}

// NextProposal computes the candidate for the next trial and moves the
// session to AwaitingTrial. It returns the candidate and its iteration
// index. With fewer than two observations the model has no informative
// structure, so the proposal falls back to pure exploration.
func (s *Session) NextProposal() (models.ParameterSet, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return nil, 0, ErrSessionTerminal
	}
	if err := s.transition(StatusProposing); err != nil {
		return nil, 0, err
	}

	if len(s.observations) >= s.def.Budget {
		s.terminate(StatusConverged, "iteration budget exhausted")
		return nil, 0, ErrSessionTerminal
	}

	acquire := s.acquire
	if len(s.observations) < 2 {
		acquire = acquisition.ExploreOnly
	} else if !s.gp.Fitted() {
		if err := s.fitModel(); err != nil {
			s.terminate(StatusAborted, "model fit failed: "+err.Error())
			return nil, 0, err
		}
	}

	proposer := acquisition.NewProposer(s.space, acquire, s.def.CandidatePool, 0, s.rng)
	params, err := proposer.Propose(s.gp, s.bestInternal(), len(s.observations) == 0)
	if err != nil {
		// An empty candidate pool means a misconfigured space, fatal
		s.terminate(StatusAborted, "proposal failed: "+err.Error())
		return nil, 0, err
	}

	s.proposed = params
	s.status = StatusAwaitingTrial
	s.updatedAt = time.Now()
	return params.Clone(), len(s.observations) + 1, nil
}

// Proposed returns the candidate currently awaiting its trial
func (s *Session) Proposed() (models.ParameterSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusAwaitingTrial {
		return nil, false
	}
	return s.proposed.Clone(), true
}

// Record appends the observation for the candidate in flight, refits the
// best-so-far, and applies the stopping rules. Observations are immutable
// once recorded.
func (s *Session) Record(score models.QualityScore, capture *models.Capture, noise float64) (models.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return models.Observation{}, ErrSessionTerminal
	}
	if err := s.transition(StatusRecording); err != nil {
		return models.Observation{}, err
	}

	obs := models.Observation{
		Params:     s.proposed.Clone(),
		Objective:  score.Objective,
		Noise:      noise,
		Score:      score,
		Capture:    capture,
		Iteration:  len(s.observations) + 1,
		RecordedAt: time.Now(),
	}
	s.observations = append(s.observations, obs)
	s.retries = 0
	s.proposed = nil

	// Strict improvement only, so ties keep the earliest observation
	if s.bestIdx < 0 || s.internal(obs.Objective) > s.internal(s.observations[s.bestIdx].Objective) {
		s.bestIdx = len(s.observations) - 1
	}

	if err := s.fitModel(); err != nil && err != surrogate.ErrInsufficientData {
		s.terminate(StatusAborted, "model fit failed: "+err.Error())
		return obs, nil
	}

	if len(s.observations) >= s.def.Budget {
		s.terminate(StatusConverged, "iteration budget exhausted")
		return obs, nil
	}
	if ok, reason := s.rule.Converged(s.ruleInput()); ok {
		s.terminate(StatusConverged, reason)
	}
	s.updatedAt = time.Now()
	return obs, nil
}

// RecordFailure annotates the current iteration as failed. Failed trials
// never enter the objective history. Once the retry limit is exceeded the
// session aborts, keeping the partial history and the best so far.
func (s *Session) RecordFailure(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return ErrSessionTerminal
	}
	if err := s.transition(StatusRecording); err != nil {
		return err
	}

	s.failures = append(s.failures, models.TrialFailure{
		Iteration:  len(s.observations) + 1,
		Reason:     reason,
		OccurredAt: time.Now(),
	})
	s.proposed = nil
	s.retries++
	if s.retries > s.def.RetryLimit {
		s.terminate(StatusAborted, fmt.Sprintf("trial failed after %d retries: %s", s.def.RetryLimit, reason))
		return nil
	}
	s.updatedAt = time.Now()
	return nil
}

// Abort terminates the session from any non-terminal state. An aborted
// session keeps its history; Best still reports the best found so far.
func (s *Session) Abort(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return ErrSessionTerminal
	}
	s.terminate(StatusAborted, reason)
	return nil
}

// AttachRating attaches a human rating to a recorded observation's score
// breakdown for auditability. The objective itself is never recomputed.
func (s *Session) AttachRating(iteration, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be in [1,5], got %d", rating)
	}
	for i := range s.observations {
		if s.observations[i].Iteration == iteration {
			r := rating
			s.observations[i].Score.HumanRating = &r
			return nil
		}
	}
	return fmt.Errorf("no observation for iteration %d", iteration)
}

// Best returns the best observation so far: maximal (or minimal, per the
// configured direction) objective, ties broken by earliest recorded.
func (s *Session) Best() (models.Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bestIdx < 0 {
		return models.Observation{}, false
	}
	return s.observations[s.bestIdx], true
}

// Observations returns a copy of the recorded history in append order
func (s *Session) Observations() []models.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Observation, len(s.observations))
	copy(out, s.observations)
	return out
}

// Failures returns a copy of the failure annotations
func (s *Session) Failures() []models.TrialFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TrialFailure, len(s.failures))
	copy(out, s.failures)
	return out
}

// Snapshot is a point-in-time view of a session for the API
type Snapshot struct {
	ID           string              `json:"id"`
	Status       Status              `json:"status"`
	Reason       string              `json:"reason,omitempty"`
	Material     string              `json:"material,omitempty"`
	Observations int                 `json:"observations"`
	Failures     int                 `json:"failures"`
	Budget       int                 `json:"budget"`
	Best         *models.Observation `json:"best,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Snapshot returns the current session view
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:           s.id,
		Status:       s.status,
		Reason:       s.reason,
		Material:     s.def.Material,
		Observations: len(s.observations),
		Failures:     len(s.failures),
		Budget:       s.def.Budget,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
	if s.bestIdx >= 0 {
		best := s.observations[s.bestIdx]
		snap.Best = &best
	}
	return snap
}

// transition moves to the target status if the edge is legal.
// Callers hold the mutex.
func (s *Session) transition(to Status) error {
	for _, allowed := range transitions[s.status] {
		if allowed == to {
			s.status = to
			return nil
		}
	}
	return &InvalidTransitionError{From: s.status, To: to}
}

func (s *Session) terminate(status Status, reason string) {
	s.status = status
	s.reason = reason
	s.updatedAt = time.Now()
}

// internal maps an objective onto the maximization scale
func (s *Session) internal(objective float64) float64 {
	if s.minimize {
		return -objective
	}
	return objective
}

func (s *Session) bestInternal() float64 {
	if s.bestIdx < 0 {
		return 0
	}
	return s.internal(s.observations[s.bestIdx].Objective)
}

// fitModel refits the surrogate on the full history. Callers hold the
// mutex.
func (s *Session) fitModel() error {
	samples := make([]surrogate.Sample, 0, len(s.observations))
	for _, obs := range s.observations {
		x, err := s.space.Encode(obs.Params)
		if err != nil {
			return err
		}
		samples = append(samples, surrogate.Sample{
			X:     x,
			Y:     s.internal(obs.Objective),
			Noise: obs.Noise,
		})
	}
	return s.gp.Fit(samples)
}

func (s *Session) ruleInput() RuleInput {
	objectives := make([]float64, len(s.observations))
	for i, obs := range s.observations {
		objectives[i] = s.internal(obs.Objective)
	}
	in := RuleInput{Objectives: objectives, ModelFitted: s.gp.Fitted()}
	if in.ModelFitted && s.bestIdx >= 0 {
		if x, err := s.space.Encode(s.observations[s.bestIdx].Params); err == nil {
			_, in.BestStddev = s.gp.Predict(x)
		}
	}
	return in
}
