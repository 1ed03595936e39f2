package session

import (
	"fmt"
	"sync"
)

// Store holds the sessions known to the daemon. One physical rig serves
// one active session at a time; the store enforces that on Create.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Create registers a session. It fails if the identifier is already in
// use or another session is still active.
func (s *Store) Create(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID()]; exists {
		return fmt.Errorf("session already exists: %s", sess.ID())
	}
	for _, id := range s.order {
		status, _ := s.sessions[id].Status()
		if !status.Terminal() {
			return fmt.Errorf("session %s is still active", id)
		}
	}

	s.sessions[sess.ID()] = sess
	s.order = append(s.order, sess.ID())
	return nil
}

// Get returns the session with the given identifier
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// List returns sessions in creation order, newest last
func (s *Store) List(limit int) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*Session, 0, limit)
	for _, id := range s.order[len(s.order)-limit:] {
		out = append(out, s.sessions[id])
	}
	return out
}

// Active returns the non-terminal session, if any
func (s *Store) Active() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		sess := s.sessions[id]
		status, _ := sess.Status()
		if !status.Terminal() {
			return sess, true
		}
	}
	return nil, false
}
