package records

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Fixtures is the on-disk layout read by LoadFixtures.
type Fixtures struct {
	Visits   []Visit   `yaml:"visits"`
	Sessions []Session `yaml:"sessions"`
}

// MemoryStore is an in-process VisitRepository and SessionRepository.
// Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	visits   map[string]*Visit
	sessions map[string]*Session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		visits:   make(map[string]*Visit),
		sessions: make(map[string]*Session),
	}
}

// LoadFixtures reads a YAML fixture file into a new store.
func LoadFixtures(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}

	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}

	s := NewMemoryStore()
	for i := range fx.Visits {
		s.PutVisit(&fx.Visits[i])
	}
	for i := range fx.Sessions {
		s.PutSession(&fx.Sessions[i])
	}
	return s, nil
}

// PutVisit stores or replaces a visit.
func (s *MemoryStore) PutVisit(v *Visit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits[v.ID] = v
}

// PutSession stores or replaces a session.
func (s *MemoryStore) PutSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

// Visit returns the visit with the given ID.
func (s *MemoryStore) Visit(_ context.Context, id string) (*Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.visits[id]
	if !ok {
		return nil, fmt.Errorf("visit %s: %w", id, ErrNotFound)
	}
	return v, nil
}

// Session returns a copy of the session with its visit attached.
func (s *MemoryStore) Session(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	out := *sess
	out.Messages = append([]ChatMessage(nil), sess.Messages...)
	if out.Visit == nil {
		out.Visit = s.visits[sess.VisitID]
	}
	return &out, nil
}

// AppendMessage adds a message to a session, creating the session if needed.
func (s *MemoryStore) AppendMessage(_ context.Context, sessionID string, msg ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	sess.Messages = append(sess.Messages, msg)
	return nil
}
