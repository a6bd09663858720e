package server

import (
	"errors"
	"sync"

	"github.com/prepstudio/mockview/internal/interview"
	"github.com/prepstudio/mockview/internal/media"
)

// ErrSessionNotFound is returned for lookups of unknown or removed sessions.
var ErrSessionNotFound = errors.New("server: session not found")

// liveSession bundles everything the HTTP surface needs for one interview:
// the orchestrator plus the ingest source its capture reads from.
type liveSession struct {
	ID     string
	Orch   *interview.Orchestrator
	Ingest *media.IngestSource
}

func (s *liveSession) close() {
	s.Orch.Close()
	s.Ingest.Close()
}

// Registry tracks in-flight interview sessions by id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*liveSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*liveSession)}
}

func (r *Registry) Add(s *liveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[s.ID]; ok {
		old.close()
	}
	r.sessions[s.ID] = s
}

func (r *Registry) Get(id string) (*liveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove tears the session down and forgets it.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	return nil
}

// Shutdown closes every live session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*liveSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*liveSession)
	r.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}
