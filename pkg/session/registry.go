package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get/Remove when no session exists for the
// given id.
var ErrNotFound = errors.New("session: not found")

// Registry is an RWMutex-guarded map from session id to Session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create mints a new session id and registers a fresh Session under it.
func (r *Registry) Create() *Session {
	id := uuid.New().String()
	s := New(id)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	return s
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove unregisters and tears down the session for id, if present.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	return s.Close()
}

// ShutdownAll tears down every registered session and empties the
// registry.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range snapshot {
		_ = s.Close()
	}
}
