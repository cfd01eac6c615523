package agent

import (
	"fmt"
	"sync"

	"github.com/featden/featd/internal/model"
)

// Registry maps orchestration session IDs to agent session handles. Each
// backend instance owns one registry so native handles never leak across
// backends. Entries are inserted on CreateSession and removed on
// DeleteSession, CancelOperation cleanup and shutdown, which keeps the
// lifetime of every handle auditable.
type Registry struct {
	sessions map[string]model.AgentSession
	mu       sync.RWMutex
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]model.AgentSession)}
}

// Put stores a session handle. Storing an already registered session fails,
// a session must be deleted before it can be recreated.
func (r *Registry) Put(s model.AgentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("agent session %s: %w", s.ID, model.ErrAlreadyExists)
	}

	r.sessions[s.ID] = s
	return nil
}

// Get retrieves a session handle by orchestration session ID.
func (r *Registry) Get(id string) (*model.AgentSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("agent session %s: %w", id, model.ErrNotFound)
	}

	sCopy := s
	return &sCopy, nil
}

// SetStatus updates the status of a registered session.
func (r *Registry) SetStatus(id string, status model.AgentSessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("agent session %s: %w", id, model.ErrNotFound)
	}

	s.Status = status
	r.sessions[id] = s
	return nil
}

// Delete removes a session handle. Deleting a missing session is a no-op so
// cleanup paths stay idempotent.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
}

// List returns a snapshot of all registered sessions, used to drain
// provider-side resources on shutdown.
func (r *Registry) List() []model.AgentSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]model.AgentSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
