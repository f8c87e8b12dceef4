package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slok/cartpool/internal/model"
)

// Registry is the side table of the active sessions by task, used by
// inspection and manual intervention tooling. It's not the owner of the
// sessions, the supervisor slots are.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]model.ActiveSession
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]model.ActiveSession{}}
}

// Add registers the active session of a task.
func (r *Registry) Add(s model.ActiveSession) error {
	if s.TaskID == "" {
		return fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.TaskID]; ok {
		return fmt.Errorf("session for task %s: %w", s.TaskID, model.ErrAlreadyExists)
	}
	r.sessions[s.TaskID] = s
	return nil
}

// SetHold marks the session of a task as held until the time.
func (r *Registry) SetHold(taskID string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[taskID]
	if !ok {
		return fmt.Errorf("session for task %s: %w", taskID, model.ErrNotFound)
	}
	s.HoldUntil = &until
	r.sessions[taskID] = s
	return nil
}

// Remove removes the session of a task, missing ones are ignored.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, taskID)
}

// Get returns the active session of a task.
func (r *Registry) Get(taskID string) (*model.ActiveSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[taskID]
	if !ok {
		return nil, fmt.Errorf("session for task %s: %w", taskID, model.ErrNotFound)
	}
	return &s, nil
}

// List returns the active sessions, oldest first.
func (r *Registry) List() []model.ActiveSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]model.ActiveSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].TaskID < sessions[j].TaskID
		}
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions
}
