package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/code-100-precent/EchoLink/pkg/voice"
)

// drainPollInterval paces the wait for sessions to finish during shutdown.
const drainPollInterval = 50 * time.Millisecond

// SessionRegistry tracks running voice sessions. The sessions endpoint reads
// it for live snapshots and shutdown waits on it until every session has
// drained.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*voice.Service
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*voice.Service)}
}

// Add registers a running session under its id.
func (r *SessionRegistry) Add(svc *voice.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[svc.ID()] = svc
}

// Remove drops a finished session.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Len returns the number of running sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the running sessions at this moment.
func (r *SessionRegistry) Snapshot() []*voice.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*voice.Service, 0, len(r.sessions))
	for _, svc := range r.sessions {
		out = append(out, svc)
	}
	return out
}

// Wait blocks until every session has been removed or ctx ends.
func (r *SessionRegistry) Wait(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		if r.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
