package server

import (
	"errors"
	"sort"
	"sync"
)

// ErrDuplicateUsername is returned by Register when the username already has
// an active session.
var ErrDuplicateUsername = errors.New("server: username already connected")

// Registry is the shared directory of active sessions keyed by username.
// It is the single source of truth for "who is connected"; all operations
// are serialized so register/unregister/lookup/list never observe a
// half-updated map.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register adds a session under its username. Fails with
// ErrDuplicateUsername if the name is taken; the existing session is left
// untouched.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.Username()]; ok {
		return ErrDuplicateUsername
	}
	r.sessions[s.Username()] = s
	return nil
}

// Unregister removes the session from the registry, but only if the entry
// under its username is this exact session. This keeps a re-registered
// username from being torn down by its predecessor's late cleanup. Reports
// whether an entry was removed.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.Username()]; ok && cur == s {
		delete(r.sessions, s.Username())
		return true
	}
	return false
}

// Lookup retrieves the active session for username.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[username]
	return s, ok
}

// Usernames returns a sorted snapshot of connected usernames. The snapshot
// is stable but may be outdated the moment it is returned.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sessions returns a snapshot of all active sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
