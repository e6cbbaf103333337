package core

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrSessionNotFound is returned for an unknown or evicted session ID.
var ErrSessionNotFound = errors.New("session not found")

// ErrTooManySessions is returned when the registry is full and no session
// is idle long enough to evict.
var ErrTooManySessions = errors.New("too many sessions")

// Registry defaults.
const (
	DefaultMaxSessions = 64
	DefaultIdleTTL     = 30 * time.Minute
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	MaxSessions int
	IdleTTL     time.Duration

	// Session is the template for every session the registry creates.
	// Its ID field is ignored.
	Session SessionOptions
}

// Registry holds one Session per browser session.
type Registry struct {
	opts RegistryOptions
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	return &Registry{
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session. When the registry is full, idle sessions
// are evicted first.
func (r *Registry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.opts.MaxSessions {
		r.evictIdleLocked(r.now())
	}
	if len(r.sessions) >= r.opts.MaxSessions {
		return nil, ErrTooManySessions
	}

	opts := r.opts.Session
	opts.ID = ""
	s := NewSession(opts)
	r.sessions[s.ID()] = s
	return s, nil
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove drops a session, cancelling any import it has in flight.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.CancelImport()
	}
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the live session IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EvictIdle removes sessions unused for longer than the idle TTL and
// returns how many were removed. Sessions with an import in flight stay.
func (r *Registry) EvictIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictIdleLocked(r.now())
}

func (r *Registry) evictIdleLocked(now time.Time) int {
	cutoff := now.Add(-r.opts.IdleTTL)
	evicted := 0
	for id, s := range r.sessions {
		if s.Importing() || s.LastUsed().After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		evicted++
	}
	if evicted > 0 {
		slog.Debug("evicted idle sessions", "count", evicted, "remaining", len(r.sessions))
	}
	return evicted
}
