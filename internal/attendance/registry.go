package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry holds the open sessions of all markers in memory.
type Registry struct {
	resolver *Resolver
	writer   Writer
	notifier Notifier
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, which also decides the default date.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithNotifier sets the receiver of submitted batches.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// NewRegistry creates a registry whose idle sessions expire after ttl.
func NewRegistry(store Store, ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{
		resolver: NewResolver(store),
		writer:   store,
		ttl:      ttl,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open starts an empty session for the marker, dated today.
func (r *Registry) Open(m Marker) *Session {
	s := newSession(uuid.NewString(), m, r.resolver, r.writer, r.notifier, r.now)
	r.mu.Lock()
	r.sessions[s.id] = s
	openSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	return s
}

// Get returns the marker's session. Sessions of other markers and expired
// sessions are reported as ErrSessionNotFound.
func (r *Registry) Get(id string, m Marker) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok || s.marker.ID != m.ID || r.expired(s) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Close discards the marker's session.
func (r *Registry) Close(id string, m Marker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.marker.ID != m.ID {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	openSessions.Set(float64(len(r.sessions)))
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if r.expired(s) {
			delete(r.sessions, id)
			removed++
		}
	}
	openSessions.Set(float64(len(r.sessions)))
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Len returns the number of sessions held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) expired(s *Session) bool {
	if r.ttl <= 0 {
		return false
	}
	last, busy := s.idleSince()
	return !busy && r.now().Sub(last) > r.ttl
}
