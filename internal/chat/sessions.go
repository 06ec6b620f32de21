package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/dost/internal/observe"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("chat: session not found")

// Sessions keeps the open conversations of a server. Sessions idle for longer
// than the configured TTL are dropped by [Sessions.Sweep].
type Sessions struct {
	responder Responder
	ttl       time.Duration
	metrics   *observe.Metrics
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates a manager whose sessions all answer with responder. A
// non-positive ttl disables expiry.
func NewSessions(responder Responder, ttl time.Duration, m *observe.Metrics) *Sessions {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Sessions{
		responder: responder,
		ttl:       ttl,
		metrics:   m,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Create opens a new conversation.
func (m *Sessions) Create(ctx context.Context) *Session {
	s := New(m.responder, WithMetrics(m.metrics), withClock(m.now))
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	m.metrics.ActiveChatSessions.Add(ctx, 1)
	return s
}

// Get returns the session with id.
func (m *Sessions) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete closes the session with id.
func (m *Sessions) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.metrics.ActiveChatSessions.Add(ctx, -1)
	return nil
}

// Len returns the number of open sessions.
func (m *Sessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were removed.
func (m *Sessions) Sweep(ctx context.Context) int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)
	m.mu.Lock()
	n := 0
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	m.mu.Unlock()
	if n > 0 {
		m.metrics.ActiveChatSessions.Add(ctx, int64(-n))
		slog.Debug("chat: expired idle sessions", "count", n)
	}
	return n
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Sessions) Run(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep(ctx)
		}
	}
}
