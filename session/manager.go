package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the live sessions of a process. It is safe for concurrent
// use.
type Manager struct {
	idle time.Duration
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates a Manager from configuration.
func New(cfg *Config, opts ...Option) (*Manager, error) {
	if cfg.IdleTimeout.Duration < 0 {
		return nil, fmt.Errorf("negative idle timeout %s", cfg.IdleTimeout)
	}
	m := &Manager{
		idle:     cfg.IdleTimeout.Duration,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Create starts a new session.
func (m *Manager) Create() *Session {
	s := newSession(m.now)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// End removes the session with id, discarding its state.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

// Sweep ends every session not used for longer than idle and returns how
// many were removed. A non-positive idle removes nothing.
func (m *Manager) Sweep(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.lastSeen().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps sessions idle beyond the configured timeout every interval
// until ctx is done. It returns immediately when no timeout is configured.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if m.idle <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.idle)
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
