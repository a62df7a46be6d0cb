package session

import (
	"sync"
	"time"
)

// Manager keeps every live session keyed by ID so that concurrent browser
// clients never share a History.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	now         func() time.Time
}

// NewManager creates a session manager. A non-positive idleTimeout disables expiry.
func NewManager(idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Get returns the live session with the given ID
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}

	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if m.expired(sess) {
		m.Remove(id)
		return nil, false
	}

	sess.Touch()
	return sess, true
}

// GetOrCreate returns the session for id, creating a new one when id is
// unknown or has expired. The boolean reports whether a session was created.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	if sess, ok := m.Get(id); ok {
		return sess, false
	}
	return m.Create(), true
}

// Create registers a new empty session
func (m *Manager) Create() *Session {
	sess := New()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.sessions[sess.ID] = sess
	return sess
}

// Remove drops a session; its history is released with it
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns the number of tracked sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) expired(sess *Session) bool {
	if m.idleTimeout <= 0 {
		return false
	}
	return m.now().Sub(sess.LastActive()) > m.idleTimeout
}

// sweepLocked evicts idle sessions; callers hold m.mu
func (m *Manager) sweepLocked() {
	if m.idleTimeout <= 0 {
		return
	}
	for id, sess := range m.sessions {
		if m.expired(sess) {
			delete(m.sessions, id)
		}
	}
}
