package session

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns the set of live sessions. Sessions are created when an admin
// authenticates and remove themselves when they close (admin gone past the
// grace period, or shutdown).
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	cfg      Config
	log      *zap.Logger
}

// NewManager creates a session manager.
func NewManager(cfg Config, log *zap.Logger) *Manager {
	return &Manager{sessions: make(map[uuid.UUID]*Session), cfg: cfg, log: log}
}

// Create starts a new session for the given admin display name.
func (m *Manager) Create(adminName string) *Session {
	s := NewSession(adminName, m.cfg, m.log, m.remove)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.log.Info("session created",
		zap.String("session_id", s.ID.String()),
		zap.String("admin", adminName))
	return s
}

// Get returns the live session with the given ID.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// FindByAdminName returns the live session created by the given admin
// display name, if any. Used to hand a re-authenticating admin their
// existing session instead of spawning a second one.
func (m *Manager) FindByAdminName(name string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.AdminName == name {
			return s, true
		}
	}
	return nil, false
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every live session with the given reason.
func (m *Manager) Shutdown(reason string) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.Close(reason)
	}
}

func (m *Manager) remove(id uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
