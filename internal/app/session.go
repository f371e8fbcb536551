package app

import (
	"sync"

	"github.com/pscheid92/fazzk/internal/domain"
)

// SessionState holds the session whose channel is being monitored.
type SessionState struct {
	mu      sync.RWMutex
	session *domain.Session
}

func NewSessionState() *SessionState {
	return &SessionState{}
}

func (s *SessionState) CurrentSession() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return domain.Session{}, false
	}
	return *s.session, true
}

func (s *SessionState) Set(session domain.Session) {
	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()
}

func (s *SessionState) Clear() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}
