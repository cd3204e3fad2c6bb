// Package session keeps chat histories in process memory.
package session

import (
	"errors"
	"sync"

	"barista-backend/internal/models"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrUnknownSession = errors.New("append to unknown session")
)

// History is an ordered conversation, oldest turn first.
type History []models.Turn

// Seed turns every new session starts with.
var seedTurns = History{
	{
		Role: models.RoleSystem,
		Text: "sistem: kamu adalah customer service dari coffee shop, selalu hangat kepada customer, dan selalu beri jawaban kurang dari 1 kalimat",
	},
	{
		Role: models.RoleModel,
		Text: "Siap! Saya akan membantu Anda sebagai customer service coffee shop yang ramah. ☕",
	},
}

// SeedTurns returns a copy of the turns a new session is created with.
func SeedTurns() History {
	return append(History(nil), seedTurns...)
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Store maps session ids to histories. It lives for the process lifetime;
// sessions are only removed by Clear.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]History

	locksMu sync.Mutex
	locks   map[string]*keyLock
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]History),
		locks:    make(map[string]*keyLock),
	}
}

// Lock serializes work on one session id. Callers on other ids are never
// blocked. The returned func releases the lock and must be called once.
func (s *Store) Lock(sessionID string) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &keyLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			s.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, sessionID)
			}
			s.locksMu.Unlock()
		})
	}
}

// GetOrCreate returns a copy of the session history, creating it with the
// seed turns on first use.
func (s *Store) GetOrCreate(sessionID string) History {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.sessions[sessionID]
	if !ok {
		h = SeedTurns()
		s.sessions[sessionID] = h
	}
	return clone(h)
}

func (s *Store) Append(sessionID string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	s.sessions[sessionID] = append(h, turn)
	return nil
}

// RemoveLast drops the most recent turn. Unknown or empty sessions are left
// untouched.
func (s *Store) RemoveLast(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.sessions[sessionID]
	if len(h) == 0 {
		return
	}
	s.sessions[sessionID] = h[:len(h)-1]
}

// Clear deletes the session and reports whether it existed.
func (s *Store) Clear(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	return true
}

func (s *Store) Read(sessionID string) (History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(h), nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func clone(h History) History {
	out := make(History, len(h))
	copy(out, h)
	return out
}
