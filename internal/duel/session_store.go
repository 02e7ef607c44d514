// internal/duel/session_store.go
package duel

import "sync"

// SessionStore tracks the live sessions hosted by this process, keyed by
// room and player, so a reconnecting client reclaims its state machine
// instead of spawning a second writer for the same seat.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

func sessionKey(roomID, playerID string) string { return roomID + "/" + playerID }

func (s *SessionStore) Add(roomID string, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(roomID, sess.PlayerID)] = sess
}

func (s *SessionStore) Get(roomID, playerID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey(roomID, playerID)]
	return sess, ok
}

func (s *SessionStore) Delete(roomID, playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(roomID, playerID))
}
