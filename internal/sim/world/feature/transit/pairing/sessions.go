package pairing

import (
	"sync"

	modelpkg "mobtransit.ai/internal/sim/world/kernel/model"
)

// SessionStore records a player's pending link: initiator id → the Input they started from.
// It is safe for concurrent use so transport handlers can inspect it.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]modelpkg.NodeRef
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[string]modelpkg.NodeRef{}}
}

// Begin records (or replaces) the initiator's session.
func (s *SessionStore) Begin(initiatorID string, input modelpkg.NodeRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[initiatorID] = input
}

func (s *SessionStore) Peek(initiatorID string) (modelpkg.NodeRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.sessions[initiatorID]
	return ref, ok
}

// Take returns and clears the initiator's session.
func (s *SessionStore) Take(initiatorID string) (modelpkg.NodeRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.sessions[initiatorID]
	if ok {
		delete(s.sessions, initiatorID)
	}
	return ref, ok
}

func (s *SessionStore) Cancel(initiatorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[initiatorID]
	delete(s.sessions, initiatorID)
	return ok
}

// DropInput cancels every session that started from input (e.g. the node was removed).
func (s *SessionStore) DropInput(input modelpkg.NodeRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, ref := range s.sessions {
		if ref == input {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Clear wipes all sessions; called on world teardown.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = map[string]modelpkg.NodeRef{}
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
