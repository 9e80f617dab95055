package app

import (
	"sync"

	"agrovision/pkg/domain"
)

// session is the in-memory half of one authenticated session: the state
// machine position and the chat transcript. The user record itself lives in
// the record store; the transcript deliberately does not survive restarts.
type session struct {
	mu         sync.Mutex
	userID     string
	state      State
	transcript []domain.ChatMessage
}

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session // token -> session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

// getOrCreate returns the session for token, lazily rebuilding one in IDLE
// when the token is valid but the process has restarted since login.
func (r *sessionRegistry) getOrCreate(token, userID string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		return s
	}
	s := &session{userID: userID, state: IdleState{}}
	r.sessions[token] = s
	return s
}

func (r *sessionRegistry) drop(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
}
