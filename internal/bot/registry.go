package bot

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/substitwt/recaster/internal/domain"
	"github.com/substitwt/recaster/internal/metrics"
)

// Registry is the process-wide map from platform identity ID to its session.
// Creation and removal are both check-then-act sequences, so every mutation
// runs under one mutex; no two sessions can ever exist for the same ID.
type Registry struct {
	relay   domain.Relay
	captcha domain.CaptchaSource
	clock   clockwork.Clock
	limits  Limits

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewRegistry(relay domain.Relay, source domain.CaptchaSource, clock clockwork.Clock, limits Limits) *Registry {
	return &Registry{
		relay:    relay,
		captcha:  source,
		clock:    clock,
		limits:   limits,
		sessions: make(map[int64]*Session),
	}
}

// Lookup returns the session for id, if one exists.
func (r *Registry) Lookup(id int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// LookupOrCreate returns the session for id, creating one lazily. The second
// return reports whether a new session was created.
func (r *Registry) LookupOrCreate(id int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, false
	}

	s := newSession(id, r.relay, r.captcha, r.clock, r.limits, r.Remove)
	r.sessions[id] = s
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	return s, true
}

// Remove deletes the session for id. Safe to call for an absent ID; sessions
// call this themselves as part of their unfollow transition.
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	metrics.SessionsActive.Set(float64(len(r.sessions)))
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// States snapshots every live session, for the status page.
func (r *Registry) States() []State {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	states := make([]State, 0, len(sessions))
	for _, s := range sessions {
		states = append(states, s.State())
	}
	return states
}
