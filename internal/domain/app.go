package domain

import "sync"

// BotIdentity is the bot's own platform account, captured by credential
// verification.
type BotIdentity struct {
	ID          int64
	Name        string
	ScreenName  string
	Description string
}

// AppState is the process-wide observable state shared between the credential
// verifier, the dispatcher, and the status page. All access is mutex-guarded;
// the zero value is ready to use.
type AppState struct {
	mu       sync.RWMutex
	identity BotIdentity
	status   string
}

func (s *AppState) SetIdentity(id BotIdentity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
}

func (s *AppState) Identity() BotIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *AppState) SetStreamStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *AppState) StreamStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
