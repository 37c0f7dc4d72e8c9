package bot

import (
	"context"
	"strings"
	"sync"

	"github.com/substitwt/recaster/internal/captcha"
	"github.com/substitwt/recaster/internal/domain"
)

// --- Mocks ---

type relayCall struct {
	Op     string
	Text   string
	UserID int64
	ID     string
}

type mockRelay struct {
	mu    sync.Mutex
	calls []relayCall

	screenName  string
	followsBack bool

	postErr    error
	dmErr      error
	lookupErr  error
	destroyErr error
}

func newMockRelay() *mockRelay {
	return &mockRelay{screenName: "somebody", followsBack: true}
}

func (m *mockRelay) record(c relayCall) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

func (m *mockRelay) callsOf(op string) []relayCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []relayCall
	for _, c := range m.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockRelay) setFollowsBack(v bool) {
	m.mu.Lock()
	m.followsBack = v
	m.mu.Unlock()
}

func (m *mockRelay) PostStatus(_ context.Context, text string) error {
	m.record(relayCall{Op: "post_status", Text: text})
	return m.postErr
}

func (m *mockRelay) SendDirectMessage(_ context.Context, userID int64, text string) error {
	m.record(relayCall{Op: "send_dm", UserID: userID, Text: text})
	return m.dmErr
}

func (m *mockRelay) DestroyDirectMessage(_ context.Context, messageID string) error {
	m.record(relayCall{Op: "destroy_dm", ID: messageID})
	return nil
}

func (m *mockRelay) DestroyStatus(_ context.Context, statusID string) error {
	m.record(relayCall{Op: "destroy_status", ID: statusID})
	return nil
}

func (m *mockRelay) CreateFriendship(_ context.Context, userID int64) error {
	m.record(relayCall{Op: "create_friendship", UserID: userID})
	return nil
}

func (m *mockRelay) DestroyFriendship(_ context.Context, userID int64) error {
	m.record(relayCall{Op: "destroy_friendship", UserID: userID})
	return m.destroyErr
}

func (m *mockRelay) UpdateFriendship(_ context.Context, userID int64, _ domain.FriendshipSettings) error {
	m.record(relayCall{Op: "update_friendship", UserID: userID})
	return nil
}

func (m *mockRelay) LookupFriendship(_ context.Context, userID int64) (domain.Friendship, error) {
	m.record(relayCall{Op: "lookup_friendship", UserID: userID})
	if m.lookupErr != nil {
		return domain.Friendship{}, m.lookupErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.Friendship{ScreenName: m.screenName, FollowsBack: m.followsBack}, nil
}

type mockCaptcha struct {
	mu       sync.Mutex
	question string
	answers  []string
	err      error
	fetches  int
}

func newMockCaptcha(question string, answers ...string) *mockCaptcha {
	return &mockCaptcha{question: question, answers: answers}
}

func (m *mockCaptcha) Fetch(_ context.Context) (*domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.err != nil {
		return nil, m.err
	}
	hashes := make([]string, 0, len(m.answers))
	for _, a := range m.answers {
		hashes = append(hashes, captcha.HashAnswer(a))
	}
	return &domain.Challenge{Question: m.question, AnswerHashes: hashes}, nil
}

func (m *mockCaptcha) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// sentTexts collects every outbound text (posts and private messages) for
// content assertions.
func (m *mockRelay) sentTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if c.Op == "post_status" || c.Op == "send_dm" {
			out = append(out, c.Text)
		}
	}
	return out
}

func (m *mockRelay) sentTextWithPrefix(prefix string) bool {
	for _, t := range m.sentTexts() {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}
