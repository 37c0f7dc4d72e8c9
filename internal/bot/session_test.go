package bot

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substitwt/recaster/internal/domain"
	apperrors "github.com/substitwt/recaster/internal/errors"
)

func testLimits() Limits {
	return Limits{
		RateLimit:         4,
		RateWindow:        240 * time.Second,
		MaxExceeds:        5,
		ExceedWindow:      24 * time.Hour,
		WaitBeforeFirstDM: 5 * time.Second,
	}
}

type sessionFixture struct {
	session *Session
	relay   *mockRelay
	captcha *mockCaptcha
	clock   *clockwork.FakeClock
	removed chan int64
}

func newTestSession(t *testing.T) *sessionFixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	relay := newMockRelay()
	source := newMockCaptcha("What color is the sky?", "blue")
	removed := make(chan int64, 1)

	s := newSession(42, relay, source, clock, testLimits(), func(id int64) { removed <- id })
	t.Cleanup(s.destroy)

	return &sessionFixture{session: s, relay: relay, captcha: source, clock: clock, removed: removed}
}

func dm(text string) domain.DirectMessage {
	return domain.DirectMessage{ID: "900001", SenderID: 42, RecipientID: 1, Text: text}
}

func TestRelayDecrementsQuota(t *testing.T) {
	f := newTestSession(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, f.session.Handle(ctx, dm("hello world")))
	}

	assert.Len(t, f.relay.callsOf("post_status"), 4)
	assert.Equal(t, 0, f.session.State().TweetsRemaining)
	assert.Equal(t, 0, f.session.State().TimesLimitExceeded)
}

func TestRelayDecodesHTMLEntities(t *testing.T) {
	f := newTestSession(t)

	require.NoError(t, f.session.Handle(context.Background(), dm("fish &amp; chips &lt;3")))

	posts := f.relay.callsOf("post_status")
	require.Len(t, posts, 1)
	assert.Equal(t, "fish & chips <3", posts[0].Text)
}

func TestRelayExhaustedSendsNoticeAndCountsOnce(t *testing.T) {
	f := newTestSession(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, f.session.Handle(ctx, dm("msg")))
	}

	err := f.session.Handle(ctx, dm("one too many"))
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))

	// A single excess attempt counts exactly once.
	assert.Equal(t, 1, f.session.State().TimesLimitExceeded)
	// The over-quota message was not reposted.
	assert.Len(t, f.relay.callsOf("post_status"), 4)
	// The sender got a notice over the private channel instead.
	notices := f.relay.callsOf("send_dm")
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Text, "4 messages every 240 seconds")
}

func TestQuotaResetsOnWindowTick(t *testing.T) {
	f := newTestSession(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, f.session.Handle(ctx, dm("msg")))
	}
	require.Equal(t, 0, f.session.State().TweetsRemaining)

	f.clock.Advance(240 * time.Second)

	require.Eventually(t, func() bool {
		return f.session.State().TweetsRemaining == 4
	}, time.Second, 5*time.Millisecond, "quota should replenish on the window tick")
}

func TestExceedCounterResetsOnLongWindowTick(t *testing.T) {
	f := newTestSession(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, f.session.Handle(ctx, dm("msg")))
	}
	_ = f.session.Handle(ctx, dm("excess"))
	require.Equal(t, 1, f.session.State().TimesLimitExceeded)

	f.clock.Advance(24 * time.Hour)

	require.Eventually(t, func() bool {
		return f.session.State().TimesLimitExceeded == 0
	}, time.Second, 5*time.Millisecond)
}

// exhaust drives the session to MaxExceeds excess attempts.
func exhaust(t *testing.T, f *sessionFixture) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, f.session.Handle(ctx, dm("msg")))
	}
	for i := 0; i < 5; i++ {
		err := f.session.Handle(ctx, dm("excess"))
		require.True(t, apperrors.IsRateLimited(err))
	}
	require.Equal(t, 5, f.session.State().TimesLimitExceeded)
}

func TestMaxExceedsIssuesCaptcha(t *testing.T) {
	f := newTestSession(t)
	exhaust(t, f)

	// Next message triggers the challenge instead of another notice.
	require.NoError(t, f.session.Handle(context.Background(), dm("still trying")))

	state := f.session.State()
	assert.True(t, state.CaptchaPending)
	assert.Equal(t, 0, state.TimesLimitExceeded, "counter zeroes as part of issuance")
	assert.Equal(t, 1, f.captcha.fetchCount())
	assert.True(t, f.relay.sentTextWithPrefix("Human check:"), "question sent with first-attempt prefix")
}

func TestCaptchaCorrectAnswerClearsChallenge(t *testing.T) {
	f := newTestSession(t)
	exhaust(t, f)
	require.NoError(t, f.session.Handle(context.Background(), dm("still trying")))
	require.True(t, f.session.State().CaptchaPending)

	// Case and whitespace are normalized before hashing.
	require.NoError(t, f.session.Handle(context.Background(), dm("  BLUE ")))

	assert.False(t, f.session.State().CaptchaPending)
	assert.True(t, f.relay.sentTextWithPrefix("Thank you"))
}

func TestCaptchaWrongAnswerRotatesChallenge(t *testing.T) {
	f := newTestSession(t)
	exhaust(t, f)
	require.NoError(t, f.session.Handle(context.Background(), dm("still trying")))
	require.Equal(t, 1, f.captcha.fetchCount())

	require.NoError(t, f.session.Handle(context.Background(), dm("green")))

	assert.True(t, f.session.State().CaptchaPending, "challenge stays outstanding")
	assert.Equal(t, 2, f.captcha.fetchCount(), "a fresh challenge replaces the old one")
	assert.True(t, f.relay.sentTextWithPrefix("Wrong, try again:"))
}

func TestCaptchaSolvedAllowsRelayAfterReset(t *testing.T) {
	f := newTestSession(t)
	exhaust(t, f)
	ctx := context.Background()
	require.NoError(t, f.session.Handle(ctx, dm("still trying")))
	require.NoError(t, f.session.Handle(ctx, dm("blue")))

	f.clock.Advance(240 * time.Second)
	require.Eventually(t, func() bool {
		return f.session.State().TweetsRemaining == 4
	}, time.Second, 5*time.Millisecond)

	before := len(f.relay.callsOf("post_status"))
	require.NoError(t, f.session.Handle(ctx, dm("back in business")))
	assert.Len(t, f.relay.callsOf("post_status"), before+1)
}

func TestCaptchaServiceFailureClearsPendingState(t *testing.T) {
	f := newTestSession(t)
	exhaust(t, f)
	f.captcha.err = apperrors.CaptchaUnavailable("service down", nil)

	err := f.session.Handle(context.Background(), dm("still trying"))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindCaptchaUnavailable))

	state := f.session.State()
	assert.False(t, state.CaptchaPending, "identity left unchallenged, not retry-looped")
	assert.Equal(t, 0, state.TimesLimitExceeded)
}

func TestUnfollowCommandWinsOverCaptcha(t *testing.T) {
	f := newTestSession(t)
	exhaust(t, f)
	ctx := context.Background()
	require.NoError(t, f.session.Handle(ctx, dm("still trying")))
	require.True(t, f.session.State().CaptchaPending)

	require.NoError(t, f.session.Handle(ctx, dm("  Bye ")))

	assert.True(t, f.relay.sentTextWithPrefix("Bye."), "goodbye sent")
	require.Len(t, f.relay.callsOf("destroy_friendship"), 1)

	select {
	case id := <-f.removed:
		assert.Equal(t, int64(42), id)
	default:
		t.Fatal("session was not removed from the registry")
	}
}

func TestUnfollowTooFastSkipsGoodbye(t *testing.T) {
	f := newTestSession(t)

	f.session.Unfollow(context.Background(), ReasonTooFast)

	assert.Empty(t, f.relay.callsOf("send_dm"))
	assert.Empty(t, f.relay.callsOf("post_status"))
	require.Len(t, f.relay.callsOf("destroy_friendship"), 1)
	assert.False(t, f.session.Followed())
}

func TestFollowBackIsThreeIndependentCalls(t *testing.T) {
	f := newTestSession(t)

	f.session.Follow(context.Background())

	assert.Len(t, f.relay.callsOf("create_friendship"), 1)
	assert.Len(t, f.relay.callsOf("update_friendship"), 1)
	welcome := f.relay.callsOf("send_dm")
	require.Len(t, welcome, 1)
	assert.Contains(t, welcome[0].Text, "Hi.")
	assert.True(t, f.session.Followed())
}

func TestSendMessagePrefersPrivateChannel(t *testing.T) {
	f := newTestSession(t)
	f.relay.setFollowsBack(true)

	f.session.mu.Lock()
	err := f.session.sendMessageLocked(context.Background(), "secret", "")
	f.session.mu.Unlock()
	require.NoError(t, err)

	dms := f.relay.callsOf("send_dm")
	require.Len(t, dms, 1)
	assert.Equal(t, "secret", dms[0].Text)
	assert.Empty(t, f.relay.callsOf("post_status"))
}

func TestSendMessageFallsBackToPublicMention(t *testing.T) {
	f := newTestSession(t)
	f.relay.setFollowsBack(false)

	f.session.mu.Lock()
	err := f.session.sendMessageLocked(context.Background(), "private text", "public text")
	f.session.mu.Unlock()
	require.NoError(t, err)

	posts := f.relay.callsOf("post_status")
	require.Len(t, posts, 1)
	assert.Equal(t, "@somebody public text", posts[0].Text)
	assert.Empty(t, f.relay.callsOf("send_dm"))
}

func TestMentionsAreNeverRelayed(t *testing.T) {
	f := newTestSession(t)

	require.NoError(t, f.session.Handle(context.Background(), domain.Mention{
		ID:       "500",
		AuthorID: 42,
		Text:     "hello @bot",
	}))

	assert.Empty(t, f.relay.callsOf("post_status"))
	assert.Equal(t, 4, f.session.State().TweetsRemaining)
}

func TestIsUnfollowCommand(t *testing.T) {
	for _, text := range []string{"bye", "UNFOLLOW", " unfollow me ", "Stop"} {
		assert.True(t, IsUnfollowCommand(text), text)
	}
	for _, text := range []string{"goodbye", "stop it", "please unfollow me"} {
		assert.False(t, IsUnfollowCommand(text), text)
	}
}
