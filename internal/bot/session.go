// Package bot holds the relay bot's core: the per-identity session state
// machine, the session registry, the stream dispatcher, and the moderation
// filter.
package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"

	"github.com/substitwt/recaster/internal/captcha"
	"github.com/substitwt/recaster/internal/domain"
	"github.com/substitwt/recaster/internal/errors"
	"github.com/substitwt/recaster/internal/logging"
	"github.com/substitwt/recaster/internal/metrics"
)

// Limits carries the tunable abuse-control constants shared by all sessions.
type Limits struct {
	RateLimit         int
	RateWindow        time.Duration
	MaxExceeds        int
	ExceedWindow      time.Duration
	WaitBeforeFirstDM time.Duration
}

// UnfollowReason labels why a session is being torn down.
type UnfollowReason string

const (
	ReasonRequested UnfollowReason = "requested"
	ReasonTooFast   UnfollowReason = "too-fast"
)

var unfollowCommands = map[string]struct{}{
	"bye":         {},
	"unfollow":    {},
	"unfollow me": {},
	"stop":        {},
}

const (
	welcomeText        = "Hi. You can unfollow me now. Your private messages to this account will be reposted publicly."
	goodbyeText        = "Bye. Sorry to see you go."
	captchaFirstPrefix = "Human check:\n"
	captchaRetryPrefix = "Wrong, try again:\n"
	captchaSolvedText  = "Thank you, I think you are a human. You can now send messages again."
	limitNoticeFormat  = "I didn't repost your last message. %d messages every %d seconds max. Please wait %s before trying again."
)

// Session is the bot's runtime state for one platform identity. All field
// access goes through mu; the two reset tickers take the same lock, so an
// event handler and a timer tick never interleave.
type Session struct {
	id      int64
	relay   domain.Relay
	captcha domain.CaptchaSource
	clock   clockwork.Clock
	limits  Limits

	mu                 sync.Mutex
	followed           bool
	tweetsRemaining    int
	timesLimitExceeded int
	pendingAnswers     map[string]struct{}
	createdAt          time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	onRemove func(id int64)
}

// State is a point-in-time snapshot of a session, taken under the lock.
type State struct {
	ID                 int64
	Followed           bool
	TweetsRemaining    int
	TimesLimitExceeded int
	CaptchaPending     bool
	CreatedAt          time.Time
}

func newSession(id int64, relay domain.Relay, source domain.CaptchaSource, clock clockwork.Clock, limits Limits, onRemove func(int64)) *Session {
	s := &Session{
		id:              id,
		relay:           relay,
		captcha:         source,
		clock:           clock,
		limits:          limits,
		tweetsRemaining: limits.RateLimit,
		createdAt:       clock.Now(),
		stopCh:          make(chan struct{}),
		onRemove:        onRemove,
	}

	// Tickers are created here, not in the goroutines, so they are armed by
	// the time the constructor returns.
	go s.resetLoop(clock.NewTicker(limits.RateWindow), func() { s.tweetsRemaining = limits.RateLimit })
	go s.resetLoop(clock.NewTicker(limits.ExceedWindow), func() { s.timesLimitExceeded = 0 })

	return s
}

// resetLoop fires the periodic counter reset until the session is destroyed.
// Resets are fixed ticks measured from session creation, not sliding windows.
func (s *Session) resetLoop(ticker clockwork.Ticker, reset func()) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.mu.Lock()
			reset()
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Session) ID() int64 { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		ID:                 s.id,
		Followed:           s.followed,
		TweetsRemaining:    s.tweetsRemaining,
		TimesLimitExceeded: s.timesLimitExceeded,
		CaptchaPending:     len(s.pendingAnswers) > 0,
		CreatedAt:          s.createdAt,
	}
}

// markPreexisting backdates the session so the first-message gate is already
// satisfied. Used for identities from the friends snapshot, which are
// established relationships rather than new followers.
func (s *Session) markPreexisting() {
	s.mu.Lock()
	s.followed = true
	s.createdAt = s.createdAt.Add(-s.limits.WaitBeforeFirstDM)
	s.mu.Unlock()
}

// tooFast reports whether a message arrived before the minimum elapsed time
// since session creation.
func (s *Session) tooFast() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Now().Sub(s.createdAt) < s.limits.WaitBeforeFirstDM
}

// IsUnfollowCommand reports whether the trimmed, case-folded text is one of
// the recognized unfollow commands.
func IsUnfollowCommand(text string) bool {
	_, ok := unfollowCommands[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// Handle runs one inbound message through the state machine. The unfollow
// command wins over everything, then captcha issuance, then captcha
// verification, then the relay itself. Mentions reach this point only to
// satisfy liveness checks; their content is never relayed.
func (s *Session) Handle(ctx context.Context, ev domain.Event) error {
	var text string
	isDirectMessage := false

	switch e := ev.(type) {
	case domain.DirectMessage:
		text = e.Text
		isDirectMessage = true
	case domain.Mention:
		text = e.Text
	default:
		return nil
	}

	if IsUnfollowCommand(text) {
		s.Unfollow(ctx, ReasonRequested)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timesLimitExceeded == s.limits.MaxExceeds {
		return s.issueCaptchaLocked(ctx)
	}

	if len(s.pendingAnswers) > 0 {
		return s.verifyCaptchaLocked(ctx, text)
	}

	if isDirectMessage {
		return s.relayLocked(ctx, text)
	}
	return nil
}

// relayLocked reposts the message publicly if quota remains; otherwise it
// sends the rate-limit notice and counts the excess attempt.
func (s *Session) relayLocked(ctx context.Context, text string) error {
	if s.tweetsRemaining > 0 {
		s.tweetsRemaining--
		if err := s.relay.PostStatus(ctx, html.UnescapeString(text)); err != nil {
			metrics.RelaysTotal.WithLabelValues("error").Inc()
			return err
		}
		metrics.RelaysTotal.WithLabelValues("relayed").Inc()
		return nil
	}

	notice := fmt.Sprintf(limitNoticeFormat,
		s.limits.RateLimit,
		int(s.limits.RateWindow.Seconds()),
		s.humanizedUntilReset(),
	)
	if err := s.sendMessageLocked(ctx, notice, ""); err != nil {
		logging.WithUser(s.id).Warn("Failed to send rate limit notice", "error", err)
	}

	if s.tweetsRemaining == 0 {
		s.timesLimitExceeded++
	}

	metrics.RelaysTotal.WithLabelValues("rate_limited").Inc()
	return errors.RateLimited("relay quota exhausted")
}

// durationUntilReset computes the time until the next periodic quota reset,
// measured from session creation modulo the window.
func (s *Session) durationUntilReset() time.Duration {
	elapsed := s.clock.Now().Sub(s.createdAt) % s.limits.RateWindow
	return s.limits.RateWindow - elapsed
}

func (s *Session) humanizedUntilReset() string {
	now := s.clock.Now()
	return strings.TrimSpace(humanize.RelTime(now.Add(s.durationUntilReset()), now, "", ""))
}

// issueCaptchaLocked fetches a fresh challenge and sends its question. The
// exceed counter zeroes as part of issuance. A failed fetch clears any
// pending challenge and leaves the identity unchallenged until the next
// trigger; there is no retry loop against the captcha service.
func (s *Session) issueCaptchaLocked(ctx context.Context) error {
	wasPending := len(s.pendingAnswers) > 0
	s.timesLimitExceeded = 0

	challenge, err := s.captcha.Fetch(ctx)
	if err != nil {
		s.pendingAnswers = nil
		logging.WithUser(s.id).Warn("Captcha service unavailable, clearing challenge", "error", err)
		return err
	}

	s.pendingAnswers = make(map[string]struct{}, len(challenge.AnswerHashes))
	for _, h := range challenge.AnswerHashes {
		s.pendingAnswers[h] = struct{}{}
	}

	prefix := captchaFirstPrefix
	if wasPending {
		prefix = captchaRetryPrefix
	}

	metrics.CaptchasIssuedTotal.Inc()
	return s.sendMessageLocked(ctx, prefix+challenge.Question, "")
}

// verifyCaptchaLocked tests the reply against the accepted digests. A match
// clears the challenge; a miss always rotates to a fresh question.
func (s *Session) verifyCaptchaLocked(ctx context.Context, answer string) error {
	if _, ok := s.pendingAnswers[captcha.HashAnswer(answer)]; ok {
		s.pendingAnswers = nil
		metrics.CaptchasSolvedTotal.Inc()
		return s.sendMessageLocked(ctx, captchaSolvedText, "")
	}
	return s.issueCaptchaLocked(ctx)
}

// sendMessageLocked delivers privately when the identity follows the bot
// back, and falls back to a public @-mention otherwise (private messaging
// requires a mutual follow on the platform).
func (s *Session) sendMessageLocked(ctx context.Context, private, publicFallback string) error {
	if publicFallback == "" {
		publicFallback = private
	}

	friendship, err := s.relay.LookupFriendship(ctx, s.id)
	if err != nil {
		return err
	}

	if friendship.FollowsBack {
		return s.relay.SendDirectMessage(ctx, s.id, private)
	}
	return s.relay.PostStatus(ctx, "@"+friendship.ScreenName+" "+publicFallback)
}

// Follow performs the follow-back: friendship create, relaxed notification
// settings, and the welcome message. The three calls are independent
// best-effort operations; one failing does not roll back the others.
func (s *Session) Follow(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.relay.CreateFriendship(ctx, s.id); err != nil {
		logging.WithUser(s.id).Error("Follow-back failed", "error", err)
	} else {
		s.followed = true
	}

	if err := s.relay.UpdateFriendship(ctx, s.id, domain.FriendshipSettings{}); err != nil {
		logging.WithUser(s.id).Warn("Friendship settings update failed", "error", err)
	}

	if err := s.relay.SendDirectMessage(ctx, s.id, welcomeText); err != nil {
		logging.WithUser(s.id).Warn("Welcome message failed", "error", err)
	}
}

// Followed reports whether the bot currently follows this identity.
func (s *Session) Followed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.followed
}

// Unfollow tears the session down. The too-fast reason skips the goodbye
// message; every path removes the session from the registry and stops its
// timers, so a later event recreates a fresh session.
func (s *Session) Unfollow(ctx context.Context, reason UnfollowReason) {
	s.mu.Lock()

	if reason != ReasonTooFast {
		if err := s.sendMessageLocked(ctx, goodbyeText, ""); err != nil {
			logging.WithUser(s.id).Warn("Goodbye message failed", "error", err)
		}
	}

	if err := s.relay.DestroyFriendship(ctx, s.id); err != nil {
		logging.WithUser(s.id).Error("Friendship destroy failed", "error", err)
	} else {
		s.followed = false
	}
	s.mu.Unlock()

	metrics.UnfollowsTotal.WithLabelValues(string(reason)).Inc()
	s.destroy()
}

// destroy stops the reset timers and removes the session from the registry.
// Idempotent.
func (s *Session) destroy() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.onRemove != nil {
			s.onRemove(s.id)
		}
	})
}
