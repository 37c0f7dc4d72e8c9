package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/substitwt/recaster/internal/correlation"
	"github.com/substitwt/recaster/internal/domain"
	"github.com/substitwt/recaster/internal/errors"
	"github.com/substitwt/recaster/internal/metrics"
)

// Stream status strings shown on the status page.
const (
	StatusConnected    = "CONNECTED"
	StatusDisconnected = "DISCONNECTED"
	StatusLimited      = "LIMITED"
)

// Dispatcher consumes the live event feed, classifies each event, and routes
// it to the moderation filter or the right identity session. One event is
// handled to completion before the next; per-identity state stays serialized
// through each session's own lock.
type Dispatcher struct {
	registry    *Registry
	relay       domain.Relay
	moderation  *ModerationFilter
	state       *domain.AppState
	clock       clockwork.Clock
	deleteDelay time.Duration
}

func NewDispatcher(registry *Registry, relay domain.Relay, moderation *ModerationFilter, state *domain.AppState, clock clockwork.Clock, deleteDelay time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		relay:       relay,
		moderation:  moderation,
		state:       state,
		clock:       clock,
		deleteDelay: deleteDelay,
	}
}

// Run consumes events until ctx is cancelled or the feed channel closes.
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			evCtx := correlation.WithID(ctx, correlation.NewID())
			d.dispatch(evCtx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev domain.Event) {
	// A failure handling one identity's event must never take down the loop.
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Recovered panic in event handler", "panic", r)
		}
	}()

	switch e := ev.(type) {
	case domain.FriendsSnapshot:
		metrics.EventsTotal.WithLabelValues("friends_snapshot").Inc()
		d.handleFriendsSnapshot(ctx, e)
	case domain.FollowNotification:
		metrics.EventsTotal.WithLabelValues("follow").Inc()
		d.handleFollow(ctx, e)
	case domain.DirectMessage:
		metrics.EventsTotal.WithLabelValues("direct_message").Inc()
		d.handleDirectMessage(ctx, e)
	case domain.Mention:
		metrics.EventsTotal.WithLabelValues("mention").Inc()
		d.handleMention(ctx, e)
	case domain.Connectivity:
		metrics.EventsTotal.WithLabelValues("connectivity").Inc()
		d.handleConnectivity(ctx, e)
	default:
		slog.WarnContext(ctx, "Unknown event type dropped")
	}
}

// handleFriendsSnapshot seeds sessions for identities the bot already
// follows. These are established relationships, so the first-message gate is
// backdated to already-satisfied.
func (d *Dispatcher) handleFriendsSnapshot(ctx context.Context, e domain.FriendsSnapshot) {
	created := 0
	for _, id := range e.IDs {
		if s, isNew := d.registry.LookupOrCreate(id); isNew {
			s.markPreexisting()
			created++
		}
	}
	slog.InfoContext(ctx, "Friends snapshot processed", "listed", len(e.IDs), "created", created)
}

func (d *Dispatcher) handleFollow(ctx context.Context, e domain.FollowNotification) {
	// The feed echoes the bot's own outbound follows back to it.
	if e.SourceID == d.state.Identity().ID {
		return
	}

	s, _ := d.registry.LookupOrCreate(e.SourceID)
	if s.Followed() {
		return
	}

	go s.Follow(ctx)
}

func (d *Dispatcher) handleDirectMessage(ctx context.Context, e domain.DirectMessage) {
	if d.moderation.InterceptDirectMessage(ctx, e) {
		return
	}

	if e.SenderID == d.state.Identity().ID {
		return
	}

	s, ok := d.registry.Lookup(e.SenderID)
	if !ok {
		// Unknown senders are dropped on purpose: without an observed follow
		// notification the sender's provenance is unverified.
		slog.DebugContext(ctx, "Dropping message from unknown sender", "sender_id", e.SenderID)
		return
	}

	// Relay content is sensitive; never leave it on the platform.
	d.scheduleDeletion(e.ID)

	if s.tooFast() {
		slog.InfoContext(ctx, "Message before minimum wait, unfollowing", "sender_id", e.SenderID)
		s.Unfollow(ctx, ReasonTooFast)
		return
	}

	if err := s.Handle(ctx, e); err != nil && !errors.IsRateLimited(err) {
		slog.ErrorContext(ctx, "Message handling failed", "sender_id", e.SenderID, "error", err)
	}
}

func (d *Dispatcher) handleMention(ctx context.Context, e domain.Mention) {
	if d.moderation.InterceptMention(ctx, e) {
		return
	}

	if e.AuthorID == d.state.Identity().ID {
		return
	}

	s, ok := d.registry.Lookup(e.AuthorID)
	if !ok {
		return
	}

	// Only mentions that explicitly target the bot count; posts that merely
	// pass through the feed are ignored.
	botID := d.state.Identity().ID
	targeted := false
	for _, id := range e.MentionedIDs {
		if id == botID {
			targeted = true
			break
		}
	}
	if !targeted {
		return
	}

	if err := s.Handle(ctx, e); err != nil && !errors.IsRateLimited(err) {
		slog.ErrorContext(ctx, "Mention handling failed", "author_id", e.AuthorID, "error", err)
	}
}

func (d *Dispatcher) handleConnectivity(ctx context.Context, e domain.Connectivity) {
	var status string
	switch e.Kind {
	case domain.ConnectivityConnected, domain.ConnectivityReconnected:
		status = StatusConnected
	case domain.ConnectivityDisconnected:
		status = StatusDisconnected
	case domain.ConnectivityRateLimited:
		status = StatusLimited
	default:
		slog.InfoContext(ctx, "Stream notice", "kind", string(e.Kind))
		return
	}

	d.state.SetStreamStatus(status)
	slog.InfoContext(ctx, "Stream status changed", "status", status)
}

// scheduleDeletion removes the message from the platform after the configured
// delay. Fire and forget: failures are logged, never retried, and never touch
// session state.
func (d *Dispatcher) scheduleDeletion(messageID string) {
	d.clock.AfterFunc(d.deleteDelay, func() {
		if err := d.relay.DestroyDirectMessage(context.Background(), messageID); err != nil {
			metrics.ScheduledDeletionsTotal.WithLabelValues("error").Inc()
			slog.Error("Deferred message deletion failed", "message_id", messageID, "error", err)
			return
		}
		metrics.ScheduledDeletionsTotal.WithLabelValues("deleted").Inc()
		slog.Debug("Message deleted", "message_id", messageID)
	})
}
