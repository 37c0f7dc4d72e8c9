package bot

import (
	"context"
	"log/slog"

	"github.com/substitwt/recaster/internal/domain"
	"github.com/substitwt/recaster/internal/metrics"
)

// ModerationFilter lets one privileged identity force-delete any message or
// post addressed to the bot. Intercepted events never reach a normal session.
type ModerationFilter struct {
	relay       domain.Relay
	moderatorID int64
}

func NewModerationFilter(relay domain.Relay, moderatorID int64) *ModerationFilter {
	return &ModerationFilter{relay: relay, moderatorID: moderatorID}
}

// InterceptDirectMessage deletes the message and reports true when it is
// addressed to the moderation identity.
func (f *ModerationFilter) InterceptDirectMessage(ctx context.Context, dm domain.DirectMessage) bool {
	if dm.RecipientID != f.moderatorID {
		return false
	}

	if err := f.relay.DestroyDirectMessage(ctx, dm.ID); err != nil {
		slog.ErrorContext(ctx, "Moderation delete failed", "message_id", dm.ID, "error", err)
	}
	metrics.ModerationDeletesTotal.WithLabelValues("direct_message").Inc()
	return true
}

// InterceptMention deletes the post and reports true when it names the
// moderation identity.
func (f *ModerationFilter) InterceptMention(ctx context.Context, m domain.Mention) bool {
	triggered := false
	for _, id := range m.MentionedIDs {
		if id == f.moderatorID {
			triggered = true
			break
		}
	}
	if !triggered {
		return false
	}

	if err := f.relay.DestroyStatus(ctx, m.ID); err != nil {
		slog.ErrorContext(ctx, "Moderation status delete failed", "status_id", m.ID, "error", err)
	}
	metrics.ModerationDeletesTotal.WithLabelValues("mention").Inc()
	return true
}
