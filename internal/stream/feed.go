// Package stream turns the platform's live websocket feed into typed domain
// events. The connection is handed in already established and authenticated;
// this package only reads, decodes, and classifies frames.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/substitwt/recaster/internal/domain"
	"github.com/substitwt/recaster/internal/errors"
	"github.com/substitwt/recaster/internal/metrics"
)

const eventBuffer = 64

// Feed reads JSON frames from a connected websocket and emits domain events.
type Feed struct {
	conn   *websocket.Conn
	events chan domain.Event
}

func NewFeed(conn *websocket.Conn) *Feed {
	return &Feed{
		conn:   conn,
		events: make(chan domain.Event, eventBuffer),
	}
}

// Events is the typed event channel consumed by the dispatcher. Closed when
// Run returns.
func (f *Feed) Events() <-chan domain.Event {
	return f.events
}

// Run reads frames until the connection drops or ctx is cancelled. Malformed
// frames are counted, logged, and skipped; they never stop the feed.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.events)

	f.emit(ctx, domain.Connectivity{Kind: domain.ConnectivityConnected})

	for {
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			f.emit(ctx, domain.Connectivity{Kind: domain.ConnectivityDisconnected})
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		ev, err := decodeFrame(data)
		if err != nil {
			metrics.MalformedEventsTotal.Inc()
			slog.Warn("Dropping malformed feed frame", "error", err)
			continue
		}
		if ev == nil {
			continue
		}

		if !f.emit(ctx, ev) {
			return nil
		}
	}
}

func (f *Feed) emit(ctx context.Context, ev domain.Event) bool {
	select {
	case f.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

type idRef struct {
	ID int64 `json:"id"`
}

type dmFrame struct {
	IDStr       string `json:"id_str"`
	SenderID    int64  `json:"sender_id"`
	RecipientID int64  `json:"recipient_id"`
	Text        string `json:"text"`
}

// frame is the union of every envelope shape the feed delivers. Exactly one
// of the discriminating fields is set per frame.
type frame struct {
	Friends       *[]int64 `json:"friends"`
	Event         string   `json:"event"`
	Source        *idRef   `json:"source"`
	Target        *idRef   `json:"target"`
	DirectMessage *dmFrame `json:"direct_message"`

	// tweet fields
	IDStr    string `json:"id_str"`
	User     *idRef `json:"user"`
	Text     string `json:"text"`
	Entities *struct {
		UserMentions []idRef `json:"user_mentions"`
	} `json:"entities"`

	Disconnect     json.RawMessage `json:"disconnect"`
	Limit          json.RawMessage `json:"limit"`
	StatusWithheld json.RawMessage `json:"status_withheld"`
}

// decodeFrame classifies one raw frame. A nil event with nil error means the
// frame is valid but irrelevant (e.g. an event kind the bot ignores).
func decodeFrame(data []byte) (domain.Event, error) {
	var fr frame
	if err := json.Unmarshal(data, &fr); err != nil {
		return nil, errors.MalformedEvent("undecodable frame", err)
	}

	switch {
	case fr.Friends != nil:
		return domain.FriendsSnapshot{IDs: *fr.Friends}, nil

	case fr.Event == "follow":
		if fr.Source == nil || fr.Target == nil {
			return nil, errors.MalformedEvent("follow frame missing source or target", nil)
		}
		return domain.FollowNotification{SourceID: fr.Source.ID, TargetID: fr.Target.ID}, nil

	case fr.Event != "":
		// Other notification kinds (favorites, list changes) are irrelevant.
		return nil, nil

	case fr.DirectMessage != nil:
		dm := fr.DirectMessage
		if dm.IDStr == "" || dm.SenderID == 0 {
			return nil, errors.MalformedEvent("direct message frame missing id or sender", nil)
		}
		return domain.DirectMessage{
			ID:          dm.IDStr,
			SenderID:    dm.SenderID,
			RecipientID: dm.RecipientID,
			Text:        dm.Text,
		}, nil

	case fr.Disconnect != nil:
		return domain.Connectivity{Kind: domain.ConnectivityDisconnected}, nil

	case fr.Limit != nil:
		return domain.Connectivity{Kind: domain.ConnectivityRateLimited}, nil

	case fr.StatusWithheld != nil:
		return domain.Connectivity{Kind: domain.ConnectivityWithheld}, nil

	case fr.User != nil:
		if fr.IDStr == "" {
			return nil, errors.MalformedEvent("tweet frame missing id", nil)
		}
		var mentions []int64
		if fr.Entities != nil {
			for _, m := range fr.Entities.UserMentions {
				mentions = append(mentions, m.ID)
			}
		}
		return domain.Mention{
			ID:           fr.IDStr,
			AuthorID:     fr.User.ID,
			Text:         fr.Text,
			MentionedIDs: mentions,
		}, nil

	default:
		return nil, errors.MalformedEvent("frame matches no known envelope", nil)
	}
}
