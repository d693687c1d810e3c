package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/BanditHelps/StreamChatBox/badges"
	"github.com/BanditHelps/StreamChatBox/twitchapi"
)

type eventSubReceiver interface {
	Connect(ctx context.Context) error
	Receive(ctx context.Context, maxWait time.Duration) ([]twitchapi.Notification, error)
}

type twitchSender interface {
	SendChatMessage(ctx context.Context, broadcasterID, senderID, message string) (string, error)
}

// EventSubSource reads Twitch chat and follows from an EventSub session and
// sends through Helix.
type EventSubSource struct {
	client        eventSubReceiver
	sender        twitchSender
	broadcasterID string
	senderID      string
	maxWait       time.Duration
}

// NewEventSubSource returns a source that connects lazily on the first poll.
func NewEventSubSource(client *twitchapi.EventSubClient, helix *twitchapi.HelixClient, broadcasterID, senderID string, maxWait time.Duration) *EventSubSource {
	return &EventSubSource{
		client:        client,
		sender:        helix,
		broadcasterID: broadcasterID,
		senderID:      senderID,
		maxWait:       maxWait,
	}
}

// Backend returns Twitch.
func (s *EventSubSource) Backend() Backend { return Twitch }

// Poll returns whatever notifications are buffered, waiting at most maxWait
// for the first. The cursor is unused.
func (s *EventSubSource) Poll(ctx context.Context, _ Cursor) (Batch, error) {
	notes, err := s.client.Receive(ctx, s.maxWait)
	if errors.Is(err, twitchapi.ErrNotConnected) {
		if err := s.client.Connect(ctx); err != nil {
			return Batch{}, err
		}
		notes, err = s.client.Receive(ctx, s.maxWait)
	}
	if err != nil {
		return Batch{}, err
	}
	batch := Batch{Events: make([]RawEvent, 0, len(notes))}
	for _, n := range notes {
		ev, ok := convertNotification(n)
		if ok {
			batch.Events = append(batch.Events, ev)
		}
	}
	return batch, nil
}

func convertNotification(n twitchapi.Notification) (RawEvent, bool) {
	switch n.SubscriptionType {
	case twitchapi.SubChatMessage:
		var m twitchapi.ChatMessageEvent
		if err := json.Unmarshal(n.Event, &m); err != nil {
			slog.Warn("malformed chat notification", slog.String("message_id", n.MessageID), slog.Any("err", err))
			return RawEvent{}, false
		}
		author := m.ChatterUserName
		if author == "" {
			author = m.ChatterUserLogin
		}
		refs := make([]badges.Ref, 0, len(m.Badges))
		for _, b := range m.Badges {
			refs = append(refs, badges.Ref{SetID: b.SetID, VersionID: b.ID})
		}
		return RawEvent{Kind: KindChat, Author: author, Color: m.Color, Text: m.Message.Text, Badges: refs}, true
	case twitchapi.SubFollow:
		var f twitchapi.FollowEvent
		if err := json.Unmarshal(n.Event, &f); err != nil {
			slog.Warn("malformed follow notification", slog.String("message_id", n.MessageID), slog.Any("err", err))
			return RawEvent{}, false
		}
		user := f.UserName
		if user == "" {
			user = f.UserLogin
		}
		return RawEvent{Kind: KindFollow, Author: user}, true
	default:
		slog.Debug("ignoring eventsub notification", slog.String("type", n.SubscriptionType))
		return RawEvent{}, false
	}
}

// Send posts text to the broadcaster's chat.
func (s *EventSubSource) Send(ctx context.Context, text string) error {
	_, err := s.sender.SendChatMessage(ctx, s.broadcasterID, s.senderID, text)
	return err
}
