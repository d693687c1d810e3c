// Package events defines the envelopes delivered to the presentation layer and
// the sinks that carry them: an in-process broker for SSE subscribers and an
// optional NATS publisher.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/BanditHelps/StreamChatBox/badges"
)

// Event type names.
const (
	TypeChatMessage       = "chat-message"
	TypeFollow            = "follow"
	TypeBadgesInitialized = "badges-initialized"
	TypeBadgesInitFailed  = "badges-initialization-failed"
	TypeChatSourceFailed  = "chat-source-failed"
	TypeSendFailed        = "send-failed"
)

// Event is the envelope written to every sink.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// New stamps data with a fresh id and the current time.
func New(eventType string, data any) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: eventType,
		Time: time.Now().UTC(),
		Data: data,
	}
}

// ChatMessage is the data of a chat-message event.
type ChatMessage struct {
	Source    string            `json:"source"`
	User      string            `json:"user"`
	Color     string            `json:"color"`
	Message   string            `json:"message"`
	Badges    []badges.Resolved `json:"badges"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
}

// Follow is the data of a follow event.
type Follow struct {
	Source string `json:"source"`
	User   string `json:"user"`
}

// BadgesInitialized is the data of a badges-initialized event.
type BadgesInitialized struct {
	Initialized bool `json:"initialized"`
}

// BadgesInitFailed is the data of a badges-initialization-failed event.
type BadgesInitFailed struct {
	Reason string `json:"reason"`
}

// SourceFailed is the data of a chat-source-failed event.
type SourceFailed struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// SendFailed is the data of a send-failed event.
type SendFailed struct {
	Source  string `json:"source"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// Sink receives emitted events. Emit must not block for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) { f(e) }

// Fanout emits to every sink in order.
type Fanout []Sink

// Emit delivers e to each non-nil sink.
func (f Fanout) Emit(e Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(e)
		}
	}
}
