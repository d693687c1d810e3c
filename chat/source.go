package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BanditHelps/StreamChatBox/badges"
	"github.com/BanditHelps/StreamChatBox/events"
)

// Backend names a chat platform.
type Backend string

// Known backends.
const (
	Twitch  Backend = "twitch"
	YouTube Backend = "youtube"
)

// DestinationAll fans an outbound message out to every registered backend.
const DestinationAll = "all"

// EventKind distinguishes raw events returned by a source.
type EventKind int

const (
	KindChat EventKind = iota
	KindFollow
)

// RawEvent is a source event before enrichment. Follow events only carry
// Author.
type RawEvent struct {
	Kind      EventKind
	Author    string
	Color     string
	Text      string
	Badges    []badges.Ref
	Timestamp time.Time
}

// ChatEvent is an enriched chat message.
type ChatEvent struct {
	Source    Backend
	Author    string
	Color     string
	Message   string
	Badges    []badges.Resolved
	Timestamp time.Time
}

// Payload converts e to its presentation form. A zero Timestamp is omitted.
func (e ChatEvent) Payload() events.ChatMessage {
	out := events.ChatMessage{
		Source:  string(e.Source),
		User:    e.Author,
		Color:   e.Color,
		Message: e.Message,
		Badges:  e.Badges,
	}
	if out.Badges == nil {
		out.Badges = []badges.Resolved{}
	}
	if !e.Timestamp.IsZero() {
		ts := e.Timestamp
		out.Timestamp = &ts
	}
	return out
}

// FollowEvent is a new follower notification.
type FollowEvent struct {
	Source Backend
	User   string
}

// Payload converts e to its presentation form.
func (e FollowEvent) Payload() events.Follow {
	return events.Follow{Source: string(e.Source), User: e.User}
}

// OutboundMessage is text queued for one backend or for all of them.
type OutboundMessage struct {
	Text        string `json:"text"`
	Destination string `json:"destination"`
}

// Cursor is a pagination position. The zero value means start of stream.
type Cursor struct {
	Token    string
	Interval time.Duration
}

// Batch is the result of one poll. Next replaces the stored cursor only when
// More is true.
type Batch struct {
	Events []RawEvent
	Next   Cursor
	More   bool
}

// Source is a chat backend adapter.
type Source interface {
	Backend() Backend
	Poll(ctx context.Context, cur Cursor) (Batch, error)
	Send(ctx context.Context, text string) error
}

// Bootstrapper is implemented by sources that need a one-time setup before
// the first poll.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

var (
	// ErrOutboxFull is returned when a backend's queue is at capacity.
	ErrOutboxFull = errors.New("outbox full")
	// ErrOutboxClosed is returned after the engine shut down.
	ErrOutboxClosed = errors.New("outbox closed")
	// ErrUnknownBackend is returned for destinations with no registered source.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrDuplicateBackend is returned when registering a backend twice.
	ErrDuplicateBackend = errors.New("backend already registered")
	// ErrSourceFailed is returned for backends whose loop failed to start.
	ErrSourceFailed = errors.New("chat source failed")
	// ErrEmptyMessage is returned for blank outbound text.
	ErrEmptyMessage = errors.New("message text is empty")
)

// BootstrapError means a source could not establish its session and its loop
// will not run.
type BootstrapError struct {
	Backend Backend
	Err     error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("%s bootstrap failed: %v", e.Backend, e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// SendError means one outbound message was not delivered. It is reported and
// never retried.
type SendError struct {
	Backend Backend
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s send failed: %v", e.Backend, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
