package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BanditHelps/StreamChatBox/apierr"
)

// DefaultEventSubURL is the production EventSub WebSocket endpoint.
const DefaultEventSubURL = "wss://eventsub.wss.twitch.tv/ws"

// Subscription types consumed by the chat engine.
const (
	SubChatMessage = "channel.chat.message"
	SubFollow      = "channel.follow"
)

// ErrNotConnected is returned by Receive before Connect succeeds or after the
// session has been lost.
var ErrNotConnected = errors.New("eventsub: not connected")

// Notification is a single event delivered on the session.
type Notification struct {
	MessageID        string
	SubscriptionType string
	Event            json.RawMessage
}

// ChatBadge is a badge reference carried on channel.chat.message.
type ChatBadge struct {
	SetID string `json:"set_id"`
	ID    string `json:"id"`
	Info  string `json:"info"`
}

// ChatMessageEvent is the payload of channel.chat.message (v1).
type ChatMessageEvent struct {
	BroadcasterUserID string      `json:"broadcaster_user_id"`
	ChatterUserID     string      `json:"chatter_user_id"`
	ChatterUserLogin  string      `json:"chatter_user_login"`
	ChatterUserName   string      `json:"chatter_user_name"`
	MessageID         string      `json:"message_id"`
	Color             string      `json:"color"`
	Badges            []ChatBadge `json:"badges"`
	Message           struct {
		Text string `json:"text"`
	} `json:"message"`
}

// FollowEvent is the payload of channel.follow (v2).
type FollowEvent struct {
	UserID     string    `json:"user_id"`
	UserLogin  string    `json:"user_login"`
	UserName   string    `json:"user_name"`
	FollowedAt time.Time `json:"followed_at"`
}

type session struct {
	ID                      string `json:"id"`
	Status                  string `json:"status"`
	KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
	ReconnectURL            string `json:"reconnect_url"`
}

type wsMessage struct {
	Metadata struct {
		MessageID        string `json:"message_id"`
		MessageType      string `json:"message_type"`
		SubscriptionType string `json:"subscription_type"`
	} `json:"metadata"`
	Payload struct {
		Session      *session `json:"session"`
		Subscription *struct {
			Type   string `json:"type"`
			Status string `json:"status"`
		} `json:"subscription"`
		Event json.RawMessage `json:"event"`
	} `json:"payload"`
}

// EventSubClient holds one EventSub WebSocket session and its subscriptions.
// Notifications are buffered until drained by Receive.
type EventSubClient struct {
	URL           string
	Helix         *HelixClient
	Subscriptions []SubscriptionRequest
	Dialer        *websocket.Dialer
	BufferSize    int

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	keepalive time.Duration
	notes     chan Notification
	err       error
	done      chan struct{}
}

// ChatSubscriptions returns the subscription set for a broadcaster's chat
// messages and follows, read and moderated by userID.
func ChatSubscriptions(broadcasterID, userID string) []SubscriptionRequest {
	return []SubscriptionRequest{
		{
			Type:      SubChatMessage,
			Version:   "1",
			Condition: map[string]string{"broadcaster_user_id": broadcasterID, "user_id": userID},
		},
		{
			Type:      SubFollow,
			Version:   "2",
			Condition: map[string]string{"broadcaster_user_id": broadcasterID, "moderator_user_id": userID},
		},
	}
}

func (c *EventSubClient) dialer() *websocket.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return websocket.DefaultDialer
}

// Connected reports whether a live session exists.
func (c *EventSubClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.err == nil
}

// SessionID returns the current session id.
func (c *EventSubClient) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connect opens a session, waits for the welcome and creates every
// subscription against it. Calling Connect on a live session is a no-op.
func (c *EventSubClient) Connect(ctx context.Context) error {
	if c.Connected() {
		return nil
	}
	c.Close()

	url := c.URL
	if url == "" {
		url = DefaultEventSubURL
	}
	conn, sess, err := c.dialWelcome(ctx, url)
	if err != nil {
		return err
	}
	for _, sub := range c.Subscriptions {
		sub.Transport = Transport{Method: "websocket", SessionID: sess.ID}
		id, err := c.Helix.CreateEventSubSubscription(ctx, sub)
		if err != nil {
			_ = conn.Close()
			return err
		}
		slog.Info("eventsub subscription created", slog.String("type", sub.Type), slog.String("id", id))
	}

	size := c.BufferSize
	if size <= 0 {
		size = 256
	}
	c.mu.Lock()
	c.conn = conn
	c.sessionID = sess.ID
	c.keepalive = keepaliveWindow(sess)
	c.notes = make(chan Notification, size)
	c.err = nil
	c.done = make(chan struct{})
	notes, done := c.notes, c.done
	c.mu.Unlock()

	go c.readLoop(conn, notes, done)
	return nil
}

func keepaliveWindow(s *session) time.Duration {
	if s.KeepaliveTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(s.KeepaliveTimeoutSeconds)*time.Second + 5*time.Second
}

func (c *EventSubClient) dialWelcome(ctx context.Context, url string) (*websocket.Conn, *session, error) {
	conn, resp, err := c.dialer().DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, nil, &apierr.StatusError{Op: "eventsub dial", StatusCode: resp.StatusCode}
		}
		return nil, nil, &apierr.NetworkError{Op: "eventsub dial", Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	}
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		_ = conn.Close()
		return nil, nil, &apierr.NetworkError{Op: "eventsub welcome", Err: err}
	}
	if msg.Metadata.MessageType != "session_welcome" || msg.Payload.Session == nil {
		_ = conn.Close()
		return nil, nil, &apierr.ParseError{Op: "eventsub welcome", Err: fmt.Errorf("unexpected message %q", msg.Metadata.MessageType)}
	}
	_ = conn.SetReadDeadline(time.Time{})
	return conn, msg.Payload.Session, nil
}

func (c *EventSubClient) readLoop(conn *websocket.Conn, notes chan<- Notification, done <-chan struct{}) {
	for {
		c.mu.Lock()
		ka := c.keepalive
		c.mu.Unlock()
		if ka > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(ka))
		}
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.fail(conn, err)
			return
		}
		switch msg.Metadata.MessageType {
		case "notification":
			n := Notification{
				MessageID:        msg.Metadata.MessageID,
				SubscriptionType: msg.Metadata.SubscriptionType,
				Event:            msg.Payload.Event,
			}
			select {
			case notes <- n:
			case <-done:
				return
			}
		case "session_keepalive":
		case "session_reconnect":
			if msg.Payload.Session == nil || msg.Payload.Session.ReconnectURL == "" {
				continue
			}
			next, sess, err := c.dialWelcome(context.Background(), msg.Payload.Session.ReconnectURL)
			if err != nil {
				c.fail(conn, err)
				return
			}
			c.mu.Lock()
			if c.conn != conn {
				c.mu.Unlock()
				_ = next.Close()
				return
			}
			c.conn = next
			c.sessionID = sess.ID
			c.keepalive = keepaliveWindow(sess)
			c.mu.Unlock()
			_ = conn.Close()
			conn = next
			slog.Info("eventsub session migrated", slog.String("session", sess.ID))
		case "revocation":
			if sub := msg.Payload.Subscription; sub != nil {
				slog.Warn("eventsub subscription revoked", slog.String("type", sub.Type), slog.String("status", sub.Status))
			}
		default:
			slog.Debug("eventsub message ignored", slog.String("type", msg.Metadata.MessageType))
		}
	}
}

func (c *EventSubClient) fail(conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	_ = conn.Close()
	c.conn = nil
	c.err = &apierr.NetworkError{Op: "eventsub read", Err: err}
}

// Receive waits up to maxWait for the first buffered notification, then
// drains whatever else is buffered without blocking. It returns the session
// error once when the connection was lost; the caller reconnects with Connect.
func (c *EventSubClient) Receive(ctx context.Context, maxWait time.Duration) ([]Notification, error) {
	c.mu.Lock()
	notes, sessErr, conn := c.notes, c.err, c.conn
	c.mu.Unlock()

	var out []Notification
	drain := func() {
		for {
			select {
			case n := <-notes:
				out = append(out, n)
			default:
				return
			}
		}
	}

	if notes == nil {
		return nil, ErrNotConnected
	}
	if conn == nil {
		drain()
		if len(out) > 0 {
			return out, nil
		}
		c.mu.Lock()
		c.err = nil
		c.notes = nil
		c.mu.Unlock()
		if sessErr == nil {
			sessErr = ErrNotConnected
		}
		return nil, sessErr
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case n := <-notes:
		out = append(out, n)
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	drain()
	return out, nil
}

// Close ends the session. Buffered notifications are discarded.
func (c *EventSubClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.notes = nil
	c.err = nil
}
