package chat

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/BanditHelps/StreamChatBox/apierr"
	"github.com/BanditHelps/StreamChatBox/badges"
)

// ircClient is the subset of *twitch.Client used by IRCSource.
type ircClient interface {
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// IRCSource reads Twitch chat over IRC. It carries no follow events.
type IRCSource struct {
	client  ircClient
	say     func(channel, text string)
	channel string
	events  chan RawEvent
	ready   chan struct{}
	connErr chan error
}

// NewIRCSource builds a go-twitch-irc client for channel.
func NewIRCSource(username, oauth, channel string, buffer int) *IRCSource {
	if buffer <= 0 {
		buffer = 512
	}
	if oauth != "" && !strings.HasPrefix(oauth, "oauth:") {
		oauth = "oauth:" + oauth
	}
	client := twitch.NewClient(username, oauth)
	s := &IRCSource{
		client:  client,
		say:     func(channel, text string) { client.Say(channel, text) },
		channel: strings.TrimPrefix(strings.TrimSpace(channel), "#"),
		events:  make(chan RawEvent, buffer),
		ready:   make(chan struct{}, 1),
		connErr: make(chan error, 1),
	}
	client.OnPrivateMessage(s.handlePrivateMessage)
	client.OnConnect(func() {
		slog.Info("twitch irc connected", slog.String("channel", s.channel))
		select {
		case s.ready <- struct{}{}:
		default:
		}
	})
	client.OnReconnectMessage(func(message twitch.ReconnectMessage) {
		slog.Info("twitch irc reconnect requested")
	})
	return s
}

func (s *IRCSource) handlePrivateMessage(msg twitch.PrivateMessage) {
	select {
	case s.events <- privateMessageEvent(msg):
	default:
		slog.Warn("twitch irc buffer full; dropping message", slog.String("user", msg.User.Name))
	}
}

func privateMessageEvent(msg twitch.PrivateMessage) RawEvent {
	author := msg.User.DisplayName
	if author == "" {
		author = msg.User.Name
	}
	setIDs := make([]string, 0, len(msg.User.Badges))
	for k := range msg.User.Badges {
		setIDs = append(setIDs, k)
	}
	sort.Strings(setIDs)
	refs := make([]badges.Ref, 0, len(setIDs))
	for _, k := range setIDs {
		refs = append(refs, badges.Ref{SetID: k, VersionID: strconv.Itoa(msg.User.Badges[k])})
	}
	return RawEvent{Kind: KindChat, Author: author, Color: msg.User.Color, Text: msg.Message, Badges: refs}
}

// Backend returns Twitch.
func (s *IRCSource) Backend() Backend { return Twitch }

// Bootstrap joins the channel and waits for the connection.
func (s *IRCSource) Bootstrap(ctx context.Context) error {
	if s.channel == "" {
		return &BootstrapError{Backend: Twitch, Err: errors.New("irc channel empty")}
	}
	s.client.Join(s.channel)
	s.connect()
	go func() {
		<-ctx.Done()
		_ = s.client.Disconnect()
	}()

	timer := time.NewTimer(30 * time.Second)
	defer timer.Stop()
	select {
	case <-s.ready:
		return nil
	case err := <-s.connErr:
		return &BootstrapError{Backend: Twitch, Err: err}
	case <-timer.C:
		return &BootstrapError{Backend: Twitch, Err: errors.New("timed out connecting to irc")}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *IRCSource) connect() {
	go func() {
		err := s.client.Connect()
		if errors.Is(err, twitch.ErrClientDisconnected) {
			return
		}
		s.connErr <- err
	}()
}

// Poll drains buffered messages without blocking. A dropped connection is
// reported once and redialed.
func (s *IRCSource) Poll(ctx context.Context, _ Cursor) (Batch, error) {
	select {
	case err := <-s.connErr:
		if ctx.Err() == nil {
			s.connect()
		}
		return Batch{}, &apierr.NetworkError{Op: "twitch irc", Err: err}
	default:
	}
	var batch Batch
	for {
		select {
		case ev := <-s.events:
			batch.Events = append(batch.Events, ev)
		default:
			return batch, nil
		}
	}
}

// Send says text in the channel.
func (s *IRCSource) Send(_ context.Context, text string) error {
	s.say(s.channel, text)
	return nil
}
