package main

import (
	"context"
	"testing"
	"time"

	"github.com/BanditHelps/StreamChatBox/badges"
	"github.com/BanditHelps/StreamChatBox/chat"
	"github.com/BanditHelps/StreamChatBox/config"
	"github.com/BanditHelps/StreamChatBox/events"
	"github.com/BanditHelps/StreamChatBox/testutil"
	"github.com/BanditHelps/StreamChatBox/twitchapi"
)

func newTestEngine(t *testing.T) (*chat.Engine, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	e := chat.NewEngine(ctx, badges.NewResolver(nil, nil), events.Fanout(nil), chat.Options{})
	t.Cleanup(func() {
		cancel()
		e.Wait()
	})
	return e, ctx
}

func TestLookupBroadcaster(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUserResponse("1234", "streamer")
	cfg := &config.Config{TwitchClientID: "cid", TwitchUserToken: "tok", TwitchChannel: "streamer", TwitchHelixURL: mock.HelixURL()}

	id, err := lookupBroadcaster(context.Background(), cfg)
	if err != nil || id != "1234" {
		t.Fatalf("lookupBroadcaster() = %q, %v", id, err)
	}

	cfg.TwitchChannel = "nobody"
	if _, err := lookupBroadcaster(context.Background(), cfg); err == nil {
		t.Error("unknown login should fail")
	}
}

func TestRegisterSources(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUserResponse("1234", "streamer")

	tests := []struct {
		name  string
		cfg   config.Config
		want  []chat.Backend
		bcast string
	}{
		{
			name: "eventsub resolves channel",
			cfg: config.Config{
				TwitchTransport: config.TransportEventSub, TwitchClientID: "cid", TwitchUserToken: "tok",
				TwitchChannel: "streamer", TwitchHelixURL: mock.HelixURL(),
			},
			want:  []chat.Backend{chat.Twitch},
			bcast: "1234",
		},
		{
			name: "irc and youtube",
			cfg: config.Config{
				TwitchTransport: config.TransportIRC, TwitchChannel: "streamer", TwitchBotUsername: "bot", TwitchUserToken: "tok",
				YouTubeChannelID: "UC1", YouTubeAPIKey: "key",
			},
			want: []chat.Backend{chat.Twitch, chat.YouTube},
		},
		{
			name: "irc resolves channel for badges",
			cfg: config.Config{
				TwitchTransport: config.TransportIRC, TwitchChannel: "streamer", TwitchBotUsername: "bot",
				TwitchClientID: "cid", TwitchUserToken: "tok", TwitchHelixURL: mock.HelixURL(),
			},
			want:  []chat.Backend{chat.Twitch},
			bcast: "1234",
		},
		{
			name: "irc keeps running when lookup fails",
			cfg: config.Config{
				TwitchTransport: config.TransportIRC, TwitchChannel: "nobody", TwitchBotUsername: "bot",
				TwitchClientID: "cid", TwitchUserToken: "tok", TwitchHelixURL: mock.HelixURL(),
			},
			want: []chat.Backend{chat.Twitch},
		},
		{
			name: "incomplete credentials are skipped",
			cfg:  config.Config{TwitchTransport: config.TransportEventSub, TwitchBroadcasterID: "1", YouTubeChannelID: "UC1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ctx := newTestEngine(t)
			cfg := tt.cfg
			registerSources(ctx, &cfg, e)
			got := e.Backends()
			if len(got) != len(tt.want) {
				t.Fatalf("Backends() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Backends()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
			if cfg.TwitchBroadcasterID != tt.bcast && tt.cfg.TwitchBroadcasterID == "" {
				t.Errorf("broadcaster id = %q, want %q", cfg.TwitchBroadcasterID, tt.bcast)
			}
		})
	}
}

func TestBadgeCatalogAgainstMock(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockChannelBadges([]badges.Set{{SetID: "subscriber", Versions: []badges.Version{{ID: "6", Title: "6-Month Subscriber", ImageURL1x: "https://cdn/sub6"}}}})
	mock.MockStatus("GET /helix/chat/badges/global", 500)

	resolver := badges.NewResolver(nil, &twitchapi.BadgeCatalog{Helix: &twitchapi.HelixClient{BaseURL: mock.HelixURL()}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := resolver.Initialize(ctx, badges.Credentials{ClientID: "cid", AccessToken: "tok", BroadcasterID: "1234"})
	if err == nil {
		t.Fatal("global failure should surface")
	}
	got := resolver.ResolveBadges([]badges.Ref{{SetID: "subscriber", VersionID: "6"}, {SetID: "moderator", VersionID: "1"}})
	if got[0].Fallback || got[0].Title != "6-Month Subscriber" {
		t.Errorf("channel badge = %+v", got[0])
	}
	if !got[1].Fallback {
		t.Errorf("missing badge should fall back, got %+v", got[1])
	}
	if n := mock.Calls("GET /helix/chat/badges/global"); n != 1 {
		t.Errorf("global calls = %d, want 1", n)
	}
}
