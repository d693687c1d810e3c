package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BanditHelps/StreamChatBox/chat"
	"github.com/BanditHelps/StreamChatBox/config"
	"github.com/BanditHelps/StreamChatBox/twitchapi"
	"github.com/BanditHelps/StreamChatBox/youtubeapi"
)

// registerSources adds a loop for every backend whose credentials are complete.
// Incomplete backends are logged and skipped.
func registerSources(ctx context.Context, cfg *config.Config, engine *chat.Engine) {
	if cfg.TwitchEnabled() {
		if err := cfg.ValidateTwitchReady(); err != nil {
			slog.Warn("twitch chat disabled", slog.Any("err", err))
		} else if err := registerTwitch(ctx, cfg, engine); err != nil {
			slog.Error("twitch chat setup failed", slog.Any("err", err))
		}
	}
	if cfg.YouTubeEnabled() {
		if err := cfg.ValidateYouTubeReady(); err != nil {
			slog.Warn("youtube chat disabled", slog.Any("err", err))
		} else if err := registerYouTube(ctx, cfg, engine); err != nil {
			slog.Error("youtube chat setup failed", slog.Any("err", err))
		}
	}
	if len(engine.Backends()) == 0 {
		slog.Warn("no chat backends configured")
	}
}

func registerTwitch(ctx context.Context, cfg *config.Config, engine *chat.Engine) error {
	loopCfg := chat.EventSubLoopConfig(cfg.EventSubTick, cfg.PollErrorInterval)
	if cfg.TwitchTransport == config.TransportIRC {
		// irc needs no user id, but the channel badge catalog does
		if cfg.TwitchBroadcasterID == "" && cfg.TwitchClientID != "" {
			if id, err := lookupBroadcaster(ctx, cfg); err != nil {
				slog.Warn("twitch broadcaster lookup failed; channel badges unavailable", slog.Any("err", err))
			} else {
				cfg.TwitchBroadcasterID = id
			}
		}
		src := chat.NewIRCSource(cfg.TwitchBotUsername, cfg.TwitchUserToken, cfg.TwitchChannel, 0)
		slog.Info("twitch chat over irc", slog.String("channel", cfg.TwitchChannel))
		return engine.Register(src, loopCfg)
	}

	helix := &twitchapi.HelixClient{
		BaseURL:  cfg.TwitchHelixURL,
		ClientID: cfg.TwitchClientID,
		Tokens:   twitchapi.StaticToken(cfg.TwitchUserToken),
	}
	broadcasterID := cfg.TwitchBroadcasterID
	if broadcasterID == "" {
		id, err := lookupBroadcaster(ctx, cfg)
		if err != nil {
			return err
		}
		broadcasterID = id
		// badge credentials read the same field
		cfg.TwitchBroadcasterID = id
	}
	senderID := cfg.TwitchSenderID
	if senderID == "" {
		senderID = broadcasterID
	}

	client := &twitchapi.EventSubClient{
		URL:           cfg.TwitchEventSubURL,
		Helix:         helix,
		Subscriptions: twitchapi.ChatSubscriptions(broadcasterID, senderID),
	}
	go func() {
		<-ctx.Done()
		client.Close()
	}()
	slog.Info("twitch chat over eventsub", slog.String("broadcaster_id", broadcasterID))
	return engine.Register(chat.NewEventSubSource(client, helix, broadcasterID, senderID, cfg.EventSubMaxWait), loopCfg)
}

// lookupBroadcaster resolves TWITCH_CHANNEL to a user id, preferring an app
// token when a client secret is configured.
func lookupBroadcaster(ctx context.Context, cfg *config.Config) (string, error) {
	var tokens twitchapi.TokenProvider = twitchapi.StaticToken(cfg.TwitchUserToken)
	if cfg.TwitchClientSecret != "" {
		tokens = &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
	}
	helix := &twitchapi.HelixClient{BaseURL: cfg.TwitchHelixURL, ClientID: cfg.TwitchClientID, Tokens: tokens}
	lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	id, err := helix.GetUserID(lookupCtx, cfg.TwitchChannel)
	if err != nil {
		return "", err
	}
	slog.Info("resolved twitch broadcaster", slog.String("login", cfg.TwitchChannel), slog.String("id", id))
	return id, nil
}

func registerYouTube(ctx context.Context, cfg *config.Config, engine *chat.Engine) error {
	lc, err := youtubeapi.New(ctx, youtubeapi.Options{
		APIKey:       cfg.YouTubeAPIKey,
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		RefreshToken: cfg.YTRefreshToken,
		Scopes:       cfg.YTScopes,
	})
	if err != nil {
		return err
	}
	if !lc.CanPost() {
		slog.Info("youtube chat is read-only; set YT_CLIENT_ID, YT_CLIENT_SECRET and YT_REFRESH_TOKEN to post")
	}
	loopCfg := chat.PaginationLoopConfig(cfg.YouTubeDefaultInterval, cfg.YouTubeEmptyRetry, cfg.PollErrorInterval)
	return engine.Register(chat.NewYouTubeSource(lc, cfg.YouTubeChannelID), loopCfg)
}
