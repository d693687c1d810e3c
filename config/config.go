// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials per backend, use ValidateTwitchReady, ValidateYouTubeReady
// and ValidateBadgesReady.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BanditHelps/StreamChatBox/badges"
)

// Twitch transports.
const (
	TransportEventSub = "eventsub"
	TransportIRC      = "irc"
)

type Config struct {
	// Twitch
	TwitchClientID      string
	TwitchClientSecret  string
	TwitchBroadcasterID string
	TwitchSenderID      string
	TwitchUserToken     string
	TwitchUserTokenFile string
	TwitchTransport     string
	TwitchChannel       string
	TwitchBotUsername   string
	TwitchHelixURL      string
	TwitchEventSubURL   string

	// YouTube
	YouTubeChannelID string
	YouTubeAPIKey    string
	YTClientID       string
	YTClientSecret   string
	YTRefreshToken   string
	YTScopes         string

	// Loop pacing
	EventSubTick           time.Duration
	EventSubMaxWait        time.Duration
	YouTubeDefaultInterval time.Duration
	YouTubeEmptyRetry      time.Duration
	PollErrorInterval      time.Duration
	OutboxCapacity         int

	// Badges
	BadgeInitDelay       time.Duration
	BadgeInitTimeout     time.Duration
	BadgeRefreshInterval time.Duration

	ChatAutoStart bool

	// HTTP
	HTTPAddr             string
	APIToken             string
	CORSPermissive       bool
	CORSAllowedOrigins   []string
	RateLimitEnabled     bool
	RateLimitRequests    int
	RateLimitWindow      time.Duration
	SSEHeartbeatInterval time.Duration

	// NATS
	NATSURL           string
	NATSSubjectPrefix string
}

// Load reads environment variables and applies defaults. It doesn't fail if credentials are missing;
// use the Validate*Ready helpers before starting a backend. Malformed durations and integers are errors.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchBroadcasterID = os.Getenv("TWITCH_BROADCASTER_ID")
	cfg.TwitchSenderID = os.Getenv("TWITCH_SENDER_ID")
	cfg.TwitchUserTokenFile = getenv("TWITCH_USER_TOKEN_FILE", ".user_token.env")
	cfg.TwitchUserToken = readUserToken(cfg.TwitchUserTokenFile)
	cfg.TwitchTransport = strings.ToLower(getenv("TWITCH_TRANSPORT", TransportEventSub))
	if cfg.TwitchTransport != TransportEventSub && cfg.TwitchTransport != TransportIRC {
		errs = append(errs, fmt.Errorf("invalid TWITCH_TRANSPORT %q (eventsub|irc)", cfg.TwitchTransport))
	}
	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchHelixURL = os.Getenv("TWITCH_HELIX_URL")
	cfg.TwitchEventSubURL = os.Getenv("TWITCH_EVENTSUB_URL")

	cfg.YouTubeChannelID = os.Getenv("YOUTUBE_CHANNEL_ID")
	cfg.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")
	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTRefreshToken = os.Getenv("YT_REFRESH_TOKEN")
	cfg.YTScopes = os.Getenv("YT_SCOPES")

	cfg.EventSubTick = positiveDuration("EVENTSUB_TICK", 100*time.Millisecond, &errs)
	cfg.EventSubMaxWait = duration("EVENTSUB_MAX_WAIT", time.Millisecond, &errs)
	cfg.YouTubeDefaultInterval = positiveDuration("YOUTUBE_DEFAULT_INTERVAL", 5*time.Second, &errs)
	cfg.YouTubeEmptyRetry = positiveDuration("YOUTUBE_EMPTY_RETRY", time.Second, &errs)
	cfg.PollErrorInterval = positiveDuration("POLL_ERROR_INTERVAL", 5*time.Second, &errs)
	cfg.OutboxCapacity = integer("OUTBOX_CAPACITY", 256, &errs)

	cfg.BadgeInitDelay = duration("BADGE_INIT_DELAY", 2*time.Second, &errs)
	cfg.BadgeInitTimeout = positiveDuration("BADGE_INIT_TIMEOUT", 30*time.Second, &errs)
	cfg.BadgeRefreshInterval = duration("BADGE_REFRESH_INTERVAL", 0, &errs)

	cfg.ChatAutoStart = boolean("CHAT_AUTO_START", true)

	cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")
	cfg.APIToken = os.Getenv("API_TOKEN")
	mode := strings.ToLower(os.Getenv("ENV"))
	cfg.CORSPermissive = boolean("CORS_PERMISSIVE", mode == "" || mode == "dev" || mode == "development")
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}
	cfg.RateLimitEnabled = os.Getenv("RATE_LIMIT_ENABLED") != "0"
	cfg.RateLimitRequests = integer("RATE_LIMIT_REQUESTS_PER_IP", 30, &errs)
	cfg.RateLimitWindow = time.Duration(integer("RATE_LIMIT_WINDOW_SECONDS", 60, &errs)) * time.Second
	cfg.SSEHeartbeatInterval = positiveDuration("SSE_HEARTBEAT_INTERVAL", 15*time.Second, &errs)

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenv("NATS_SUBJECT_PREFIX", "streamchatbox")

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want a non-negative duration", key, v))
		return def
	}
	return d
}

// positiveDuration is duration for loop cadences and timers, where zero would
// spin or expire immediately.
func positiveDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	d := duration(key, def, errs)
	if v != "" && d == 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want a positive duration", key, v))
		return def
	}
	return d
}

func integer(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want a positive integer", key, v))
		return def
	}
	return n
}

func boolean(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// readUserToken returns the token stored in path, falling back to
// TWITCH_USER_TOKEN. The file holds either a bare token or a
// TWITCH_USER_TOKEN=<token> line.
func readUserToken(path string) string {
	if path != "" {
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				line := strings.TrimSpace(sc.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				if k, v, ok := strings.Cut(line, "="); ok {
					if strings.TrimSpace(k) != "TWITCH_USER_TOKEN" {
						continue
					}
					line = strings.TrimSpace(v)
				}
				line = strings.Trim(line, `"'`)
				if line != "" {
					return strings.TrimPrefix(line, "oauth:")
				}
			}
		}
	}
	return strings.TrimPrefix(os.Getenv("TWITCH_USER_TOKEN"), "oauth:")
}

// TwitchEnabled reports whether any Twitch backend is configured.
func (c *Config) TwitchEnabled() bool {
	if c.TwitchTransport == TransportIRC {
		return c.TwitchChannel != ""
	}
	return c.TwitchBroadcasterID != "" || c.TwitchChannel != ""
}

// YouTubeEnabled reports whether the YouTube backend is configured.
func (c *Config) YouTubeEnabled() bool {
	return c.YouTubeChannelID != ""
}

// ValidateTwitchReady checks the fields the selected Twitch transport needs.
func (c *Config) ValidateTwitchReady() error {
	if c.TwitchTransport == TransportIRC {
		if c.TwitchChannel == "" || c.TwitchBotUsername == "" || c.TwitchUserToken == "" {
			return fmt.Errorf("missing twitch irc env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME, TWITCH_USER_TOKEN")
		}
		return nil
	}
	if c.TwitchClientID == "" || c.TwitchUserToken == "" || (c.TwitchBroadcasterID == "" && c.TwitchChannel == "") {
		return fmt.Errorf("missing twitch eventsub env: require TWITCH_CLIENT_ID, TWITCH_USER_TOKEN and TWITCH_BROADCASTER_ID or TWITCH_CHANNEL")
	}
	return nil
}

// ValidateYouTubeReady checks the fields the YouTube source needs.
func (c *Config) ValidateYouTubeReady() error {
	if c.YouTubeChannelID == "" {
		return fmt.Errorf("missing youtube env: require YOUTUBE_CHANNEL_ID")
	}
	if c.YouTubeAPIKey == "" && !c.YouTubeCanPost() {
		return fmt.Errorf("missing youtube env: require YOUTUBE_API_KEY or YT_CLIENT_ID, YT_CLIENT_SECRET, YT_REFRESH_TOKEN")
	}
	return nil
}

// YouTubeCanPost reports whether OAuth credentials for posting are present.
func (c *Config) YouTubeCanPost() bool {
	return c.YTClientID != "" && c.YTClientSecret != "" && c.YTRefreshToken != ""
}

// ValidateBadgesReady checks the fields badge initialization needs.
func (c *Config) ValidateBadgesReady() error {
	return c.BadgeCredentials().Validate()
}

// BadgeCredentials returns the Helix credentials used for badge catalogs.
func (c *Config) BadgeCredentials() badges.Credentials {
	return badges.Credentials{
		ClientID:      c.TwitchClientID,
		AccessToken:   c.TwitchUserToken,
		BroadcasterID: c.TwitchBroadcasterID,
	}
}
