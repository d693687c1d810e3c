package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/BanditHelps/StreamChatBox/badges"
	"github.com/BanditHelps/StreamChatBox/chat"
	"github.com/BanditHelps/StreamChatBox/config"
	"github.com/BanditHelps/StreamChatBox/events"
)

// Engine is the part of chat.Engine the HTTP surface drives.
type Engine interface {
	Enqueue(msg chat.OutboundMessage) error
	Start(backend chat.Backend) (chat.LoopState, error)
	InitializeBadges(ctx context.Context, creds badges.Credentials) error
	Status() chat.Status
}

// EventStream hands out event subscriptions; events.Broker implements it.
type EventStream interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

// ReadyCheck is one named readiness probe.
type ReadyCheck struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Options configure the HTTP surface.
type Options struct {
	APIToken           string
	CORSPermissive     bool
	CORSAllowedOrigins []string
	RateLimitEnabled   bool
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	// Heartbeat is the interval between SSE keepalive comments.
	Heartbeat time.Duration
	// BadgeCredentials fill any field a POST /badges/initialize body omits.
	BadgeCredentials badges.Credentials
	BadgeInitTimeout time.Duration
	ReadyChecks      []ReadyCheck
}

// OptionsFromConfig maps the service configuration onto server options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		APIToken:           cfg.APIToken,
		CORSPermissive:     cfg.CORSPermissive,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitEnabled:   cfg.RateLimitEnabled,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
		Heartbeat:          cfg.SSEHeartbeatInterval,
		BadgeCredentials:   cfg.BadgeCredentials(),
		BadgeInitTimeout:   cfg.BadgeInitTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.RateLimitRequests <= 0 {
		o.RateLimitRequests = 30
	}
	if o.RateLimitWindow <= 0 {
		o.RateLimitWindow = time.Minute
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = 15 * time.Second
	}
	if o.BadgeInitTimeout <= 0 {
		o.BadgeInitTimeout = 30 * time.Second
	}
	return o
}

func (o Options) rateLimiterConfig() rateLimiterConfig {
	return rateLimiterConfig{enabled: o.RateLimitEnabled, requestsPerIP: o.RateLimitRequests, window: o.RateLimitWindow}
}

func (o Options) corsConfig() corsConfig {
	return corsConfig{permissive: o.CORSPermissive, allowedOrigins: o.CORSAllowedOrigins}
}

// Handlers holds the dependencies of every HTTP handler.
type Handlers struct {
	ctx    context.Context
	engine Engine
	stream EventStream
	opts   Options
}

// NewHandlers creates handlers whose long-lived streams end with ctx.
func NewHandlers(ctx context.Context, engine Engine, stream EventStream, opts Options) *Handlers {
	return &Handlers{ctx: ctx, engine: engine, stream: stream, opts: opts.withDefaults()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
