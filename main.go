// Command streamchatbox merges Twitch and YouTube live chat into one stream of
// presentation events. It:
//   - Loads configuration (env plus an optional .env file) and initializes
//     structured logging, metrics and tracing.
//   - Registers one chat loop per configured backend and starts them unless
//     CHAT_AUTO_START is off.
//   - Initializes the badge cache shortly after startup and optionally
//     refreshes it on an interval.
//   - Serves the SSE stream and command endpoints over HTTP, and mirrors every
//     event to NATS when NATS_URL is set.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/BanditHelps/StreamChatBox/badges"
	"github.com/BanditHelps/StreamChatBox/chat"
	"github.com/BanditHelps/StreamChatBox/config"
	"github.com/BanditHelps/StreamChatBox/events"
	"github.com/BanditHelps/StreamChatBox/server"
	"github.com/BanditHelps/StreamChatBox/telemetry"
	"github.com/BanditHelps/StreamChatBox/twitchapi"
)

// version is stamped at build time with -ldflags "-X main.version=..."; when
// empty the module version from the build info is used.
var version string

func main() {
	envFile := flag.String("env-file", ".secrets.env", "dotenv file loaded before reading the environment")
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.Parse()

	// local dev convenience only; production relies on real env
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load env file", slog.String("path", *envFile), slog.Any("err", err))
	}

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("streamchatbox", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := events.NewBroker()
	sink := events.Fanout{broker}
	var readyChecks []server.ReadyCheck
	if cfg.NATSURL != "" {
		pub, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			// the SSE stream still works without the mirror
			slog.Error("nats connect failed", slog.String("url", cfg.NATSURL), slog.Any("err", err))
		} else {
			defer pub.Close()
			sink = append(sink, pub)
			readyChecks = append(readyChecks, server.ReadyCheck{Name: "nats", Fn: func(context.Context) error {
				if !pub.IsConnected() {
					return errors.New("nats disconnected")
				}
				return nil
			}})
			slog.Info("mirroring events to nats", slog.String("prefix", cfg.NATSSubjectPrefix))
		}
	}

	catalog := &twitchapi.BadgeCatalog{Helix: &twitchapi.HelixClient{BaseURL: cfg.TwitchHelixURL, ClientID: cfg.TwitchClientID}}
	resolver := badges.NewResolver(nil, catalog)
	engine := chat.NewEngine(ctx, resolver, sink, chat.Options{OutboxCapacity: cfg.OutboxCapacity})

	registerSources(ctx, cfg, engine)
	if cfg.ChatAutoStart {
		engine.StartAll()
	} else {
		slog.Info("chat auto start disabled; use POST /sources/{backend}/start")
	}

	go initBadgesAfterDelay(ctx, cfg, engine)
	badges.StartRefresher(ctx, resolver, func() (badges.Credentials, error) {
		creds := cfg.BadgeCredentials()
		return creds, creds.Validate()
	}, cfg.BadgeRefreshInterval, nil)

	if os.Getenv("ENABLE_PPROF") == "1" {
		startPprof()
	}

	opts := server.OptionsFromConfig(cfg)
	opts.ReadyChecks = readyChecks
	if err := server.Start(ctx, server.NewMux(ctx, engine, broker, opts), cfg.HTTPAddr); err != nil {
		slog.Error("http server exited with error", slog.Any("err", err))
		stop()
	}

	<-ctx.Done()
	slog.Info("shutting down")
	engine.Wait()
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

// initBadgesAfterDelay runs the one-shot badge fetch once the loops have had a
// moment to connect. Missing credentials leave the cache empty and every badge
// resolves through the fallback.
func initBadgesAfterDelay(ctx context.Context, cfg *config.Config, engine *chat.Engine) {
	if err := cfg.ValidateBadgesReady(); err != nil {
		slog.Warn("badge initialization skipped", slog.Any("err", err), slog.String("component", "badges"))
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(cfg.BadgeInitDelay):
	}
	initCtx, cancel := context.WithTimeout(ctx, cfg.BadgeInitTimeout)
	defer cancel()
	// the outcome is published as an event by the engine
	_ = engine.InitializeBadges(initCtx, cfg.BadgeCredentials())
}

func startPprof() {
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
		srv := &http.Server{
			Addr:              pprofAddr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
