package chat

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/BanditHelps/StreamChatBox/apierr"
	"github.com/BanditHelps/StreamChatBox/badges"
	"github.com/BanditHelps/StreamChatBox/events"
	"github.com/BanditHelps/StreamChatBox/telemetry"
)

// Cadence selects how a loop paces itself between polls.
type Cadence int

const (
	// FixedTick sleeps Tick after every iteration.
	FixedTick Cadence = iota
	// CursorSuggested sleeps the interval carried by the returned cursor.
	CursorSuggested
)

// LoopConfig holds the pacing of one loop.
type LoopConfig struct {
	Cadence Cadence
	// Tick is the FixedTick sleep.
	Tick time.Duration
	// DefaultInterval is used when a cursor carries no interval.
	DefaultInterval time.Duration
	// EmptyRetry is used after a poll that returned no events.
	EmptyRetry time.Duration
	// ErrorInterval is used after a failed poll.
	ErrorInterval time.Duration
}

// EventSubLoopConfig is the fixed-tick pacing used for Twitch.
func EventSubLoopConfig(tick, errorInterval time.Duration) LoopConfig {
	return LoopConfig{Cadence: FixedTick, Tick: tick, ErrorInterval: errorInterval}
}

// PaginationLoopConfig is the cursor-driven pacing used for YouTube.
func PaginationLoopConfig(defaultInterval, emptyRetry, errorInterval time.Duration) LoopConfig {
	return LoopConfig{
		Cadence:         CursorSuggested,
		DefaultInterval: defaultInterval,
		EmptyRetry:      emptyRetry,
		ErrorInterval:   errorInterval,
	}
}

// LoopState is the observable lifecycle of a loop.
type LoopState int32

const (
	NotStarted LoopState = iota
	Bootstrapping
	Running
	Stopped
	Failed
)

func (s LoopState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Bootstrapping:
		return "bootstrapping"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// BadgeResolver maps raw references to display badges.
type BadgeResolver interface {
	ResolveBadges(refs []badges.Ref) []badges.Resolved
}

// Loop polls one source, emits its events and drains its outbox.
type Loop struct {
	source   Source
	cfg      LoopConfig
	outbox   *Outbox
	resolver BadgeResolver
	sink     events.Sink
	clock    clockwork.Clock

	state  atomic.Int32
	cursor Cursor
}

// NewLoop wires a loop. A nil clock uses the real clock.
func NewLoop(source Source, cfg LoopConfig, outbox *Outbox, resolver BadgeResolver, sink events.Sink, clock clockwork.Clock) *Loop {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = events.Fanout(nil)
	}
	return &Loop{source: source, cfg: cfg, outbox: outbox, resolver: resolver, sink: sink, clock: clock}
}

// State returns the current lifecycle state.
func (l *Loop) State() LoopState { return LoopState(l.state.Load()) }

func (l *Loop) setState(s LoopState) { l.state.Store(int32(s)) }

func (l *Loop) backend() string { return string(l.source.Backend()) }

func (l *Loop) log() *slog.Logger {
	return slog.With(slog.String("component", "chat_loop"), slog.String("backend", l.backend()))
}

// Run blocks until ctx is done or bootstrap fails.
func (l *Loop) Run(ctx context.Context) {
	if b, ok := l.source.(Bootstrapper); ok {
		l.setState(Bootstrapping)
		if err := b.Bootstrap(ctx); err != nil {
			if ctx.Err() != nil {
				l.setState(Stopped)
				return
			}
			l.setState(Failed)
			l.log().Error("chat source bootstrap failed", slog.Any("err", err))
			l.sink.Emit(events.New(events.TypeChatSourceFailed, events.SourceFailed{Source: l.backend(), Reason: err.Error()}))
			return
		}
	}

	l.setState(Running)
	telemetry.SetLoopRunning(l.backend(), true)
	defer telemetry.SetLoopRunning(l.backend(), false)
	l.log().Info("chat loop started")

	for {
		if ctx.Err() != nil {
			l.setState(Stopped)
			l.log().Info("chat loop stopped")
			return
		}
		wait := l.iterate(ctx)
		select {
		case <-ctx.Done():
		case <-l.clock.After(wait):
		}
	}
}

// iterate runs one poll/emit/drain cycle and returns how long to sleep.
func (l *Loop) iterate(ctx context.Context) time.Duration {
	start := l.clock.Now()
	batch, err := l.source.Poll(ctx, l.cursor)
	telemetry.ObservePoll(l.backend(), l.clock.Since(start))
	if err != nil {
		if ctx.Err() == nil {
			class := apierr.Classify(err)
			telemetry.IncPollError(l.backend(), class.String())
			if class == apierr.Fatal {
				l.log().Error("chat poll failed", slog.Any("err", err), slog.String("class", class.String()))
			} else {
				l.log().Warn("chat poll failed", slog.Any("err", err), slog.String("class", class.String()))
			}
		}
		l.drain(ctx)
		return l.cfg.ErrorInterval
	}

	for _, ev := range batch.Events {
		l.emit(ev)
	}
	l.drain(ctx)

	if len(batch.Events) == 0 {
		if l.cfg.Cadence == CursorSuggested {
			return l.cfg.EmptyRetry
		}
		return l.cfg.Tick
	}
	if batch.More {
		l.cursor = batch.Next
	} else {
		l.cursor = Cursor{}
	}
	if l.cfg.Cadence == FixedTick {
		return l.cfg.Tick
	}
	if batch.Next.Interval > 0 {
		return batch.Next.Interval
	}
	return l.cfg.DefaultInterval
}

func (l *Loop) emit(ev RawEvent) {
	switch ev.Kind {
	case KindChat:
		ce := ChatEvent{
			Source:    l.source.Backend(),
			Author:    ev.Author,
			Color:     colorOrRandom(ev.Color),
			Message:   ev.Text,
			Timestamp: ev.Timestamp,
		}
		if l.resolver != nil {
			ce.Badges = l.resolver.ResolveBadges(ev.Badges)
		} else {
			for _, ref := range ev.Badges {
				ce.Badges = append(ce.Badges, badges.Fallback(ref))
			}
		}
		l.sink.Emit(events.New(events.TypeChatMessage, ce.Payload()))
		telemetry.IncEventEmitted(l.backend(), events.TypeChatMessage)
	case KindFollow:
		fe := FollowEvent{Source: l.source.Backend(), User: ev.Author}
		l.sink.Emit(events.New(events.TypeFollow, fe.Payload()))
		telemetry.IncEventEmitted(l.backend(), events.TypeFollow)
	}
}

// drain sends every queued message in order. Failures are reported and the
// message is discarded.
func (l *Loop) drain(ctx context.Context) {
	if l.outbox == nil {
		return
	}
	for ctx.Err() == nil {
		text, ok := l.outbox.TryPop()
		if !ok {
			return
		}
		sctx, span := telemetry.StartSpan(ctx, "chat", "chat.send", attribute.String("backend", l.backend()))
		err := l.source.Send(sctx, text)
		telemetry.ObserveSend(l.backend(), err)
		if err != nil {
			serr := &SendError{Backend: l.source.Backend(), Err: err}
			telemetry.RecordError(span, serr)
			span.End()
			l.log().Warn("chat send failed", slog.Any("err", serr))
			l.sink.Emit(events.New(events.TypeSendFailed, events.SendFailed{Source: l.backend(), Message: text, Reason: err.Error()}))
			continue
		}
		telemetry.SetSpanSuccess(span)
		span.End()
	}
}
