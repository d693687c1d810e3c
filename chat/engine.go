package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/BanditHelps/StreamChatBox/badges"
	"github.com/BanditHelps/StreamChatBox/events"
	"github.com/BanditHelps/StreamChatBox/telemetry"
)

// Options tune an Engine.
type Options struct {
	OutboxCapacity int
	Clock          clockwork.Clock
}

type loopHandle struct {
	loop    *Loop
	outbox  *Outbox
	started bool
}

// Engine is the application context: it owns the badge resolver, one loop and
// outbox per backend, and the sink every loop emits to.
type Engine struct {
	ctx      context.Context
	resolver *badges.Resolver
	sink     events.Sink
	opts     Options

	mu    sync.Mutex
	loops map[Backend]*loopHandle
	wg    sync.WaitGroup
}

// NewEngine returns an engine whose loops run until ctx is done. The first
// badge initialization outcome is published to sink.
func NewEngine(ctx context.Context, resolver *badges.Resolver, sink events.Sink, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = events.Fanout(nil)
	}
	e := &Engine{
		ctx:      ctx,
		resolver: resolver,
		sink:     sink,
		opts:     opts,
		loops:    make(map[Backend]*loopHandle),
	}
	if resolver != nil {
		resolver.OnInitialized = e.publishBadgeOutcome
	}
	return e
}

func (e *Engine) publishBadgeOutcome(err error) {
	if err != nil {
		slog.Warn("badge initialization incomplete", slog.Any("err", err), slog.String("component", "engine"))
		e.sink.Emit(events.New(events.TypeBadgesInitFailed, events.BadgesInitFailed{Reason: err.Error()}))
		return
	}
	slog.Info("badges initialized", slog.String("component", "engine"))
	e.sink.Emit(events.New(events.TypeBadgesInitialized, events.BadgesInitialized{Initialized: true}))
}

// Register adds a source and creates its outbox. The loop does not run until
// Start.
func (e *Engine) Register(source Source, cfg LoopConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := source.Backend()
	if _, ok := e.loops[b]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBackend, b)
	}
	ob := NewOutbox(b, e.opts.OutboxCapacity)
	var resolver BadgeResolver
	if e.resolver != nil {
		resolver = e.resolver
	}
	e.loops[b] = &loopHandle{
		loop:   NewLoop(source, cfg, ob, resolver, e.sink, e.opts.Clock),
		outbox: ob,
	}
	return nil
}

// Backends returns the registered backends in name order.
func (e *Engine) Backends() []Backend {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Backend, 0, len(e.loops))
	for b := range e.loops {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Start launches the backend's loop. Only the first call starts it; later
// calls report the current state.
func (e *Engine) Start(backend Backend) (LoopState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.loops[backend]
	if !ok {
		return NotStarted, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
	if h.started {
		return h.loop.State(), nil
	}
	h.started = true
	initial := Running
	if _, boot := h.loop.source.(Bootstrapper); boot {
		initial = Bootstrapping
	}
	h.loop.setState(initial)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		h.loop.Run(e.ctx)
		if h.loop.State() == Failed {
			e.abandonOutbox(backend, h.outbox)
		}
	}()
	slog.Info("chat loop launched", slog.String("backend", string(backend)), slog.String("component", "engine"))
	return initial, nil
}

// abandonOutbox closes the outbox of a loop that will never send and reports
// every message still queued as a failed send.
func (e *Engine) abandonOutbox(backend Backend, ob *Outbox) {
	ob.Close()
	for _, text := range ob.Drain() {
		err := &SendError{Backend: backend, Err: ErrSourceFailed}
		telemetry.ObserveSend(string(backend), err)
		e.sink.Emit(events.New(events.TypeSendFailed, events.SendFailed{Source: string(backend), Message: text, Reason: err.Error()}))
	}
}

// StartAll starts every registered loop.
func (e *Engine) StartAll() {
	for _, b := range e.Backends() {
		if _, err := e.Start(b); err != nil {
			slog.Warn("failed to start chat loop", slog.String("backend", string(b)), slog.Any("err", err))
		}
	}
}

// Enqueue routes msg to one outbox, or to every outbox for DestinationAll.
// With DestinationAll each live backend is attempted and failures are joined;
// failed and stopped backends are skipped.
func (e *Engine) Enqueue(msg OutboundMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if msg.Destination == DestinationAll {
		if len(e.loops) == 0 {
			return fmt.Errorf("%w: no backends registered", ErrUnknownBackend)
		}
		var errs []error
		attempted := 0
		for b, h := range e.loops {
			if st := h.loop.State(); st == Failed || st == Stopped {
				continue
			}
			attempted++
			if err := h.outbox.Enqueue(msg.Text); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", b, err))
			}
		}
		if attempted == 0 {
			return fmt.Errorf("%w: no live backends", ErrSourceFailed)
		}
		return errors.Join(errs...)
	}
	b := Backend(msg.Destination)
	h, ok := e.loops[b]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, msg.Destination)
	}
	if h.loop.State() == Failed {
		return fmt.Errorf("%w: %s", ErrSourceFailed, b)
	}
	return h.outbox.Enqueue(msg.Text)
}

// InitializeBadges runs the resolver's one-shot fetch.
func (e *Engine) InitializeBadges(ctx context.Context, creds badges.Credentials) error {
	if e.resolver == nil {
		return errors.New("badge resolver not configured")
	}
	return e.resolver.Initialize(ctx, creds)
}

// Resolver returns the engine's badge resolver.
func (e *Engine) Resolver() *badges.Resolver { return e.resolver }

// LoopStatus reports one backend.
type LoopStatus struct {
	State          string `json:"state"`
	OutboxDepth    int    `json:"outbox_depth"`
	OutboxCapacity int    `json:"outbox_capacity"`
}

// BadgeStatus reports the resolver.
type BadgeStatus struct {
	State       string `json:"state"`
	ChannelSets int    `json:"channel_sets"`
	GlobalSets  int    `json:"global_sets"`
	Error       string `json:"error,omitempty"`
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Loops  map[string]LoopStatus `json:"loops"`
	Badges BadgeStatus           `json:"badges"`
}

// Status snapshots loop states, queue depths and badge state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{Loops: make(map[string]LoopStatus, len(e.loops))}
	for b, h := range e.loops {
		st.Loops[string(b)] = LoopStatus{
			State:          h.loop.State().String(),
			OutboxDepth:    h.outbox.Len(),
			OutboxCapacity: h.outbox.Cap(),
		}
	}
	e.mu.Unlock()

	st.Badges.State = badges.NotStarted.String()
	if e.resolver != nil {
		st.Badges.State = e.resolver.State().String()
		st.Badges.ChannelSets, st.Badges.GlobalSets = e.resolver.Cache().Len()
		if err := e.resolver.Err(); err != nil {
			st.Badges.Error = err.Error()
		}
	}
	return st
}

// Wait blocks until every started loop has returned, then closes the outboxes.
func (e *Engine) Wait() {
	e.wg.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range e.loops {
		h.outbox.Close()
	}
}
