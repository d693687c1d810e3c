package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/BanditHelps/StreamChatBox/badges"
	"github.com/BanditHelps/StreamChatBox/events"
)

var engineCreds = badges.Credentials{ClientID: "cid", AccessToken: "tok", BroadcasterID: "42"}

func newTestEngine(t *testing.T, catalog badges.Catalog) (*Engine, *recorder, *clockwork.FakeClock, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	rec := newRecorder()
	e := NewEngine(ctx, badges.NewResolver(nil, catalog), rec, Options{OutboxCapacity: 2, Clock: clock})
	t.Cleanup(func() {
		cancel()
		e.Wait()
	})
	return e, rec, clock, cancel
}

func TestEngine_RegisterDuplicate(t *testing.T) {
	e, _, _, _ := newTestEngine(t, staticCatalog{})
	if err := e.Register(newFakeSource(Twitch), EventSubLoopConfig(time.Millisecond, time.Second)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := e.Register(newFakeSource(Twitch), EventSubLoopConfig(time.Millisecond, time.Second)); !errors.Is(err, ErrDuplicateBackend) {
		t.Errorf("second Register() error = %v, want ErrDuplicateBackend", err)
	}
}

func TestEngine_StartIsIdempotent(t *testing.T) {
	e, _, clock, _ := newTestEngine(t, staticCatalog{})
	src := newFakeSource(Twitch)
	_ = e.Register(src, EventSubLoopConfig(100*time.Millisecond, time.Second))

	st, err := e.Start(Twitch)
	if err != nil || st != Running {
		t.Fatalf("Start() = %v, %v", st, err)
	}
	waitPoll(t, src)
	if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	st, err = e.Start(Twitch)
	if err != nil || st != Running {
		t.Errorf("second Start() = %v, %v", st, err)
	}
	select {
	case <-src.pollCh:
		t.Error("second Start launched another loop")
	case <-time.After(50 * time.Millisecond):
	}
	if _, err := e.Start("discord"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Start(unknown) error = %v", err)
	}
}

func TestEngine_StartBootstrapFailure(t *testing.T) {
	e, rec, _, _ := newTestEngine(t, staticCatalog{})
	src := &bootSource{fakeSource: newFakeSource(YouTube), err: errors.New("no live broadcast")}
	_ = e.Register(src, PaginationLoopConfig(time.Second, time.Second, time.Second))

	st, err := e.Start(YouTube)
	if err != nil || st != Bootstrapping {
		t.Fatalf("Start() = %v, %v, want bootstrapping", st, err)
	}
	ev := rec.waitFor(t, events.TypeChatSourceFailed)
	if ev.Data.(events.SourceFailed).Reason != "no live broadcast" {
		t.Errorf("reason = %q", ev.Data.(events.SourceFailed).Reason)
	}
	e.wg.Wait()
	if got := e.Status().Loops["youtube"].State; got != "failed" {
		t.Errorf("state = %q, want failed", got)
	}
	if st, _ := e.Start(YouTube); st != Failed {
		t.Errorf("Start() after failure = %v, want failed", st)
	}
}

func TestEngine_EnqueueRouting(t *testing.T) {
	e, _, _, _ := newTestEngine(t, staticCatalog{})
	_ = e.Register(newFakeSource(Twitch), EventSubLoopConfig(time.Millisecond, time.Second))
	_ = e.Register(newFakeSource(YouTube), PaginationLoopConfig(time.Second, time.Second, time.Second))

	if err := e.Enqueue(OutboundMessage{Text: "t", Destination: "twitch"}); err != nil {
		t.Fatalf("Enqueue(twitch) error = %v", err)
	}
	if err := e.Enqueue(OutboundMessage{Text: "both", Destination: DestinationAll}); err != nil {
		t.Fatalf("Enqueue(all) error = %v", err)
	}
	st := e.Status()
	if st.Loops["twitch"].OutboxDepth != 2 || st.Loops["youtube"].OutboxDepth != 1 {
		t.Errorf("depths = %+v", st.Loops)
	}
	if st.Loops["twitch"].State != "not_started" {
		t.Errorf("state = %q", st.Loops["twitch"].State)
	}

	// twitch is now full (capacity 2), youtube still has room
	err := e.Enqueue(OutboundMessage{Text: "again", Destination: DestinationAll})
	if !errors.Is(err, ErrOutboxFull) {
		t.Errorf("Enqueue(all) on full queue error = %v, want ErrOutboxFull", err)
	}
	if e.Status().Loops["youtube"].OutboxDepth != 2 {
		t.Error("youtube should still receive the message")
	}

	if err := e.Enqueue(OutboundMessage{Text: "x", Destination: "discord"}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Enqueue(unknown) error = %v", err)
	}
}

func TestEngine_EnqueueAllWithoutBackends(t *testing.T) {
	e, _, _, _ := newTestEngine(t, staticCatalog{})
	if err := e.Enqueue(OutboundMessage{Text: "x", Destination: DestinationAll}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Enqueue() error = %v, want ErrUnknownBackend", err)
	}
}

func TestEngine_InitializeBadgesPublishesOnce(t *testing.T) {
	catalog := staticCatalog{global: []badges.Set{{SetID: "moderator", Versions: []badges.Version{{ID: "1", Title: "Moderator"}}}}}
	e, rec, _, _ := newTestEngine(t, catalog)

	if err := e.InitializeBadges(context.Background(), engineCreds); err != nil {
		t.Fatalf("InitializeBadges() error = %v", err)
	}
	if err := e.InitializeBadges(context.Background(), engineCreds); err != nil {
		t.Fatalf("second InitializeBadges() error = %v", err)
	}
	got := rec.ofType(events.TypeBadgesInitialized)
	if len(got) != 1 || !got[0].Data.(events.BadgesInitialized).Initialized {
		t.Errorf("badges-initialized events = %+v", got)
	}
	st := e.Status().Badges
	if st.State != "ready" || st.GlobalSets != 1 || st.ChannelSets != 0 {
		t.Errorf("badge status = %+v", st)
	}
}

func TestEngine_InitializeBadgesFailure(t *testing.T) {
	e, rec, _, _ := newTestEngine(t, staticCatalog{err: errors.New("401 unauthorized")})

	err := e.InitializeBadges(context.Background(), engineCreds)
	var initErr *badges.InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("error = %v, want *badges.InitError", err)
	}
	failed := rec.ofType(events.TypeBadgesInitFailed)
	if len(failed) != 1 {
		t.Fatalf("badges-initialization-failed events = %d", len(failed))
	}
	if st := e.Status().Badges; st.State != "failed" || st.Error == "" {
		t.Errorf("badge status = %+v", st)
	}
}

func TestEngine_LoopDeliversQueuedMessages(t *testing.T) {
	e, _, _, _ := newTestEngine(t, staticCatalog{})
	src := newFakeSource(Twitch)
	_ = e.Register(src, EventSubLoopConfig(100*time.Millisecond, time.Second))
	_ = e.Enqueue(OutboundMessage{Text: "hello", Destination: "twitch"})

	if _, err := e.Start(Twitch); err != nil {
		t.Fatal(err)
	}
	waitPoll(t, src)
	deadline := time.Now().Add(2 * time.Second)
	for len(src.sentMessages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := src.sentMessages(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("sent = %v", got)
	}
}

func TestEngine_BackendsSorted(t *testing.T) {
	e, _, _, _ := newTestEngine(t, staticCatalog{})
	_ = e.Register(newFakeSource(YouTube), PaginationLoopConfig(time.Second, time.Second, time.Second))
	_ = e.Register(newFakeSource(Twitch), EventSubLoopConfig(time.Millisecond, time.Second))
	got := e.Backends()
	if len(got) != 2 || got[0] != Twitch || got[1] != YouTube {
		t.Errorf("Backends() = %v", got)
	}
}

func TestEngine_FailedBackendRejectsMessages(t *testing.T) {
	e, rec, _, _ := newTestEngine(t, staticCatalog{})
	_ = e.Register(newFakeSource(Twitch), EventSubLoopConfig(time.Millisecond, time.Second))
	yt := &bootSource{fakeSource: newFakeSource(YouTube), err: errors.New("no live broadcast")}
	_ = e.Register(yt, PaginationLoopConfig(time.Second, time.Second, time.Second))

	// queued before the loop starts, so it can never be delivered
	if err := e.Enqueue(OutboundMessage{Text: "early", Destination: "youtube"}); err != nil {
		t.Fatalf("Enqueue() before start error = %v", err)
	}
	if _, err := e.Start(YouTube); err != nil {
		t.Fatal(err)
	}
	e.wg.Wait()

	failed := rec.waitFor(t, events.TypeSendFailed).Data.(events.SendFailed)
	if failed.Source != "youtube" || failed.Message != "early" {
		t.Errorf("send-failed = %+v", failed)
	}

	for i := 0; i < 4; i++ {
		if err := e.Enqueue(OutboundMessage{Text: "hi", Destination: "youtube"}); !errors.Is(err, ErrSourceFailed) {
			t.Fatalf("Enqueue(youtube) #%d error = %v, want ErrSourceFailed", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		err := e.Enqueue(OutboundMessage{Text: "both", Destination: DestinationAll})
		if i < 2 && err != nil {
			t.Fatalf("Enqueue(all) #%d error = %v, want nil", i, err)
		}
		if i == 2 && !errors.Is(err, ErrOutboxFull) {
			t.Fatalf("Enqueue(all) #%d error = %v, want twitch ErrOutboxFull", i, err)
		}
	}
	st := e.Status()
	if st.Loops["youtube"].OutboxDepth != 0 || st.Loops["twitch"].OutboxDepth != 2 {
		t.Errorf("depths = %+v", st.Loops)
	}
}

func TestEngine_EnqueueAllWithOnlyFailedBackends(t *testing.T) {
	e, _, _, _ := newTestEngine(t, staticCatalog{})
	_ = e.Register(&bootSource{fakeSource: newFakeSource(YouTube), err: errors.New("offline")}, PaginationLoopConfig(time.Second, time.Second, time.Second))
	if _, err := e.Start(YouTube); err != nil {
		t.Fatal(err)
	}
	e.wg.Wait()
	if err := e.Enqueue(OutboundMessage{Text: "x", Destination: DestinationAll}); !errors.Is(err, ErrSourceFailed) {
		t.Errorf("Enqueue(all) error = %v, want ErrSourceFailed", err)
	}
}
