package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BanditHelps/StreamChatBox/badges"
	"github.com/BanditHelps/StreamChatBox/events"
)

// fakeSource replays scripted poll results and records sends.
type fakeSource struct {
	backend Backend

	mu      sync.Mutex
	results []pollResult
	polls   []Cursor
	sent    []string
	failOn  map[string]error
	pollCh  chan Cursor
}

type pollResult struct {
	batch Batch
	err   error
}

func newFakeSource(b Backend, results ...pollResult) *fakeSource {
	return &fakeSource{backend: b, results: results, pollCh: make(chan Cursor, 64), failOn: map[string]error{}}
}

func (f *fakeSource) Backend() Backend { return f.backend }

func (f *fakeSource) Poll(_ context.Context, cur Cursor) (Batch, error) {
	f.mu.Lock()
	f.polls = append(f.polls, cur)
	var res pollResult
	if len(f.results) > 0 {
		res = f.results[0]
		f.results = f.results[1:]
	}
	f.mu.Unlock()
	f.pollCh <- cur
	return res.batch, res.err
}

func (f *fakeSource) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.failOn[text]
}

func (f *fakeSource) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// bootSource adds a Bootstrap step to fakeSource.
type bootSource struct {
	*fakeSource
	err error
}

func (b *bootSource) Bootstrap(context.Context) error { return b.err }

// recorder is a thread-safe events.Sink.
type recorder struct {
	mu  sync.Mutex
	evs []events.Event
	ch  chan events.Event
}

func newRecorder() *recorder { return &recorder{ch: make(chan events.Event, 128)} }

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	r.evs = append(r.evs, e)
	r.mu.Unlock()
	select {
	case r.ch <- e:
	default:
	}
}

func (r *recorder) ofType(t string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.evs {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, eventType string) events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-r.ch:
			if e.Type == eventType {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
			return events.Event{}
		}
	}
}

func waitPoll(t *testing.T, src *fakeSource) Cursor {
	t.Helper()
	select {
	case c := <-src.pollCh:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll")
		return Cursor{}
	}
}

// staticCatalog serves fixed badge sets.
type staticCatalog struct {
	channel []badges.Set
	global  []badges.Set
	err     error
}

func (c staticCatalog) ChannelBadges(context.Context, badges.Credentials) ([]badges.Set, error) {
	return c.channel, c.err
}

func (c staticCatalog) GlobalBadges(context.Context, badges.Credentials) ([]badges.Set, error) {
	return c.global, nil
}
