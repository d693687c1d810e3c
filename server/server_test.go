package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/BanditHelps/StreamChatBox/badges"
	"github.com/BanditHelps/StreamChatBox/chat"
	"github.com/BanditHelps/StreamChatBox/events"
)

// fakeEngine records commands and returns scripted results.
type fakeEngine struct {
	mu         sync.Mutex
	enqueued   []chat.OutboundMessage
	enqueueErr error
	started    []chat.Backend
	startState chat.LoopState
	startErr   error
	creds      []badges.Credentials
	initErr    error
	status     chat.Status
}

func (f *fakeEngine) Enqueue(msg chat.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, msg)
	return f.enqueueErr
}

func (f *fakeEngine) Start(b chat.Backend) (chat.LoopState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, b)
	return f.startState, f.startErr
}

func (f *fakeEngine) InitializeBadges(_ context.Context, creds badges.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds = append(f.creds, creds)
	return f.initErr
}

func (f *fakeEngine) Status() chat.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func runningStatus() chat.Status {
	return chat.Status{Loops: map[string]chat.LoopStatus{"twitch": {State: "running", OutboxCapacity: 256}}}
}

func newTestMux(t *testing.T, eng Engine, opts Options) (http.Handler, *events.Broker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	broker := events.NewBroker()
	return NewMux(ctx, eng, broker, opts), broker
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthzOK(t *testing.T) {
	h, _ := newTestMux(t, &fakeEngine{}, Options{})
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
}

func TestCorrelationIDHeader(t *testing.T) {
	h, _ := newTestMux(t, &fakeEngine{}, Options{})

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected a generated correlation id")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rr = serve(h, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("correlation id = %q, want corr-123", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestMux(t, &fakeEngine{}, Options{})
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestMux(t, &fakeEngine{}, Options{})
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/messages", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /messages = %d, want 405", rr.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Start(ctx, http.NotFoundHandler(), "127.0.0.1:0") }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}
