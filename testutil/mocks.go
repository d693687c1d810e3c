// Package testutil provides an in-process stand-in for the Twitch Helix and
// id.twitch.tv endpoints the service calls.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/BanditHelps/StreamChatBox/badges"
)

// MockTwitchServer creates a test server that mocks Twitch Helix API responses.
// Handlers are keyed by "METHOD /path"; unknown routes answer 404.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	calls map[string]int
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		m.mu.Lock()
		m.calls[key]++
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// HelixURL is the base URL to configure a Helix client with.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// Calls returns how many requests hit "METHOD /path".
func (m *MockTwitchServer) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

func (m *MockTwitchServer) handle(key string, fn http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[key] = fn
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockUserResponse adds a handler for the /helix/users endpoint
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.handle("GET /helix/users", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("login") != login {
			writeJSON(w, map[string]any{"data": []any{}})
			return
		}
		writeJSON(w, map[string]any{"data": []map[string]string{{"id": userID, "login": login}}})
	})
}

// MockChannelBadges serves sets for /helix/chat/badges.
func (m *MockTwitchServer) MockChannelBadges(sets []badges.Set) {
	m.handle("GET /helix/chat/badges", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": sets})
	})
}

// MockGlobalBadges serves sets for /helix/chat/badges/global.
func (m *MockTwitchServer) MockGlobalBadges(sets []badges.Set) {
	m.handle("GET /helix/chat/badges/global", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": sets})
	})
}

// MockStatus makes "METHOD /path" answer with status and an error body.
func (m *MockTwitchServer) MockStatus(key string, status int) {
	m.handle(key, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		writeJSON(w, map[string]any{"status": status, "message": http.StatusText(status)})
	})
}

// MockEventSubSubscription accepts subscription creation requests.
func (m *MockTwitchServer) MockEventSubSubscription(id string) {
	m.handle("POST /helix/eventsub/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]any{"data": []map[string]string{{"id": id, "status": "enabled"}}})
	})
}

// MockChatMessage answers /helix/chat/messages as sent, or dropped with code.
func (m *MockTwitchServer) MockChatMessage(messageID string, dropCode string) {
	m.handle("POST /helix/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		res := map[string]any{"message_id": messageID, "is_sent": dropCode == ""}
		if dropCode != "" {
			res["message_id"] = ""
			res["drop_reason"] = map[string]string{"code": dropCode, "message": "dropped"}
		}
		writeJSON(w, map[string]any{"data": []any{res}})
	})
}

// MockOAuthTokenResponse adds a handler for the OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.handle("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	})
}
