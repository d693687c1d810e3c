package youtubeapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func newTestLiveChat(t *testing.T, handler http.HandlerFunc, canPost bool) *LiveChat {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts := Options{
		APIKey:     "key",
		Endpoint:   srv.URL + "/",
		HTTPClient: srv.Client(),
	}
	if canPost {
		opts.ClientID, opts.ClientSecret, opts.RefreshToken = "cid", "secret", "refresh"
	}
	lc, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return lc
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Error("New() without key or oauth should fail")
	}
}

func TestOptionsScopes(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{DefaultScope}},
		{"a,b", []string{"a", "b"}},
		{"a b", []string{"a", "b"}},
	}
	for _, tt := range tests {
		got := Options{Scopes: tt.in}.scopes()
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("scopes(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFindLiveVideo(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{"live", `{"items":[{"id":{"kind":"youtube#video","videoId":"vid-1"}}]}`, "vid-1", nil},
		{"offline", `{"items":[]}`, "", ErrNotLive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := newTestLiveChat(t, func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, "/search") {
					t.Errorf("path = %s", r.URL.Path)
				}
				q := r.URL.Query()
				if q.Get("channelId") != "chan" || q.Get("eventType") != "live" || q.Get("type") != "video" {
					t.Errorf("query = %v", q)
				}
				_, _ = w.Write([]byte(tt.body))
			}, false)
			got, err := lc.FindLiveVideo(context.Background(), "chan")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FindLiveVideo() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FindLiveVideo() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActiveLiveChatID(t *testing.T) {
	lc := newTestLiveChat(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/videos") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("id") == "vid-1" {
			_, _ = w.Write([]byte(`{"items":[{"id":"vid-1","liveStreamingDetails":{"activeLiveChatId":"chat-1"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"vid-2","liveStreamingDetails":{}}]}`))
	}, false)

	got, err := lc.ActiveLiveChatID(context.Background(), "vid-1")
	if err != nil || got != "chat-1" {
		t.Fatalf("ActiveLiveChatID() = %q, %v", got, err)
	}
	if _, err := lc.ActiveLiveChatID(context.Background(), "vid-2"); !errors.Is(err, ErrNoLiveChat) {
		t.Errorf("ActiveLiveChatID(ended) error = %v, want ErrNoLiveChat", err)
	}
}

func TestListMessages(t *testing.T) {
	lc := newTestLiveChat(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/liveChat/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("liveChatId") != "chat-1" || r.URL.Query().Get("pageToken") != "T1" {
			t.Errorf("query = %v", r.URL.Query())
		}
		_, _ = w.Write([]byte(`{
			"nextPageToken": "T2",
			"pollingIntervalMillis": 5000,
			"items": [
				{"id":"m1","snippet":{"type":"textMessageEvent","displayMessage":"hi","publishedAt":"2024-05-01T10:00:00Z","textMessageDetails":{"messageText":"hi"}},"authorDetails":{"displayName":"Carol"}},
				{"id":"m2","snippet":{"type":"superChatEvent","displayMessage":"$5"},"authorDetails":{"displayName":"Dan"}}
			]
		}`))
	}, false)

	page, err := lc.ListMessages(context.Background(), "chat-1", "T1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if page.NextPageToken != "T2" || page.PollingInterval != 5*time.Second {
		t.Errorf("page cursor = %q/%v", page.NextPageToken, page.PollingInterval)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(page.Messages))
	}
	m := page.Messages[0]
	if m.Author != "Carol" || m.Text != "hi" || m.Type != "textMessageEvent" {
		t.Errorf("message = %+v", m)
	}
	if !m.PublishedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", m.PublishedAt)
	}
	if page.Messages[1].Type != "superChatEvent" {
		t.Errorf("second type = %q", page.Messages[1].Type)
	}
}

func TestListMessagesAPIErrorIsWrapped(t *testing.T) {
	lc := newTestLiveChat(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"The live chat is no longer live.","errors":[{"reason":"liveChatEnded"}]}}`))
	}, false)

	_, err := lc.ListMessages(context.Background(), "chat-1", "")
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		t.Fatalf("error = %v, want *googleapi.Error in chain", err)
	}
	if gErr.Code != http.StatusForbidden {
		t.Errorf("code = %d", gErr.Code)
	}
}

func TestInsertMessage(t *testing.T) {
	lc := newTestLiveChat(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/liveChat/messages") {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Snippet struct {
				LiveChatID         string `json:"liveChatId"`
				Type               string `json:"type"`
				TextMessageDetails struct {
					MessageText string `json:"messageText"`
				} `json:"textMessageDetails"`
			} `json:"snippet"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Snippet.LiveChatID != "chat-1" || body.Snippet.Type != "textMessageEvent" || body.Snippet.TextMessageDetails.MessageText != "hello" {
			t.Errorf("body = %+v", body)
		}
		_, _ = w.Write([]byte(`{"id":"new-1"}`))
	}, true)

	if !lc.CanPost() {
		t.Fatal("CanPost() = false with oauth credentials")
	}
	id, err := lc.InsertMessage(context.Background(), "chat-1", "hello")
	if err != nil || id != "new-1" {
		t.Fatalf("InsertMessage() = %q, %v", id, err)
	}
}

func TestInsertMessageReadOnly(t *testing.T) {
	lc := newTestLiveChat(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, false)
	if _, err := lc.InsertMessage(context.Background(), "chat-1", "x"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("InsertMessage() error = %v, want ErrReadOnly", err)
	}
}
