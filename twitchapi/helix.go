// Package twitchapi contains minimal helpers for the Twitch Helix API and the
// EventSub WebSocket transport: user id resolution, chat badge catalogs,
// EventSub subscriptions and sending chat messages.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BanditHelps/StreamChatBox/apierr"
)

// DefaultHelixURL is the production Helix base URL.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// HelixClient provides the Helix calls the chat engine needs.
type HelixClient struct {
	BaseURL    string
	ClientID   string
	Tokens     TokenProvider
	HTTPClient *http.Client
}

var defaultHTTPClient = &http.Client{Timeout: 15 * time.Second}

func (hc *HelixClient) httpClient() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return defaultHTTPClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultHelixURL
}

// auth overrides the client's own id/token for a single call.
type auth struct {
	clientID string
	token    string
}

func (hc *HelixClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any, override *auth) error {
	clientID := hc.ClientID
	var token string
	if override != nil {
		clientID, token = override.clientID, override.token
	} else {
		if hc.Tokens == nil {
			return fmt.Errorf("%s: no token provider configured", op)
		}
		tok, err := hc.Tokens.Get(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		token = tok
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}
	u := hc.base() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Id", clientID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := hc.httpClient().Do(req)
	if err != nil {
		return &apierr.NetworkError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &apierr.StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apierr.ParseError{Op: op, Err: err}
	}
	return nil
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.do(ctx, "get user", http.MethodGet, "/users", url.Values{"login": {login}}, nil, &body, nil); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// Transport describes where EventSub delivers notifications.
type Transport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id,omitempty"`
}

// SubscriptionRequest is the body of POST /eventsub/subscriptions.
type SubscriptionRequest struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport Transport         `json:"transport"`
}

// CreateEventSubSubscription registers a subscription and returns its id.
func (hc *HelixClient) CreateEventSubSubscription(ctx context.Context, sub SubscriptionRequest) (string, error) {
	var body struct {
		Data []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	op := "create subscription " + sub.Type
	if err := hc.do(ctx, op, http.MethodPost, "/eventsub/subscriptions", nil, sub, &body, nil); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", &apierr.ParseError{Op: op, Err: errors.New("empty data")}
	}
	return body.Data[0].ID, nil
}

// DropReason explains why Twitch refused to relay a chat message.
type DropReason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrMessageDropped is wrapped by SendChatMessage when is_sent is false.
var ErrMessageDropped = errors.New("chat message dropped")

// SendChatMessage posts message to the broadcaster's chat as sender.
func (hc *HelixClient) SendChatMessage(ctx context.Context, broadcasterID, senderID, message string) (string, error) {
	if broadcasterID == "" || senderID == "" {
		return "", fmt.Errorf("send chat message: broadcaster and sender ids required")
	}
	req := map[string]string{
		"broadcaster_id": broadcasterID,
		"sender_id":      senderID,
		"message":        message,
	}
	var body struct {
		Data []struct {
			MessageID  string      `json:"message_id"`
			IsSent     bool        `json:"is_sent"`
			DropReason *DropReason `json:"drop_reason"`
		} `json:"data"`
	}
	if err := hc.do(ctx, "send chat message", http.MethodPost, "/chat/messages", nil, req, &body, nil); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", &apierr.ParseError{Op: "send chat message", Err: errors.New("empty data")}
	}
	res := body.Data[0]
	if !res.IsSent {
		if res.DropReason != nil {
			return "", fmt.Errorf("%w: %s: %s", ErrMessageDropped, res.DropReason.Code, res.DropReason.Message)
		}
		return "", ErrMessageDropped
	}
	return res.MessageID, nil
}
