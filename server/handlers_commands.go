package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BanditHelps/StreamChatBox/badges"
	"github.com/BanditHelps/StreamChatBox/chat"
	"github.com/BanditHelps/StreamChatBox/telemetry"
)

const maxCommandBody = 64 << 10

// HandleMessages queues an outbound message for one backend or, with
// destination "all" or no destination, for every backend.
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	var msg chat.OutboundMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCommandBody)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg.Destination = strings.ToLower(strings.TrimSpace(msg.Destination))
	if msg.Destination == "" {
		msg.Destination = chat.DestinationAll
	}

	err := h.engine.Enqueue(msg)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "destination": msg.Destination})
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrUnknownBackend):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrOutboxFull), errors.Is(err, chat.ErrOutboxClosed):
		telemetry.LoggerWithCorr(r.Context()).Warn("message rejected", slog.Any("err", err), slog.String("destination", msg.Destination))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, chat.ErrSourceFailed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type badgeInitRequest struct {
	ClientID      string `json:"client_id"`
	AccessToken   string `json:"access_token"`
	BroadcasterID string `json:"broadcaster_id"`
}

// HandleBadgesInitialize runs the one-shot badge fetch. Body fields are
// optional and fall back to the configured credentials. Once a first call
// has finished, later calls report the stored outcome without fetching.
func (h *Handlers) HandleBadgesInitialize(w http.ResponseWriter, r *http.Request) {
	var req badgeInitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCommandBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	creds := h.opts.BadgeCredentials
	if req.ClientID != "" {
		creds.ClientID = req.ClientID
	}
	if req.AccessToken != "" {
		creds.AccessToken = strings.TrimPrefix(req.AccessToken, "oauth:")
	}
	if req.BroadcasterID != "" {
		creds.BroadcasterID = req.BroadcasterID
	}
	if err := creds.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// a dropped client must not cancel the shared initialization
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.opts.BadgeInitTimeout)
	defer cancel()
	err := h.engine.InitializeBadges(ctx, creds)
	st := h.engine.Status().Badges
	if err != nil {
		var initErr *badges.InitError
		status := http.StatusBadGateway
		if !errors.As(err, &initErr) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"initialized": false, "badges": st, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"initialized": true, "badges": st})
}

// HandleSourceStart starts the named backend's loop and reports its state.
func (h *Handlers) HandleSourceStart(w http.ResponseWriter, r *http.Request) {
	backend := chat.Backend(strings.ToLower(r.PathValue("backend")))
	state, err := h.engine.Start(backend)
	if err != nil {
		if errors.Is(err, chat.ErrUnknownBackend) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"backend": string(backend), "state": state.String()})
}
