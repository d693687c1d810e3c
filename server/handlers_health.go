package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BanditHelps/StreamChatBox/chat"
)

// HandleHealthz is the liveness probe.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports not ready when no chat source is registered, when every
// registered source has failed, or when any extra check fails.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := append([]ReadyCheck{{Name: "chat_sources", Fn: h.sourcesReady}}, h.opts.ReadyChecks...)
	for _, check := range checks {
		if err := check.Fn(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.Name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handlers) sourcesReady(context.Context) error {
	loops := h.engine.Status().Loops
	if len(loops) == 0 {
		return errors.New("no chat sources registered")
	}
	for _, l := range loops {
		if l.State != chat.Failed.String() {
			return nil
		}
	}
	return errors.New("all chat sources failed")
}

// HandleStatus returns loop states, outbox depths and badge state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}
