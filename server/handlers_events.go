package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BanditHelps/StreamChatBox/telemetry"
)

const sseBuffer = 256

// HandleEvents streams presentation events as Server-Sent Events until the
// client disconnects or the server shuts down. An optional comma separated
// "types" query parameter restricts the stream to those event types.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	var only map[string]bool
	if v := r.URL.Query().Get("types"); v != "" {
		only = make(map[string]bool)
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				only[t] = true
			}
		}
	}

	// the server-wide write timeout would cut the stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ch, cancel := h.stream.Subscribe(sseBuffer)
	defer cancel()

	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "sse"))
	log.Info("sse client connected", slog.String("remote_addr", r.RemoteAddr))
	defer log.Info("sse client disconnected", slog.String("remote_addr", r.RemoteAddr))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(h.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if only != nil && !only[ev.Type] {
				continue
			}
			b, err := json.Marshal(ev)
			if err != nil {
				log.Warn("sse marshal failed", slog.Any("err", err), slog.String("type", ev.Type))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
