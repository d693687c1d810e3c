// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsEmitted  *prometheus.CounterVec
	MessagesSent   *prometheus.CounterVec
	PollErrors     *prometheus.CounterVec
	BadgeFetches   *prometheus.CounterVec
	BadgeFallbacks prometheus.Counter
	EventsDropped  prometheus.Counter

	// Histograms (seconds)
	PollDuration *prometheus.HistogramVec

	// Gauges
	OutboxDepth *prometheus.GaugeVec
	LoopState   *prometheus.GaugeVec
)

// Init registers metrics (idempotent). Helpers below are no-ops until Init runs.
func Init() {
	once.Do(func() {
		EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbox_events_emitted_total", Help: "Events handed to the presentation layer"}, []string{"backend", "type"})
		MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbox_messages_sent_total", Help: "Outbound chat messages by delivery result"}, []string{"backend", "result"})
		PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbox_poll_errors_total", Help: "Failed polls by error class"}, []string{"backend", "class"})
		BadgeFetches = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatbox_badge_fetches_total", Help: "Badge catalog fetches by scope and result"}, []string{"scope", "result"})
		BadgeFallbacks = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbox_badge_fallbacks_total", Help: "Badges resolved with a synthesized fallback"})
		EventsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chatbox_events_dropped_total", Help: "Events dropped for slow subscribers"})
		PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "chatbox_poll_duration_seconds", Help: "Adapter poll duration seconds", Buckets: prometheus.DefBuckets}, []string{"backend"})
		OutboxDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chatbox_outbox_depth", Help: "Messages waiting in each outbound queue"}, []string{"backend"})
		LoopState = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chatbox_loop_running", Help: "Dispatch loop running=1 otherwise 0"}, []string{"backend"})
	})
}

// IncEventEmitted counts one event of the given type for backend.
func IncEventEmitted(backend, eventType string) {
	if EventsEmitted != nil {
		EventsEmitted.WithLabelValues(backend, eventType).Inc()
	}
}

// ObserveSend records the outcome of one outbound delivery.
func ObserveSend(backend string, err error) {
	if MessagesSent == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	MessagesSent.WithLabelValues(backend, result).Inc()
}

// IncPollError counts a failed poll with its classification.
func IncPollError(backend, class string) {
	if PollErrors != nil {
		PollErrors.WithLabelValues(backend, class).Inc()
	}
}

// IncBadgeFetch counts one catalog request.
func IncBadgeFetch(scope string, err error) {
	if BadgeFetches == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	BadgeFetches.WithLabelValues(scope, result).Inc()
}

// AddBadgeFallbacks counts synthesized badges.
func AddBadgeFallbacks(n int) {
	if BadgeFallbacks != nil && n > 0 {
		BadgeFallbacks.Add(float64(n))
	}
}

// IncEventsDropped counts an event a subscriber could not take.
func IncEventsDropped() {
	if EventsDropped != nil {
		EventsDropped.Inc()
	}
}

// SetOutboxDepth records the queue length for backend.
func SetOutboxDepth(backend string, n int) {
	if OutboxDepth != nil {
		OutboxDepth.WithLabelValues(backend).Set(float64(n))
	}
}

// SetLoopRunning sets the gauge to 1 if running else 0.
func SetLoopRunning(backend string, running bool) {
	if LoopState == nil {
		return
	}
	if running {
		LoopState.WithLabelValues(backend).Set(1)
	} else {
		LoopState.WithLabelValues(backend).Set(0)
	}
}

// ObservePoll records how long one poll took.
func ObservePoll(backend string, d time.Duration) {
	if PollDuration != nil {
		PollDuration.WithLabelValues(backend).Observe(d.Seconds())
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
