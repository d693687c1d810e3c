package chat

import (
	"strings"
	"sync"

	"github.com/BanditHelps/StreamChatBox/telemetry"
)

// DefaultOutboxCapacity bounds each backend queue when no capacity is given.
const DefaultOutboxCapacity = 256

// Outbox is a bounded FIFO of outbound text for one backend. Any goroutine may
// enqueue; only the backend's loop pops.
type Outbox struct {
	backend Backend
	ch      chan string

	mu     sync.RWMutex
	closed bool
}

// NewOutbox returns an empty queue.
func NewOutbox(backend Backend, capacity int) *Outbox {
	if capacity <= 0 {
		capacity = DefaultOutboxCapacity
	}
	return &Outbox{backend: backend, ch: make(chan string, capacity)}
}

// Enqueue appends text without blocking.
func (o *Outbox) Enqueue(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.ch <- text:
		telemetry.SetOutboxDepth(string(o.backend), len(o.ch))
		return nil
	default:
		return ErrOutboxFull
	}
}

// TryPop removes the oldest message, if any.
func (o *Outbox) TryPop() (string, bool) {
	select {
	case text := <-o.ch:
		telemetry.SetOutboxDepth(string(o.backend), len(o.ch))
		return text, true
	default:
		return "", false
	}
}

// Drain removes and returns everything queued, oldest first.
func (o *Outbox) Drain() []string {
	var out []string
	for {
		text, ok := o.TryPop()
		if !ok {
			return out
		}
		out = append(out, text)
	}
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int { return len(o.ch) }

// Cap returns the queue capacity.
func (o *Outbox) Cap() int { return cap(o.ch) }

// Close rejects further enqueues. Queued messages stay poppable.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}
