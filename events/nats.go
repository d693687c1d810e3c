package events

import (
	"encoding/json"
	"log/slog"

	natspkg "github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used by NATSPublisher.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher emits each event as JSON on <prefix>.<type>.
type NATSPublisher struct {
	pub    Publisher
	prefix string
	conn   *natspkg.Conn
}

// NewNATSPublisher wraps an existing publisher.
func NewNATSPublisher(pub Publisher, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "streamchatbox"
	}
	return &NATSPublisher{pub: pub, prefix: prefix}
}

// ConnectNATS dials url and returns a publisher owning the connection.
func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	nc, err := natspkg.Connect(url, natspkg.Name("streamchatbox"), natspkg.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	p := NewNATSPublisher(nc, prefix)
	p.conn = nc
	return p, nil
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// IsConnected reports the connection status; publishers built on a bare
// Publisher are always considered connected.
func (p *NATSPublisher) IsConnected() bool {
	if p.conn == nil {
		return true
	}
	return p.conn.Status() == natspkg.CONNECTED
}

// Emit publishes e. Failures are logged and dropped.
func (p *NATSPublisher) Emit(e Event) {
	b, err := json.Marshal(e)
	if err != nil {
		slog.Error("failed to encode event", slog.String("type", e.Type), slog.Any("err", err))
		return
	}
	if err := p.pub.Publish(p.Subject(e.Type), b); err != nil {
		slog.Warn("nats publish failed", slog.String("subject", p.Subject(e.Type)), slog.Any("err", err))
	}
}

// Close drains and closes an owned connection.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
