package notify

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used by NATSPublisher.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSPublisher publishes every message as JSON to "<prefix>.<kind>" for
// downstream consumers such as archival or web dashboards. Ignore lists
// are a chat concern and do not apply here.
type NATSPublisher struct {
	pub    Publisher
	prefix string
}

// NewNATSPublisher creates a publisher. An empty prefix means "gts.events".
func NewNATSPublisher(pub Publisher, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "gts.events"
	}
	return &NATSPublisher{pub: pub, prefix: prefix}
}

func (p *NATSPublisher) Tell(player uuid.UUID, msg Message) {
	msg.Player = player.String()
	p.publish(msg)
}

func (p *NATSPublisher) Broadcast(msg Message) {
	p.publish(msg)
}

// publish is best effort: the market never waits on the event bus.
func (p *NATSPublisher) publish(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("marshal market event", "kind", msg.Kind, "error", err)
		return
	}
	subject := p.prefix + "." + msg.Kind
	if err := p.pub.Publish(subject, data); err != nil {
		slog.Warn("publish market event", "subject", subject, "error", err)
	}
}
