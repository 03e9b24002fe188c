package mesh

import (
	"context"
	"time"
)

// BackpressureLevel is one of the three signal levels computed from
// mailbox/topic depth against policy thresholds (spec §4.6).
type BackpressureLevel int

const (
	Normal BackpressureLevel = iota
	Warning
	Critical
)

func (l BackpressureLevel) String() string {
	switch l {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "normal"
	}
}

// BackpressureThresholds bounds mailbox/topic depth. HardCap rejects new
// sends outright with MeshError::BackpressureSaturated.
type BackpressureThresholds struct {
	Warning  int64
	Critical int64
	HardCap  int64
}

// DefaultBackpressureThresholds matches the teacher pack's conservative
// defaults scaled to the mesh's depth unit (messages, not bytes).
func DefaultBackpressureThresholds() BackpressureThresholds {
	return BackpressureThresholds{Warning: 1000, Critical: 5000, HardCap: 10000}
}

// Level classifies depth against t.
func (t BackpressureThresholds) Level(depth int64) BackpressureLevel {
	switch {
	case depth >= t.Critical:
		return Critical
	case depth >= t.Warning:
		return Warning
	default:
		return Normal
	}
}

// Subscription is a finite-only-on-disconnect stream of messages from a
// topic, returned by Subscribe.
type Subscription interface {
	// Next blocks until a message arrives, ctx is done, or the
	// subscription's connection is lost (in which case ok is false).
	Next(ctx context.Context) (msg Message, ok bool, err error)
	Close() error
}

// Transport is the mesh's capability set: send, broadcast, publish,
// subscribe, register_presence, queue_depth (spec §4.6). A concrete
// transport need not be Redis; the coordination patterns in patterns.go
// depend only on this interface.
type Transport interface {
	// Send pushes msg onto agentID's mailbox list, at-least-once (spec:
	// "persistent list + ack on pop").
	Send(ctx context.Context, agentID string, msg Message) error

	// Receive blocks up to timeout popping the next message from
	// agentID's mailbox. ok is false on timeout with no message.
	Receive(ctx context.Context, agentID string, timeout time.Duration) (msg Message, ok bool, err error)

	// Broadcast publishes msg to BroadcastTopic.
	Broadcast(ctx context.Context, msg Message) error

	// Publish publishes msg to topic, at-most-once.
	Publish(ctx context.Context, topic string, msg Message) error

	// Subscribe opens a stream of messages published to topic.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// RegisterPresence marks agentID live for ttl, refreshed by the
	// caller on each heartbeat.
	RegisterPresence(ctx context.Context, agentID string, ttl time.Duration) error

	// DeregisterPresence removes agentID from the membership set
	// immediately.
	DeregisterPresence(ctx context.Context, agentID string) error

	// QueueDepth reports the current mailbox or topic backlog depth,
	// the backpressure signal's input.
	QueueDepth(ctx context.Context, key string) (int64, error)
}
