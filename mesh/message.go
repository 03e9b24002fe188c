// Package mesh implements the kernel's multi-agent messaging fabric (spec
// §4.6): point-to-point mailboxes, pub/sub topics, presence, backpressure,
// a dead-letter queue, and the four coordination patterns built on top of
// them. The Redis transport is grounded on the teacher pack's
// orchestration.RedisTaskQueue (LPUSH/BRPOP mailbox) and core.RedisClient
// (pub/sub wiring), generalized from a single task queue into the full
// send/broadcast/publish/subscribe/presence capability set.
package mesh

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/kernel/ident"
	"github.com/relaykit/kernel/kernelerr"
)

// MaxMessageBytes is the serialized-size cap Encode enforces on every
// Message. It is a package constant; transports cannot change it.
const MaxMessageBytes = 256 * 1024

// BroadcastTopic is the well-known topic every registered presence
// subscribes to.
const BroadcastTopic = "__broadcast__"

// PayloadType tags which of Message's payload shapes is populated.
type PayloadType string

const (
	PayloadText   PayloadType = "text"
	PayloadJSON   PayloadType = "json"
	PayloadBinary PayloadType = "binary"
)

// Message is the mesh's wire envelope: `{id, payload_type, payload,
// metadata, correlation_id?, created_at}` (spec §6). Binary payloads are
// base64-wrapped for JSON transport; text and JSON payloads are carried
// as-is.
type Message struct {
	ID            string            `json:"id"`
	PayloadType   PayloadType       `json:"payload_type"`
	Payload       string            `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	CreatedAt     int64             `json:"created_at"`
}

// NewTextMessage builds a Text-payload message with a fresh id and the
// current wall-clock time in Unix nanoseconds (not a monotonic reading).
func NewTextMessage(text string, metadata map[string]string) Message {
	return Message{
		ID:          uuid.NewString(),
		PayloadType: PayloadText,
		Payload:     text,
		Metadata:    metadata,
		CreatedAt:   time.Now().UnixNano(),
	}
}

// NewJSONMessage marshals v into a Json-payload message.
func NewJSONMessage(v any, metadata map[string]string) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, kernelerr.Wrap(kernelerr.KindMesh, kernelerr.CodeSerialization, "mesh.message", "NewJSONMessage", "failed to marshal payload", err)
	}
	return Message{
		ID:          uuid.NewString(),
		PayloadType: PayloadJSON,
		Payload:     string(data),
		Metadata:    metadata,
		CreatedAt:   time.Now().UnixNano(),
	}, nil
}

// NewBinaryMessage base64-wraps data into a Binary-payload message.
func NewBinaryMessage(data []byte, metadata map[string]string) Message {
	return Message{
		ID:          uuid.NewString(),
		PayloadType: PayloadBinary,
		Payload:     base64.StdEncoding.EncodeToString(data),
		Metadata:    metadata,
		CreatedAt:   time.Now().UnixNano(),
	}
}

// Binary decodes a Binary-payload message back to raw bytes.
func (m Message) Binary() ([]byte, error) {
	if m.PayloadType != PayloadBinary {
		return nil, kernelerr.New(kernelerr.KindMesh, kernelerr.CodeSerialization, "mesh.message", "Binary", "payload is not Binary", nil)
	}
	return base64.StdEncoding.DecodeString(m.Payload)
}

// WithCorrelation returns a copy of m carrying correlationID, used by the
// Request/Reply pattern to thread a reply back to its waiter.
func (m Message) WithCorrelation(correlationID string) Message {
	m.CorrelationID = correlationID
	return m
}

// Encode serializes m to its wire JSON form, enforcing MaxMessageBytes.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.KindMesh, kernelerr.CodeSerialization, "mesh.message", "Encode", "failed to marshal envelope", err)
	}
	if len(data) > MaxMessageBytes {
		return nil, kernelerr.New(kernelerr.KindMesh, kernelerr.CodeSerialization, "mesh.message", "Encode", "message exceeds max serialized size", map[string]any{
			"observed": len(data),
			"limit":    MaxMessageBytes,
		})
	}
	return data, nil
}

// Decode parses a wire envelope.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, kernelerr.Wrap(kernelerr.KindMesh, kernelerr.CodeSerialization, "mesh.message", "Decode", "failed to unmarshal envelope", err)
	}
	return m, nil
}

// ValidateTopic validates a mesh topic or addressable endpoint name.
func ValidateTopic(topic string) error { return ident.Topic(topic) }

// ValidateAgentID validates a mesh endpoint's agent id.
func ValidateAgentID(id string) error { return ident.AgentID(id) }
