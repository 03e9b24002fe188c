package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// AuditEvent is the structured record spec §4.5 requires for every tool
// dispatch decision: "{ts, agent_id, tool, input_sha256, outcome,
// session_id}". Dispatch events carry the input only as its digest; the one
// exception is ValidateInput's secret warning, which puts the input in
// Detail. Manager.Audit runs RedactSecrets over Detail when the policy's
// secrets.redact_in_logs is set.
type AuditEvent struct {
	Timestamp   time.Time
	AgentID     string
	Tool        string
	InputSHA256 string
	Outcome     string
	SessionID   string
	Detail      string
}

// HashInput returns the hex-encoded sha256 digest of input, for populating
// AuditEvent.InputSHA256 without ever retaining the input itself.
func HashInput(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// AuditSink receives audit events from many concurrent dispatch goroutines
// and drains them on a single consumer goroutine, the same
// multi-producer/single-consumer shape the teacher uses for its event
// channels. A full sink drops the incoming event rather than blocking a
// dispatch on audit backpressure.
type AuditSink struct {
	events chan AuditEvent
	logger *slog.Logger
	done   chan struct{}
}

// NewAuditSink starts the consumer goroutine and returns the sink. depth
// comes from Policy.Audit.SinkDepth. Call Close to stop the consumer.
func NewAuditSink(depth int, logger *slog.Logger) *AuditSink {
	if depth <= 0 {
		depth = 1024
	}
	s := &AuditSink{
		events: make(chan AuditEvent, depth),
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AuditSink) run() {
	for ev := range s.events {
		s.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit",
			slog.Time("ts", ev.Timestamp),
			slog.String("agent_id", ev.AgentID),
			slog.String("tool", ev.Tool),
			slog.String("input_sha256", ev.InputSHA256),
			slog.String("outcome", ev.Outcome),
			slog.String("session_id", ev.SessionID),
			slog.String("detail", ev.Detail),
		)
	}
	close(s.done)
}

// Emit enqueues ev without blocking the caller; a saturated sink drops the
// event and logs a warning for each drop rather than backing dispatch up on
// audit I/O.
func (s *AuditSink) Emit(ev AuditEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("audit sink saturated, dropping event", "tool", ev.Tool, "agent_id", ev.AgentID)
	}
}

// Close stops accepting new events and waits for the consumer to drain.
func (s *AuditSink) Close() {
	close(s.events)
	<-s.done
}
