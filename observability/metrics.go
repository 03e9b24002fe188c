package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// toolLabelCap and topicLabelCap bound metric label cardinality per spec
// §3/§4.7: standard tools plus custom tools fold to __other__ past 20
// distinct labels, topics fold past 20 distinct labels.
const (
	toolLabelCap  = 20
	topicLabelCap = 20
)

// Metrics holds the kernel's required Prometheus instruments (spec
// §4.7's table), grounded on the teacher's own metrics registration
// pattern: one struct holding every instrument, constructed once and
// injected wherever a count or duration needs recording.
type Metrics struct {
	SessionsActive prometheus.Gauge
	ToolExecTotal  *prometheus.CounterVec
	ToolExecDuration *prometheus.HistogramVec
	AgentErrorsTotal *prometheus.CounterVec
	MemoryOpsTotal *prometheus.CounterVec
	MeshQueueDepth *prometheus.GaugeVec
	MeshDLQSize    *prometheus.GaugeVec

	toolLabels  map[string]struct{}
	topicLabels map[string]struct{}
}

// NewMetrics registers the kernel's instruments against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_sessions_active",
			Help: "Number of live coordinators.",
		}),
		ToolExecTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_exec_total",
			Help: "Tool dispatch count.",
		}, []string{"tool"}),
		ToolExecDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tool_exec_duration_seconds",
			Help:    "Tool dispatch duration.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool"}),
		AgentErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_errors_total",
			Help: "Agent-visible error count by kind.",
		}, []string{"kind"}),
		MemoryOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memory_ops_total",
			Help: "Memory backend operation count by op.",
		}, []string{"op"}),
		MeshQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mesh_queue_depth",
			Help: "Mailbox or topic backlog depth.",
		}, []string{"topic"}),
		MeshDLQSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mesh_dlq_size",
			Help: "Dead-letter queue size by topic.",
		}, []string{"topic"}),
		toolLabels:  make(map[string]struct{}),
		topicLabels: make(map[string]struct{}),
	}

	reg.MustRegister(
		m.SessionsActive,
		m.ToolExecTotal,
		m.ToolExecDuration,
		m.AgentErrorsTotal,
		m.MemoryOpsTotal,
		m.MeshQueueDepth,
		m.MeshDLQSize,
	)
	return m
}

func (m *Metrics) toolLabel(tool string) string {
	if len(m.toolLabels) < toolLabelCap {
		m.toolLabels[tool] = struct{}{}
	}
	return FoldLabel(tool, m.toolLabels)
}

func (m *Metrics) topicLabel(topic string) string {
	if len(m.topicLabels) < topicLabelCap {
		m.topicLabels[topic] = struct{}{}
	}
	return FoldLabel(topic, m.topicLabels)
}

// RecordToolExec records one completed tool dispatch.
func (m *Metrics) RecordToolExec(tool string, durationSeconds float64) {
	label := m.toolLabel(tool)
	m.ToolExecTotal.WithLabelValues(label).Inc()
	m.ToolExecDuration.WithLabelValues(label).Observe(durationSeconds)
}

// RecordAgentError records one agent-visible error by its bounded kind
// label.
func (m *Metrics) RecordAgentError(kind ErrorKindLabel) {
	m.AgentErrorsTotal.WithLabelValues(string(kind)).Inc()
}

// RecordMemoryOp records one memory backend operation by its bounded op
// label.
func (m *Metrics) RecordMemoryOp(op MemoryOpLabel) {
	m.MemoryOpsTotal.WithLabelValues(string(op)).Inc()
}

// SetMeshQueueDepth sets the current mailbox/topic backlog gauge for
// topic.
func (m *Metrics) SetMeshQueueDepth(topic string, depth float64) {
	m.MeshQueueDepth.WithLabelValues(m.topicLabel(topic)).Set(depth)
}

// SetMeshDLQSize sets the current DLQ size gauge for topic.
func (m *Metrics) SetMeshDLQSize(topic string, size float64) {
	m.MeshDLQSize.WithLabelValues(m.topicLabel(topic)).Set(size)
}
