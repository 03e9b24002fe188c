// Package observability provides the kernel's OpenTelemetry tracing spans
// and Prometheus metrics (spec §4.7), grounded on the teacher's own
// observability package: the same attribute-constants-plus-Tracer-struct
// shape, re-keyed from GenAI/LLM semantics to coordination-kernel
// semantics (agent id, tool name, correlation id) and from the teacher's
// bounded Hector label set to the spec's own bounded label set.
package observability

// Service-level attributes, OpenTelemetry semantic conventions.
const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
)

// Kernel-specific span attributes.
const (
	AttrAgentID        = "kernel.agent.id"
	AttrCorrelationID  = "kernel.correlation_id"
	AttrToolName       = "kernel.tool.name"
	AttrToolOutcome    = "kernel.tool.outcome"
	AttrMemoryBackend  = "kernel.memory.backend"
	AttrMemoryOp       = "kernel.memory.op"
	AttrMeshTopic      = "kernel.mesh.topic"
	AttrErrorKind      = "kernel.error.kind"
	AttrErrorCode      = "kernel.error.code"
)

// Span names, one per suspension point named in spec §5: "tracing spans
// wrap coordinator.step, tool.dispatch, memory.transaction, mesh.publish."
const (
	SpanCoordinatorStep    = "coordinator.step"
	SpanToolDispatch       = "tool.dispatch"
	SpanMemoryTransaction  = "memory.transaction"
	SpanMeshPublish        = "mesh.publish"
)

// ErrorKindLabel enumerates the bounded agent.errors.total label set (spec
// §4.7: "kind ∈ {parse,timeout,auth,tool,memory}").
type ErrorKindLabel string

const (
	ErrorKindParse   ErrorKindLabel = "parse"
	ErrorKindTimeout ErrorKindLabel = "timeout"
	ErrorKindAuth    ErrorKindLabel = "auth"
	ErrorKindTool    ErrorKindLabel = "tool"
	ErrorKindMemory  ErrorKindLabel = "memory"
)

// MemoryOpLabel enumerates the bounded memory.ops.total label set.
type MemoryOpLabel string

const (
	MemoryOpRead    MemoryOpLabel = "read"
	MemoryOpWrite   MemoryOpLabel = "write"
	MemoryOpBackup  MemoryOpLabel = "backup"
	MemoryOpRestore MemoryOpLabel = "restore"
)

// otherLabel is substituted for any label value beyond a metric's
// cardinality cap (spec §6: "additional labels are folded into
// __other__").
const otherLabel = "__other__"

// FoldLabel returns value unchanged if it is in allowed, else otherLabel.
func FoldLabel(value string, allowed map[string]struct{}) string {
	if _, ok := allowed[value]; ok {
		return value
	}
	return otherLabel
}
