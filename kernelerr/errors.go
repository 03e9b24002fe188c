// Package kernelerr defines the structured error taxonomy shared across the
// coordination kernel (spec §7): Validation, Policy, Resource, Tool, Memory,
// Mesh and Agent kinds, each carrying machine-readable fields rather than an
// opaque string.
package kernelerr

import "fmt"

// Kind names the top-level error category.
type Kind string

const (
	KindValidation Kind = "validation"
	KindPolicy     Kind = "policy"
	KindResource   Kind = "resource"
	KindTool       Kind = "tool"
	KindMemory     Kind = "memory"
	KindMesh       Kind = "mesh"
	KindAgent      Kind = "agent"
)

// Code names a specific error within a Kind.
type Code string

const (
	CodeMalformedIdentifier Code = "malformed_identifier"
	CodeOutOfRange          Code = "out_of_range"

	CodePathDenied         Code = "path_denied"
	CodeDomainDenied       Code = "domain_denied"
	CodeSecretDetected     Code = "secret_detected"
	CodeSuspiciousPattern  Code = "suspicious_pattern"
	CodeLockdown           Code = "lockdown"
	CodeRateLimited        Code = "rate_limited"

	CodeMemoryLimit      Code = "memory_limit"
	CodeCPULimit         Code = "cpu_limit"
	CodeTimeLimit        Code = "time_limit"
	CodeConcurrencyLimit Code = "concurrency_limit"
	CodeFdLimit          Code = "fd_limit"

	CodeToolNotFound       Code = "tool_not_found"
	CodeExecutionFailed    Code = "execution_failed"
	CodeToolTimeout        Code = "tool_timeout"

	CodeConnection         Code = "connection"
	CodeSerialization      Code = "serialization"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTransactionAborted Code = "transaction_aborted"
	CodeBackendUnavailable Code = "backend_unavailable"

	CodePublishFailed         Code = "publish_failed"
	CodeSubscribeFailed       Code = "subscribe_failed"
	CodeBackpressureSaturated Code = "backpressure_saturated"
	CodeReplyTimeout          Code = "reply_timeout"
	CodeDeadLettered          Code = "dead_lettered"

	CodePanic             Code = "panic"
	CodeInvariantViolated Code = "invariant_violated"
)

// Error is the kernel's structured error value. It mirrors the shape of the
// teacher's TeamError/ToolRegistryError: component, operation, message, and
// an optional wrapped cause, plus the kind/code pair the spec requires.
type Error struct {
	Kind      Kind
	Code      Code
	Component string
	Operation string
	Message   string
	Err       error

	// CorrelationID, when non-empty, is copied from the enclosing span so
	// that callers can trace an error back to the step/dispatch that produced it.
	CorrelationID string

	// Fields carries kind-specific structured data (observed/limit for
	// Resource errors, duration_ms for Tool.Timeout, etc).
	Fields map[string]any
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s.%s: %s: %s", e.Component, e.Operation, e.Code, e.Message)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error. fields may be nil.
func New(kind Kind, code Code, component, operation, message string, fields map[string]any) *Error {
	return &Error{Kind: kind, Code: code, Component: component, Operation: operation, Message: message, Fields: fields}
}

// Wrap constructs an Error that records an underlying cause.
func Wrap(kind Kind, code Code, component, operation, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Component: component, Operation: operation, Message: message, Err: err}
}

// WithCorrelation returns a copy of e with CorrelationID set.
func (e *Error) WithCorrelation(id string) *Error {
	cp := *e
	cp.CorrelationID = id
	return &cp
}

// Is supports errors.Is comparison by Kind+Code, ignoring component/message.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind && e.Code == other.Code
}
