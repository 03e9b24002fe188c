// Package agent defines the coordination kernel's Agent capability set
// (spec §4.1): observe, act, call_tools, handle_result, update_context.
// Agent is generic over its Observation and Action types so application
// authors bring their own domain vocabulary without the kernel knowing
// about it, the same role the teacher's Agent interface plays for its LLM
// reasoning loop, generalized here to an arbitrary observation/action pair.
package agent

import (
	"github.com/relaykit/kernel/ident"
	"github.com/relaykit/kernel/memory"
	"github.com/relaykit/kernel/tool"
)

// Agent is implemented by application authors. The coordinator drives its
// methods in the fixed order of spec §4.2 and never calls them outside a
// step. Implementations must be pure between inputs: all I/O happens
// through emitted ToolCalls, not inside Agent methods directly.
type Agent[Observation, Action any] interface {
	// ID returns the agent's validated identifier.
	ID() string

	// Observe records obs for the current cycle. Never errors; an agent
	// that cannot make sense of an observation simply records that fact
	// and reflects it in a later Act.
	Observe(obs Observation)

	// CallTools is deterministic given the agent's current state and may
	// return an empty slice.
	CallTools() []tool.ToolCall

	// HandleResult is invoked once per dispatched ToolCall, in dispatch
	// order, including calls whose dispatch failed (ExecutionResult{Success:false}).
	HandleResult(result tool.ExecutionResult)

	// UpdateContext returns the agent's intended memory mutation for this
	// cycle, evaluated before Act and persisted atomically by the
	// coordinator.
	UpdateContext() memory.Update

	// Act produces the cycle's external action.
	Act() Action
}

// ValidateID checks an agent id against the spec's boundary rule.
func ValidateID(id string) error {
	return ident.AgentID(id)
}
