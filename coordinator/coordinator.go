// Package coordinator implements the fixed five-step execution cycle of
// spec §4.2: observe, call_tools, dispatch-and-handle-result, persist the
// memory update, then act. It is grounded on the teacher's agent-loop
// shape (a driver package that owns an Agent and steps it through a fixed
// method sequence) but replaces the teacher's reasoning loop entirely with
// the coordination-kernel's tool-dispatch loop.
package coordinator

import (
	"context"

	"github.com/google/uuid"

	"github.com/relaykit/kernel/agent"
	"github.com/relaykit/kernel/kernelerr"
	"github.com/relaykit/kernel/memory"
	"github.com/relaykit/kernel/tool"
)

// Coordinator exclusively owns one Agent instance and one Memory handle
// for its lifetime (spec §3, Ownership summary). It is not safe to call
// Step concurrently on the same Coordinator; distinct coordinators over
// distinct agents may run concurrently.
type Coordinator[Observation, Action any] struct {
	ag         agent.Agent[Observation, Action]
	dispatcher Dispatcher
	store      memory.Writer
	namespace  string
}

// Dispatcher is the subset of *tool.Dispatcher the coordinator depends on,
// narrowed so tests can substitute a fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, agentID string, call tool.ToolCall) (tool.ExecutionResult, error)
}

// New builds a Coordinator over ag, dispatching tool calls through
// dispatcher and persisting memory updates through store.
func New[Observation, Action any](ag agent.Agent[Observation, Action], dispatcher Dispatcher, store memory.Writer) *Coordinator[Observation, Action] {
	return &Coordinator[Observation, Action]{ag: ag, dispatcher: dispatcher, store: store}
}

// Step drives one observation-to-action cycle (spec §4.2). A tool dispatch
// failure never aborts the step; it is routed through HandleResult with
// Success=false and the step continues. A memory store failure aborts the
// step and returns a CodeTransactionAborted-class error without producing
// an action; any tool side effects that already happened are not rolled
// back. A panic inside agent code is recovered, converted to a
// CodePanic-class error, and leaves the coordinator usable for the next
// Step call.
func (c *Coordinator[Observation, Action]) Step(ctx context.Context, observation Observation) (action Action, err error) {
	correlationID := uuid.NewString()
	agentID := c.ag.ID()

	defer func() {
		if r := recover(); r != nil {
			err = kernelerr.New(kernelerr.KindAgent, kernelerr.CodePanic, "coordinator", "Step", "agent code panicked during a step", map[string]any{
				"agent_id":       agentID,
				"correlation_id": correlationID,
				"recovered":      recoverMessage(r),
			})
		}
	}()

	c.ag.Observe(observation)

	calls := c.ag.CallTools()
	for _, call := range calls {
		result, derr := c.dispatcher.Dispatch(ctx, agentID, call)
		if derr != nil {
			// the tool itself could not be resolved; still surface this
			// through handle_result as a failed execution rather than
			// aborting the step (spec §4.2: "tool dispatch failure ->
			// ExecutionResult{success=false}; step continues").
			result = tool.ExecutionResult{Success: false, Error: derr.Error(), DurationMS: 0}
		}
		c.ag.HandleResult(result)
	}

	update := c.ag.UpdateContext()
	if update.Key != "" {
		if serr := c.store.Store(ctx, update); serr != nil {
			var zero Action
			return zero, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeTransactionAborted, "coordinator", "Step", "memory store failed during update_context persist", serr).WithCorrelation(correlationID)
		}
	}

	return c.ag.Act(), nil
}

func recoverMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "non-error panic value"
}
