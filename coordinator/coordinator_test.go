package coordinator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaykit/kernel/coordinator"
	"github.com/relaykit/kernel/kernelerr"
	"github.com/relaykit/kernel/memory"
	"github.com/relaykit/kernel/tool"
)

type echoAgent struct {
	id       string
	observed string
	results  []tool.ExecutionResult
}

func (a *echoAgent) ID() string { return a.id }
func (a *echoAgent) Observe(obs string) { a.observed = obs }
func (a *echoAgent) CallTools() []tool.ToolCall {
	return []tool.ToolCall{{Tool: tool.Std(tool.TextUppercase), Input: a.observed}}
}
func (a *echoAgent) HandleResult(result tool.ExecutionResult) { a.results = append(a.results, result) }
func (a *echoAgent) UpdateContext() memory.Update             { return memory.Update{} }
func (a *echoAgent) Act() string {
	if len(a.results) == 0 {
		return ""
	}
	return a.results[len(a.results)-1].Output
}

type fakeDispatcher struct {
	result tool.ExecutionResult
	err    error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, agentID string, call tool.ToolCall) (tool.ExecutionResult, error) {
	return f.result, f.err
}

type fakeStore struct {
	failStore bool
	stored    []memory.Update
}

func (f *fakeStore) Store(ctx context.Context, update memory.Update) error {
	if f.failStore {
		return kernelerr.New(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "test", "Store", "forced failure", nil)
	}
	f.stored = append(f.stored, update)
	return nil
}

func (f *fakeStore) StoreMany(ctx context.Context, updates []memory.Update) error { return nil }

func TestCoordinatorStepEchoCycle(t *testing.T) {
	ag := &echoAgent{id: "agent-1"}
	disp := &fakeDispatcher{result: tool.ExecutionResult{Success: true, Output: "HELLO"}}
	store := &fakeStore{}

	c := coordinator.New[string, string](ag, disp, store)

	action, err := c.Step(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "HELLO", action)
}

func TestCoordinatorStepMemoryFailureAbortsWithoutAction(t *testing.T) {
	ag := &echoAgent{id: "agent-1"}
	disp := &fakeDispatcher{result: tool.ExecutionResult{Success: true, Output: "HELLO"}}
	store := &fakeStore{failStore: true}

	// force a non-empty update so Store is actually invoked.
	ag2 := &updatingAgent{echoAgent: *ag}
	c2 := coordinator.New[string, string](ag2, disp, store)

	_, err := c2.Step(context.Background(), "hello")
	require.Error(t, err)
}

type updatingAgent struct {
	echoAgent
}

func (a *updatingAgent) UpdateContext() memory.Update {
	return memory.Update{Key: "last", Value: []byte(a.observed)}
}

func TestCoordinatorStepRecoversAgentPanic(t *testing.T) {
	ag := &panickingAgent{}
	disp := &fakeDispatcher{}
	store := &fakeStore{}

	c := coordinator.New[string, string](ag, disp, store)

	_, err := c.Step(context.Background(), "hello")
	require.Error(t, err)

	// coordinator remains usable afterwards.
	action, err := c.Step(context.Background(), "hello")
	require.NoError(t, err)
	_ = action
}

// panickingAgent panics on its first CallTools and behaves like echoAgent
// from then on.
type panickingAgent struct {
	echoAgent
	panicked bool
}

func (a *panickingAgent) CallTools() []tool.ToolCall {
	if !a.panicked {
		a.panicked = true
		panic("boom")
	}
	return a.echoAgent.CallTools()
}
