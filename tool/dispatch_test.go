package tool_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaykit/kernel/security"
	"github.com/relaykit/kernel/tool"
	"github.com/relaykit/kernel/tool/standard"
)

func newDispatcher(t *testing.T, policy security.Policy) (*tool.Dispatcher, *tool.Registry, *security.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := security.NewManager(policy, logger)
	t.Cleanup(mgr.Close)

	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(standard.NewTextUppercaseTool()))
	require.NoError(t, reg.Register(standard.NewFileReadTool(t.TempDir(), 0)))
	require.NoError(t, reg.Register(standard.NewHTTPGetTool(time.Second)))

	return tool.NewDispatcher(reg, mgr), reg, mgr
}

func TestDispatchEchoCycle(t *testing.T) {
	policy := security.DefaultPolicy()
	d, _, _ := newDispatcher(t, policy)

	result, err := d.Dispatch(context.Background(), "agent-1", tool.ToolCall{
		Tool:  tool.Std(tool.TextUppercase),
		Input: "hello",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "HELLO", result.Output)
}

func TestDispatchPathTraversalBlocked(t *testing.T) {
	policy := security.DefaultPolicy()
	policy.FS.AllowPaths = []string{"/tmp"}
	d, _, _ := newDispatcher(t, policy)

	result, err := d.Dispatch(context.Background(), "agent-1", tool.ToolCall{
		Tool:  tool.Std(tool.FileRead),
		Input: "../../etc/passwd",
	})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestDispatchSSRFBlocked(t *testing.T) {
	policy := security.DefaultPolicy()
	policy.HTTP.AllowDomains = []string{"api.example.com"}
	d, _, _ := newDispatcher(t, policy)

	result, err := d.Dispatch(context.Background(), "agent-1", tool.ToolCall{
		Tool:  tool.Std(tool.HTTPGet),
		Input: "http://169.254.169.254/latest/meta-data",
	})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestDispatchUnregisteredToolReturnsError(t *testing.T) {
	policy := security.DefaultPolicy()
	d, _, _ := newDispatcher(t, policy)

	custom, err := tool.Custom("does-not-exist")
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), "agent-1", tool.ToolCall{Tool: custom, Input: "x"})
	require.Error(t, err)
}

func TestDispatchLockdownBlocksEverything(t *testing.T) {
	policy := security.DefaultPolicy()
	d, _, mgr := newDispatcher(t, policy)
	mgr.SetLockdown(true)

	result, err := d.Dispatch(context.Background(), "agent-1", tool.ToolCall{
		Tool:  tool.Std(tool.TextUppercase),
		Input: "hello",
	})
	require.NoError(t, err)
	require.False(t, result.Success)
}
