package kernel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaykit/kernel/kernel"
	"github.com/relaykit/kernel/tool"
	"github.com/relaykit/kernel/tool/standard"
)

func TestNewAppliesDefaults(t *testing.T) {
	k, err := kernel.New(context.Background())
	require.NoError(t, err)
	require.NotNil(t, k.Security)
	require.NotNil(t, k.Memory)
	require.NotNil(t, k.Tools)
	require.NotNil(t, k.Dispatcher)
	require.NotNil(t, k.Metrics)
	require.Nil(t, k.Tracer)
	require.Nil(t, k.Mesh)
	require.NoError(t, k.Close(context.Background()))
}

func TestNewRegistersTools(t *testing.T) {
	k, err := kernel.New(context.Background(),
		kernel.WithTool(standard.NewTextUppercaseTool()),
		kernel.WithTool(standard.NewTextLowercaseTool()),
	)
	require.NoError(t, err)
	defer k.Close(context.Background())

	require.Equal(t, 2, k.Tools.Count())

	result, err := k.Dispatcher.Dispatch(context.Background(), "agent-1", tool.ToolCall{
		Tool:  tool.Std(tool.TextUppercase),
		Input: "hi",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "HI", result.Output)
}

func TestNewRejectsDuplicateTool(t *testing.T) {
	_, err := kernel.New(context.Background(),
		kernel.WithTool(standard.NewTextUppercaseTool()),
		kernel.WithTool(standard.NewTextUppercaseTool()),
	)
	require.Error(t, err)
}

func TestNewEnforcesLockdown(t *testing.T) {
	k, err := kernel.New(context.Background(), kernel.WithTool(standard.NewTextUppercaseTool()))
	require.NoError(t, err)
	defer k.Close(context.Background())

	k.Security.SetLockdown(true)
	result, err := k.Dispatcher.Dispatch(context.Background(), "agent-1", tool.ToolCall{
		Tool:  tool.Std(tool.TextUppercase),
		Input: "hi",
	})
	require.NoError(t, err)
	require.False(t, result.Success)
}
