package standard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommandToolRunsAllowedCommand(t *testing.T) {
	tool := NewCommandTool([]string{"echo"}, "", time.Second)
	result := tool.Call(context.Background(), "echo hello")
	require.True(t, result.Success)
	require.Contains(t, result.Output, "hello")
}

func TestCommandToolRejectsDisallowedCommand(t *testing.T) {
	tool := NewCommandTool([]string{"echo"}, "", time.Second)
	result := tool.Call(context.Background(), "rm -rf /")
	require.False(t, result.Success)
	require.Contains(t, result.Error, "not allowed")
}

func TestCommandToolRejectsEmptyInput(t *testing.T) {
	tool := NewCommandTool([]string{"echo"}, "", time.Second)
	result := tool.Call(context.Background(), "   ")
	require.False(t, result.Success)
}

func TestCommandToolTimesOut(t *testing.T) {
	tool := NewCommandTool([]string{"sleep"}, "", 50*time.Millisecond)

	started := time.Now()
	result := tool.Call(context.Background(), "sleep 5")
	elapsed := time.Since(started)

	require.False(t, result.Success)
	require.Equal(t, "Timeout", result.Error)
	require.Less(t, elapsed, 2*time.Second)
}
