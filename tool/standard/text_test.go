package standard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextUppercaseTool(t *testing.T) {
	tool := NewTextUppercaseTool()
	result := tool.Call(context.Background(), "hello world")
	require.True(t, result.Success)
	require.Equal(t, "HELLO WORLD", result.Output)
}

func TestTextLowercaseTool(t *testing.T) {
	tool := NewTextLowercaseTool()
	result := tool.Call(context.Background(), "HELLO WORLD")
	require.True(t, result.Success)
	require.Equal(t, "hello world", result.Output)
}

func TestTextAnalyzeTool(t *testing.T) {
	tool := NewTextAnalyzeTool()
	result := tool.Call(context.Background(), "one two\nthree")
	require.True(t, result.Success)
	require.Equal(t, "chars=13 words=3 lines=2", result.Output)
}
