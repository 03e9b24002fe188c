package standard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONParseToolCompactsValidInput(t *testing.T) {
	tool := NewJSONParseTool()
	result := tool.Call(context.Background(), `{ "a" : 1 }`)
	require.True(t, result.Success)
	require.Equal(t, `{"a":1}`, result.Output)
}

func TestJSONParseToolRejectsInvalidInput(t *testing.T) {
	tool := NewJSONParseTool()
	result := tool.Call(context.Background(), `{not json`)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "invalid JSON")
}

func TestJSONExtractToolWalksDottedPath(t *testing.T) {
	tool := NewJSONExtractTool()
	result := tool.Call(context.Background(), `{"a":{"b":42}}`+"\n"+"a.b")
	require.True(t, result.Success)
	require.Equal(t, "42", result.Output)
}

func TestJSONExtractToolMissingSegmentFails(t *testing.T) {
	tool := NewJSONExtractTool()
	result := tool.Call(context.Background(), `{"a":{"b":42}}`+"\n"+"a.c")
	require.False(t, result.Success)
	require.Contains(t, result.Error, "not found")
}

func TestJSONPrettyToolIndents(t *testing.T) {
	tool := NewJSONPrettyTool()
	result := tool.Call(context.Background(), `{"a":1}`)
	require.True(t, result.Success)
	require.Equal(t, "{\n  \"a\": 1\n}", result.Output)
}
