package standard

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/relaykit/kernel/tool"
)

// JSONParseTool validates that input is well-formed JSON and echoes it back
// compacted, surfacing a parse error as a failed ExecutionResult rather
// than a Go error.
type JSONParseTool struct{}

func NewJSONParseTool() *JSONParseTool { return &JSONParseTool{} }

func (t *JSONParseTool) Name() tool.Name { return tool.Std(tool.JSONParse) }

func (t *JSONParseTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()
	var v any
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		return errResult(started, "invalid JSON: "+err.Error())
	}
	compact, err := json.Marshal(v)
	if err != nil {
		return errResult(started, "re-marshal failed: "+err.Error())
	}
	return tool.ExecutionResult{Success: true, Output: string(compact), DurationMS: time.Since(started).Milliseconds()}
}

// JSONExtractTool extracts a dotted-path field from a JSON object. Input is
// "<json>\n<dotted.path>".
type JSONExtractTool struct{}

func NewJSONExtractTool() *JSONExtractTool { return &JSONExtractTool{} }

func (t *JSONExtractTool) Name() tool.Name { return tool.Std(tool.JSONExtract) }

func (t *JSONExtractTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()
	raw, path, _ := splitURLBody(input)

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return errResult(started, "invalid JSON: "+err.Error())
	}

	cur := v
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return errResult(started, "path segment "+seg+" is not an object")
		}
		cur, ok = m[seg]
		if !ok {
			return errResult(started, "path segment "+seg+" not found")
		}
	}

	out, err := json.Marshal(cur)
	if err != nil {
		return errResult(started, "marshal failed: "+err.Error())
	}
	return tool.ExecutionResult{Success: true, Output: string(out), DurationMS: time.Since(started).Milliseconds()}
}

// JSONPrettyTool re-indents input JSON.
type JSONPrettyTool struct{}

func NewJSONPrettyTool() *JSONPrettyTool { return &JSONPrettyTool{} }

func (t *JSONPrettyTool) Name() tool.Name { return tool.Std(tool.JSONPretty) }

func (t *JSONPrettyTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(input), "", "  "); err != nil {
		return errResult(started, "invalid JSON: "+err.Error())
	}
	return tool.ExecutionResult{Success: true, Output: buf.String(), DurationMS: time.Since(started).Milliseconds()}
}
