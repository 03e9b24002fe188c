// Package tool implements the spec's closed StandardTool enum, the Custom
// tool escape hatch, ToolCall/ExecutionResult, and the security-wrapped
// dispatch pipeline of spec §4.3. It is grounded on the teacher's
// tools.Tool interface and tools.ToolRegistry, generalized so every
// dispatch — standard or custom — passes through the same seven-step
// pipeline instead of each tool rolling its own checks.
package tool

import (
	"context"
	"time"

	"github.com/relaykit/kernel/ident"
	"github.com/relaykit/kernel/kernelerr"
)

// StandardTool is the closed enum of built-in tools. Adding a member is a
// compile-time change, which keeps standard-tool metric label cardinality
// bounded (spec §4.3).
type StandardTool string

const (
	HTTPGet       StandardTool = "http_get"
	HTTPPost      StandardTool = "http_post"
	FileRead      StandardTool = "file_read"
	FileWrite     StandardTool = "file_write"
	FileList      StandardTool = "file_list"
	JSONParse     StandardTool = "json_parse"
	JSONExtract   StandardTool = "json_extract"
	JSONPretty    StandardTool = "json_pretty"
	TextUppercase StandardTool = "text_uppercase"
	TextLowercase StandardTool = "text_lowercase"
	TextAnalyze   StandardTool = "text_analyze"
)

// standardTools enumerates every StandardTool value; isStandardTool checks
// membership against it.
var standardTools = []StandardTool{
	HTTPGet, HTTPPost, FileRead, FileWrite, FileList,
	JSONParse, JSONExtract, JSONPretty,
	TextUppercase, TextLowercase, TextAnalyze,
}

func isStandardTool(s StandardTool) bool {
	for _, t := range standardTools {
		if t == s {
			return true
		}
	}
	return false
}

// Name is the tool identity under which a Tool is registered: either one of
// the closed StandardTool values, or a custom, identifier-validated name.
type Name struct {
	standard StandardTool
	custom   string
	isCustom bool
}

// Std builds a Name around a StandardTool.
func Std(s StandardTool) Name { return Name{standard: s} }

// Custom builds a Name around a validated custom tool identifier.
func Custom(name string) (Name, error) {
	if err := ident.ToolName(name); err != nil {
		return Name{}, err
	}
	return Name{custom: name, isCustom: true}, nil
}

// String renders the canonical dispatch label used for registry keys and
// metric labels.
func (n Name) String() string {
	if n.isCustom {
		return "custom:" + n.custom
	}
	return string(n.standard)
}

// IsCustom reports whether this Name is the Custom variant.
func (n Name) IsCustom() bool { return n.isCustom }

// ToolDispatch is the tagged union a ToolCall carries: Standard(StandardTool)
// or Custom(ToolName).
type ToolDispatch = Name

// ToolCall is a single agent-emitted request to execute a tool.
type ToolCall struct {
	Tool  ToolDispatch
	Input string
}

// ExecutionResult is the outcome of dispatching one ToolCall.
type ExecutionResult struct {
	Success    bool
	Output     string
	Error      string
	DurationMS int64
}

// Tool is the contract external authors implement (spec §6): a stateless,
// named operation. Tools opt into secure wrapping by being registered
// through the Registry rather than invoked directly.
type Tool interface {
	Name() Name
	Call(ctx context.Context, input string) ExecutionResult
}

func toolErr(code kernelerr.Code, op, msg string) *kernelerr.Error {
	return kernelerr.New(kernelerr.KindTool, code, "tool", op, msg, nil)
}

// failResult builds an ExecutionResult{success=false} with the elapsed
// duration recorded, the shape every dispatch-pipeline rejection returns
// (spec §4.3: policy failures never propagate as Go errors past dispatch,
// they surface through ExecutionResult.Error so handle_result always runs).
func failResult(started time.Time, errMsg string) ExecutionResult {
	return ExecutionResult{
		Success:    false,
		Error:      errMsg,
		DurationMS: time.Since(started).Milliseconds(),
	}
}
