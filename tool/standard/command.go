package standard

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/relaykit/kernel/tool"
)

// CommandTool runs an allowlisted shell command and returns its combined
// output. It is registered under a Custom name rather than a StandardTool
// member (spec §3's StandardTool enum is closed), so an operator who wants
// it must opt in explicitly via WithTool — grounded on the teacher's
// CommandTool (tools/command.go), generalized from the teacher's
// map[string]interface{} args shape to this package's single-string
// Tool.Call input.
type CommandTool struct {
	allowed    map[string]struct{}
	workingDir string
	timeout    time.Duration
}

// NewCommandTool builds a CommandTool restricted to allowedCommands (matched
// against the input's first whitespace-delimited token), running with
// workingDir as its cwd and timeout as its per-call execution bound. An
// empty allowedCommands denies every command, matching the rest of this
// module's deny-by-default posture.
func NewCommandTool(allowedCommands []string, workingDir string, timeout time.Duration) *CommandTool {
	allowed := make(map[string]struct{}, len(allowedCommands))
	for _, c := range allowedCommands {
		allowed[c] = struct{}{}
	}
	if workingDir == "" {
		workingDir = "."
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommandTool{allowed: allowed, workingDir: workingDir, timeout: timeout}
}

func (t *CommandTool) Name() tool.Name {
	n, _ := tool.Custom("command")
	return n
}

func (t *CommandTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()
	if strings.TrimSpace(input) == "" {
		return errResult(started, "command is required")
	}

	base := baseCommand(input)
	if _, ok := t.allowed[base]; !ok {
		return errResult(started, "command not allowed: "+base)
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, "sh", "-c", input)
	cmd.Dir = t.workingDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		if callCtx.Err() != nil {
			return errResult(started, "Timeout")
		}
		return tool.ExecutionResult{Success: false, Output: string(output), Error: err.Error(), DurationMS: time.Since(started).Milliseconds()}
	}
	return tool.ExecutionResult{Success: true, Output: string(output), DurationMS: time.Since(started).Milliseconds()}
}

// baseCommand extracts the leading token a command line invokes, the part
// checked against the allowlist regardless of any arguments or shell
// operators that follow it.
func baseCommand(input string) string {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
