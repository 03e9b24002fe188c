package standard

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/relaykit/kernel/tool"
)

// TextUppercaseTool is the canonical echo-cycle tool used by the kernel's
// simplest end-to-end scenario.
type TextUppercaseTool struct{}

func NewTextUppercaseTool() *TextUppercaseTool { return &TextUppercaseTool{} }

func (t *TextUppercaseTool) Name() tool.Name { return tool.Std(tool.TextUppercase) }

func (t *TextUppercaseTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()
	return tool.ExecutionResult{Success: true, Output: strings.ToUpper(input), DurationMS: time.Since(started).Milliseconds()}
}

type TextLowercaseTool struct{}

func NewTextLowercaseTool() *TextLowercaseTool { return &TextLowercaseTool{} }

func (t *TextLowercaseTool) Name() tool.Name { return tool.Std(tool.TextLowercase) }

func (t *TextLowercaseTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()
	return tool.ExecutionResult{Success: true, Output: strings.ToLower(input), DurationMS: time.Since(started).Milliseconds()}
}

// TextAnalyzeTool reports basic counts: characters, words, lines.
type TextAnalyzeTool struct{}

func NewTextAnalyzeTool() *TextAnalyzeTool { return &TextAnalyzeTool{} }

func (t *TextAnalyzeTool) Name() tool.Name { return tool.Std(tool.TextAnalyze) }

func (t *TextAnalyzeTool) Call(ctx context.Context, input string) tool.ExecutionResult {
	started := time.Now()

	chars := 0
	for range input {
		chars++
	}
	words := len(strings.FieldsFunc(input, unicode.IsSpace))
	lines := strings.Count(input, "\n") + 1

	out := fmt.Sprintf("chars=%d words=%d lines=%d", chars, words, lines)
	return tool.ExecutionResult{Success: true, Output: out, DurationMS: time.Since(started).Milliseconds()}
}
