package compaction

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// summarySystemPrompt is the fixed instruction for compaction summaries.
const summarySystemPrompt = `You are summarizing an agent conversation so it can continue with reduced history.
Preserve, in order of importance:
1. Files read or modified, with their paths.
2. Key decisions made and their reasons.
3. The task the user asked for and its current state.
Be concise. Output plain text.`

// summaryMaxTokens bounds the summary generation request.
const summaryMaxTokens = 1024

// Summarizer generates a summary for a rendered conversation. Implemented
// by the LLM driver.
type Summarizer interface {
	Summarize(ctx context.Context, systemPrompt, conversation string, maxTokens int) (string, error)
}

// Request describes one compaction run over a message prefix.
type Request struct {
	// Messages are the pre-cut messages to summarize.
	Messages []models.Message

	// Summary, when non-empty, bypasses generation.
	Summary string

	// CustomInstructions are appended to the system prompt.
	CustomInstructions string
}

// Summarize produces the compaction summary for req, calling the summarizer
// unless a caller-provided summary is present. Cancellation propagates as
// ctx.Err.
func Summarize(ctx context.Context, s Summarizer, req Request) (string, error) {
	if req.Summary != "" {
		return req.Summary, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt := summarySystemPrompt
	if req.CustomInstructions != "" {
		prompt += "\n\n" + req.CustomInstructions
	}
	summary, err := s.Summarize(ctx, prompt, RenderMessages(req.Messages), summaryMaxTokens)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return summary, nil
}

// RenderMessages produces the textual rendering of messages included in a
// summarization request.
func RenderMessages(messages []models.Message) string {
	var b strings.Builder
	for i := range messages {
		msg := &messages[i]
		fmt.Fprintf(&b, "[%s]", msg.Role)
		if msg.ToolName != "" {
			fmt.Fprintf(&b, " tool=%s", msg.ToolName)
		}
		b.WriteString("\n")
		if text := msg.Text(); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
		for _, call := range msg.ToolCalls() {
			fmt.Fprintf(&b, "tool_call %s(%v)\n", call.Name, call.Arguments)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// fileOpTools maps tool names to the argument key carrying the path.
var fileOpTools = map[string]string{
	"read":       "path",
	"read_file":  "path",
	"write":      "path",
	"write_file": "path",
	"edit":       "path",
	"edit_file":  "path",
}

// ExtractFileOps scans pre-cut messages for read/write/edit tool calls and
// returns the distinct paths per operation kind, sorted.
func ExtractFileOps(messages []models.Message) map[string][]string {
	seen := map[string]map[string]bool{}
	for i := range messages {
		for _, call := range messages[i].ToolCalls() {
			argKey, ok := fileOpTools[call.Name]
			if !ok {
				continue
			}
			path, _ := call.Arguments[argKey].(string)
			if path == "" {
				continue
			}
			kind := opKind(call.Name)
			if seen[kind] == nil {
				seen[kind] = make(map[string]bool)
			}
			seen[kind][path] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make(map[string][]string, len(seen))
	for kind, paths := range seen {
		list := make([]string, 0, len(paths))
		for path := range paths {
			list = append(list, path)
		}
		sort.Strings(list)
		out[kind] = list
	}
	return out
}

func opKind(toolName string) string {
	switch {
	case strings.HasPrefix(toolName, "read"):
		return "read"
	case strings.HasPrefix(toolName, "write"):
		return "write"
	default:
		return "edit"
	}
}
