package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scope selects which workspace bootstrap files feed the system prompt.
type Scope string

const (
	ScopeMain     Scope = "main"
	ScopeSubagent Scope = "subagent"
)

// bootstrapFiles are the workspace context files injected into the system
// prompt, in order. Subagent scope is restricted to subagentAllowlist so a
// child never inherits the parent's memory files.
var (
	bootstrapFiles    = []string{"AGENTS.md", "TOOLS.md", "MEMORY.md"}
	subagentAllowlist = map[string]bool{"AGENTS.md": true, "TOOLS.md": true}
)

// PromptConfig carries the composition inputs that may change between
// dispatches.
type PromptConfig struct {
	// ExplicitSystemPrompt overrides nothing; it is prepended when set.
	ExplicitSystemPrompt string

	// TemplateBody is the active prompt template's text, if any.
	TemplateBody string

	// Workspace is the working directory whose bootstrap files are read.
	Workspace string

	// Scope is main unless the session has a parent session.
	Scope Scope
}

// ComposeSystemPrompt builds the system prompt from the explicit prompt, the
// template body, the base prompt, and workspace context-file instructions.
// Re-evaluated before every dispatch so file edits take effect.
func ComposeSystemPrompt(cfg PromptConfig) string {
	parts := []string{
		cfg.ExplicitSystemPrompt,
		cfg.TemplateBody,
		basePrompt(cfg.Workspace, cfg.Scope),
		contextFileInstructions(cfg.Workspace, cfg.Scope),
	}
	kept := parts[:0]
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "\n\n")
}

func basePrompt(workspace string, scope Scope) string {
	var b strings.Builder
	b.WriteString("You are a coding agent operating in the user's workspace.")
	if workspace != "" {
		fmt.Fprintf(&b, "\nWorking directory: %s", workspace)
	}
	if scope == ScopeSubagent {
		b.WriteString("\nYou are running as a subagent; complete the delegated task and report the result.")
	}
	return b.String()
}

// contextFileInstructions concatenates the bootstrap files present in the
// workspace. Unreadable files are skipped.
func contextFileInstructions(workspace string, scope Scope) string {
	if workspace == "" {
		return ""
	}
	var sections []string
	for _, name := range bootstrapFiles {
		if scope == ScopeSubagent && !subagentAllowlist[name] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(workspace, name))
		if err != nil {
			continue
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("Instructions from %s:\n%s", name, text))
	}
	return strings.Join(sections, "\n\n")
}
