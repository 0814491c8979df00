// Package tools manages the tool set presented to the model: composition
// from built-ins and extensions with first-wins conflict resolution,
// policy filtering, and approval wrapping.
package tools

import (
	"context"
	"fmt"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolArgsSize is the maximum encoded size of tool arguments (10MB).
	MaxToolArgsSize = 10 << 20
)

// Result is the outcome of one tool execution. A tool failure is reported
// via IsError rather than an error return so it can flow back to the model
// as a tool_result.
type Result struct {
	Content string
	IsError bool

	// Details carries structured output for the caller, not the model.
	Details map[string]any
}

// Tool is an executable capability exposed to the model.
type Tool interface {
	// Name is the unique tool name.
	Name() string

	// Description is shown to the model.
	Description() string

	// Schema is the JSON schema of the tool's arguments.
	Schema() map[string]any

	// Execute runs the tool. The error return is reserved for infrastructure
	// failures; tool-level failures set Result.IsError.
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// FuncTool adapts a function into a Tool.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	ToolSchema      map[string]any
	Fn              func(ctx context.Context, args map[string]any) (*Result, error)
}

func (t *FuncTool) Name() string           { return t.ToolName }
func (t *FuncTool) Description() string    { return t.ToolDescription }
func (t *FuncTool) Schema() map[string]any { return t.ToolSchema }

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	return t.Fn(ctx, args)
}

// ErrorResult builds an IsError result from a format string.
func ErrorResult(format string, args ...any) *Result {
	return &Result{Content: fmt.Sprintf(format, args...), IsError: true}
}
