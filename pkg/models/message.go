// Package models provides the domain types for the agentcore runtime:
// messages, content blocks, usage accounting, and the session event model.
package models

import (
	"time"
)

// Role identifies the kind of message in a conversation.
type Role string

const (
	RoleUser              Role = "user"
	RoleAssistant         Role = "assistant"
	RoleToolResult        Role = "tool_result"
	RoleBashExecution     Role = "bash_execution"
	RoleCustom            Role = "custom"
	RoleBranchSummary     Role = "branch_summary"
	RoleCompactionSummary Role = "compaction_summary"
)

// StopReason explains why an assistant message stopped generating.
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonToolUse StopReason = "tool_use"
	StopReasonError   StopReason = "error"
	StopReasonAborted StopReason = "aborted"
)

// TrustLevel tags tool results with the provenance of their content.
type TrustLevel string

const (
	TrustTrusted   TrustLevel = "trusted"
	TrustUntrusted TrustLevel = "untrusted"
)

// ThinkingLevel configures the reasoning depth for supported models.
type ThinkingLevel string

const (
	ThinkingOff     ThinkingLevel = "off"
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
	ThinkingXHigh   ThinkingLevel = "xhigh"
)

// ValidThinkingLevel reports whether level is one of the recognized levels.
func ValidThinkingLevel(level ThinkingLevel) bool {
	switch level {
	case ThinkingOff, ThinkingMinimal, ThinkingLow, ThinkingMedium, ThinkingHigh, ThinkingXHigh:
		return true
	}
	return false
}

// BlockType identifies the kind of content block.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockImage    BlockType = "image"
	BlockThinking BlockType = "thinking"
	BlockToolCall BlockType = "tool_call"
)

// ImageBlock carries base64 image data with its mime type.
type ImageBlock struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// ToolCall is a single tool invocation requested by the assistant.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentBlock is a tagged content variant. Exactly one payload field is
// populated for a given Type.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text for BlockText.
	Text string `json:"text,omitempty"`

	// Image for BlockImage.
	Image *ImageBlock `json:"image,omitempty"`

	// Thinking for BlockThinking.
	Thinking string `json:"thinking,omitempty"`

	// ToolCall for BlockToolCall.
	ToolCall *ToolCall `json:"toolCall,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ThinkingBlock builds a thinking content block.
func ThinkingBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Thinking: text}
}

// ToolCallBlock builds a tool_call content block.
func ToolCallBlock(id, name string, args map[string]any) ContentBlock {
	return ContentBlock{Type: BlockToolCall, ToolCall: &ToolCall{ID: id, Name: name, Arguments: args}}
}

// Usage records token and cost accounting for a single model response.
type Usage struct {
	Input       int     `json:"input,omitempty"`
	Output      int     `json:"output,omitempty"`
	CacheRead   int     `json:"cacheRead,omitempty"`
	CacheWrite  int     `json:"cacheWrite,omitempty"`
	TotalTokens int     `json:"totalTokens,omitempty"`
	Cost        float64 `json:"cost,omitempty"`
}

// Total returns the explicit total when present, otherwise the sum of the
// four token counters.
func (u Usage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.Input + u.Output + u.CacheRead + u.CacheWrite
}

// Message is a tagged message variant. The Role discriminator selects which
// of the optional fields are meaningful.
type Message struct {
	Role Role `json:"role"`

	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`

	// Content blocks, for roles that carry them.
	Content []ContentBlock `json:"content,omitempty"`

	// Assistant fields.
	Provider   string     `json:"provider,omitempty"`
	Model      string     `json:"model,omitempty"`
	API        string     `json:"api,omitempty"`
	Usage      *Usage     `json:"usage,omitempty"`
	StopReason StopReason `json:"stopReason,omitempty"`

	// Tool-result fields. ToolCallID is canonical on write; toolUseId is
	// accepted on read (see UnmarshalJSON).
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolName   string     `json:"toolName,omitempty"`
	IsError    bool       `json:"isError,omitempty"`
	Trust      TrustLevel `json:"trust,omitempty"`

	// Custom / custom_message fields.
	CustomType string         `json:"customType,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// NowMillis returns the current time in milliseconds since the Unix epoch.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NewUserMessage builds a user message with a single text block and optional
// image blocks.
func NewUserMessage(text string, images ...ImageBlock) Message {
	content := []ContentBlock{TextBlock(text)}
	for i := range images {
		img := images[i]
		content = append(content, ContentBlock{Type: BlockImage, Image: &img})
	}
	return Message{Role: RoleUser, Timestamp: NowMillis(), Content: content}
}

// NewToolResultMessage builds a tool_result message for a tool call.
func NewToolResultMessage(toolCallID, toolName string, content []ContentBlock, isError bool, trust TrustLevel) Message {
	return Message{
		Role:       RoleToolResult,
		Timestamp:  NowMillis(),
		Content:    content,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		IsError:    isError,
		Trust:      trust,
	}
}

// Text concatenates all text blocks in the message.
func (m Message) Text() string {
	var out string
	for _, block := range m.Content {
		if block.Type == BlockText {
			out += block.Text
		}
	}
	return out
}

// ToolCalls returns the tool_call blocks of the message, if any.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, block := range m.Content {
		if block.Type == BlockToolCall && block.ToolCall != nil {
			calls = append(calls, *block.ToolCall)
		}
	}
	return calls
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = make([]ContentBlock, len(m.Content))
		for i, block := range m.Content {
			out.Content[i] = block.clone()
		}
	}
	if m.Usage != nil {
		usage := *m.Usage
		out.Usage = &usage
	}
	if m.Details != nil {
		out.Details = make(map[string]any, len(m.Details))
		for k, v := range m.Details {
			out.Details[k] = v
		}
	}
	return out
}

func (b ContentBlock) clone() ContentBlock {
	out := b
	if b.Image != nil {
		img := *b.Image
		out.Image = &img
	}
	if b.ToolCall != nil {
		call := ToolCall{ID: b.ToolCall.ID, Name: b.ToolCall.Name}
		if b.ToolCall.Arguments != nil {
			call.Arguments = make(map[string]any, len(b.ToolCall.Arguments))
			for k, v := range b.ToolCall.Arguments {
				call.Arguments[k] = v
			}
		}
		out.ToolCall = &call
	}
	return out
}
