package guardrails

import (
	"fmt"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// Default limits.
const (
	DefaultMaxToolResultBytes        = 60000
	DefaultMaxToolCallArgStringBytes = 12000

	// argExcerptLen bounds each side of a placeholder's head/tail excerpt.
	argExcerptLen = 200
)

// Config bounds the content sizes the guard enforces. Zero MaxThinkingBytes
// drops thinking blocks entirely; zero MaxToolResultImages spills every
// image.
type Config struct {
	MaxToolResultBytes        int    `json:"max_tool_result_bytes" yaml:"max_tool_result_bytes"`
	MaxToolResultImages       int    `json:"max_tool_result_images" yaml:"max_tool_result_images"`
	MaxThinkingBytes          int    `json:"max_thinking_bytes" yaml:"max_thinking_bytes"`
	MaxToolCallArgStringBytes int    `json:"max_tool_call_arg_string_bytes" yaml:"max_tool_call_arg_string_bytes"`
	SpillDir                  string `json:"spill_dir,omitempty" yaml:"spill_dir,omitempty"`
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxToolResultBytes:        DefaultMaxToolResultBytes,
		MaxToolCallArgStringBytes: DefaultMaxToolCallArgStringBytes,
	}
}

// Guard transforms the message list on its way to the model.
type Guard struct {
	cfg   Config
	spill *Spill
}

// New creates a guard from config.
func New(cfg Config) *Guard {
	return &Guard{cfg: cfg, spill: NewSpill(cfg.SpillDir)}
}

// Apply returns a transformed copy of messages. Inputs are never mutated.
func (g *Guard) Apply(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	for i := range messages {
		out[i] = g.applyMessage(messages[i])
	}
	return out
}

func (g *Guard) applyMessage(msg models.Message) models.Message {
	switch msg.Role {
	case models.RoleAssistant:
		return g.applyAssistant(msg)
	case models.RoleToolResult:
		return g.applyToolResult(msg)
	default:
		return msg
	}
}

func (g *Guard) applyAssistant(msg models.Message) models.Message {
	out := msg.Clone()
	blocks := out.Content[:0]
	for _, block := range out.Content {
		switch block.Type {
		case models.BlockThinking:
			if g.cfg.MaxThinkingBytes == 0 {
				continue
			}
			block.Thinking = safeCut(block.Thinking, g.cfg.MaxThinkingBytes)
		case models.BlockToolCall:
			if block.ToolCall != nil {
				block.ToolCall.Arguments = g.guardArgs(block.ToolCall.Name, block.ToolCall.Arguments)
			}
		}
		blocks = append(blocks, block)
	}
	out.Content = blocks
	return out
}

// guardArgs replaces oversize string values with structured placeholders,
// recursing into lists and maps. Numbers, bools, and nulls pass through.
func (g *Guard) guardArgs(toolName string, args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for key, value := range args {
		out[key] = g.guardArgValue(toolName, value)
	}
	return out
}

func (g *Guard) guardArgValue(toolName string, value any) any {
	switch v := value.(type) {
	case string:
		limit := g.cfg.MaxToolCallArgStringBytes
		if limit <= 0 || len(v) <= limit {
			return v
		}
		return g.argPlaceholder(toolName, v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = g.guardArgValue(toolName, item)
		}
		return out
	case map[string]any:
		return g.guardArgs(toolName, v)
	default:
		return value
	}
}

// argPlaceholder is the structured replacement for an oversize argument
// string.
func (g *Guard) argPlaceholder(toolName, value string) map[string]any {
	sha := sha256Hex([]byte(value))
	placeholder := map[string]any{
		"_truncated":        true,
		"bytes":             len(value),
		"sha256":            sha,
		"head_tail_excerpt": headTailExcerpt(value, argExcerptLen),
	}
	if g.spill.Enabled() {
		if path, err := g.spill.Write("tool_call_args:"+toolName, []byte(value), "txt"); err == nil && path != "" {
			placeholder["spill_path"] = path
		}
	}
	return placeholder
}

func (g *Guard) applyToolResult(msg models.Message) models.Message {
	out := msg.Clone()
	out.Content = g.guardResultText(out)
	out.Content = g.guardResultImages(out)
	return out
}

// guardResultText concatenates all text blocks; when the total exceeds the
// limit, the text blocks collapse into one truncated block with a
// deterministic header. Non-text blocks keep their positions relative to the
// collapsed text.
func (g *Guard) guardResultText(msg models.Message) []models.ContentBlock {
	limit := g.cfg.MaxToolResultBytes
	if limit <= 0 {
		return msg.Content
	}

	var total int
	for _, block := range msg.Content {
		if block.Type == models.BlockText {
			total += len(block.Text)
		}
	}
	if total <= limit {
		return msg.Content
	}

	var joined string
	for _, block := range msg.Content {
		if block.Type == models.BlockText {
			joined += block.Text
		}
	}
	sha := sha256Hex([]byte(joined))
	spillPath := ""
	if g.spill.Enabled() {
		if path, err := g.spill.Write("tool_result:"+msg.ToolName, []byte(joined), "txt"); err == nil {
			spillPath = path
		}
	}
	header := truncationHeader(msg.ToolName, total, sha, spillPath)
	truncated := header + truncateMiddle(joined, limit)

	out := make([]models.ContentBlock, 0, len(msg.Content))
	replaced := false
	for _, block := range msg.Content {
		if block.Type == models.BlockText {
			if !replaced {
				out = append(out, models.TextBlock(truncated))
				replaced = true
			}
			continue
		}
		out = append(out, block)
	}
	return out
}

// guardResultImages keeps at most N images inline; the rest become text
// placeholders carrying the sha256 and mime type.
func (g *Guard) guardResultImages(msg models.Message) []models.ContentBlock {
	keep := g.cfg.MaxToolResultImages
	out := make([]models.ContentBlock, 0, len(msg.Content))
	kept := 0
	for _, block := range msg.Content {
		if block.Type != models.BlockImage || block.Image == nil {
			out = append(out, block)
			continue
		}
		if kept < keep {
			kept++
			out = append(out, block)
			continue
		}

		data := []byte(block.Image.Data)
		sha := sha256Hex(data)
		placeholder := fmt.Sprintf("[image spilled] mime=%s sha256=%s", block.Image.MimeType, sha)
		if g.spill.Enabled() {
			if path, err := g.spill.Write("tool_result_images:"+msg.ToolName, data, extForMime(block.Image.MimeType)); err == nil && path != "" {
				placeholder += " spill_path=" + path
			}
		}
		out = append(out, models.TextBlock(placeholder))
	}
	return out
}
