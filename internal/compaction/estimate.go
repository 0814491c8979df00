package compaction

import (
	"encoding/json"

	"github.com/haasonsaas/agentcore/internal/sessionlog"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// EstimateTokens approximates token count as chars/4, minimum 1 for
// non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateMessageTokens sums estimates over a message's content blocks plus
// a small per-message overhead.
func EstimateMessageTokens(msg *models.Message) int {
	if msg == nil {
		return 0
	}
	total := 4
	for _, block := range msg.Content {
		switch block.Type {
		case models.BlockText:
			total += EstimateTokens(block.Text)
		case models.BlockThinking:
			total += EstimateTokens(block.Thinking)
		case models.BlockToolCall:
			if block.ToolCall != nil {
				total += EstimateTokens(block.ToolCall.Name)
				if data, err := json.Marshal(block.ToolCall.Arguments); err == nil {
					total += EstimateTokens(string(data))
				}
			}
		case models.BlockImage:
			if block.Image != nil {
				// Base64 data estimates like text.
				total += EstimateTokens(block.Image.Data)
			}
		}
	}
	return total
}

// EstimateEntryTokens estimates one session entry.
func EstimateEntryTokens(entry *sessionlog.Entry) int {
	switch entry.Type {
	case sessionlog.EntryMessage:
		return EstimateMessageTokens(entry.Message)
	case sessionlog.EntryCustomMessage:
		if entry.CustomMessage == nil {
			return 0
		}
		total := 4
		for _, block := range entry.CustomMessage.Content {
			if block.Type == models.BlockText {
				total += EstimateTokens(block.Text)
			}
		}
		return total
	case sessionlog.EntryBranchSummary:
		if entry.BranchSummary == nil {
			return 0
		}
		return EstimateTokens(entry.BranchSummary.Summary)
	case sessionlog.EntryCompaction:
		if entry.Compaction == nil {
			return 0
		}
		return EstimateTokens(entry.Compaction.Summary)
	default:
		return 0
	}
}

// EstimateContextTokens estimates a full message list.
func EstimateContextTokens(messages []models.Message) int {
	total := 0
	for i := range messages {
		total += EstimateMessageTokens(&messages[i])
	}
	return total
}
