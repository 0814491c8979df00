package compaction

import (
	"github.com/haasonsaas/agentcore/internal/sessionlog"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// FindCutPoint selects the first kept entry for a compaction of branch
// (root→leaf order). Walking backward it accumulates estimated tokens until
// keep_recent_tokens is reached, then searches backward from just before the
// target for a valid cut-point. With force, falls back to min_keep_messages
// and finally a forward search. Returns ErrCannotCompact when no valid point
// exists.
func FindCutPoint(branch []*sessionlog.Entry, settings Settings, force bool) (string, error) {
	settings = settings.withDefaults()
	if len(branch) == 0 {
		return "", ErrCannotCompact
	}

	// Accumulate backward to find the entry that pushes past the keep
	// threshold.
	target := -1
	accumulated := 0
	for i := len(branch) - 1; i >= 0; i-- {
		accumulated += EstimateEntryTokens(branch[i])
		if accumulated >= settings.KeepRecentTokens {
			target = i
			break
		}
	}
	if target <= 0 {
		// Everything fits in the keep window; nothing to summarize.
		if !force {
			return "", ErrCannotCompact
		}
		target = len(branch) - settings.MinKeepMessages
		if target < 0 {
			target = 0
		}
	}

	for i := target - 1; i >= 1; i-- {
		if isValidCutPoint(branch, i) {
			return branch[i].ID, nil
		}
	}
	if !force {
		return "", ErrCannotCompact
	}

	// Forced: keep at least min_keep_messages and look for any valid point
	// at or after it.
	minKeep := len(branch) - settings.MinKeepMessages
	if minKeep < 1 {
		minKeep = 1
	}
	for i := minKeep; i >= 1; i-- {
		if isValidCutPoint(branch, i) {
			return branch[i].ID, nil
		}
	}
	// Last resort: forward from the head.
	for i := 1; i < len(branch); i++ {
		if isValidCutPoint(branch, i) {
			return branch[i].ID, nil
		}
	}
	return "", ErrCannotCompact
}

// isValidCutPoint reports whether branch[i] may start the kept region: a
// user/custom/bash_execution message, or an assistant message whose tool
// calls are all answered later on the branch.
func isValidCutPoint(branch []*sessionlog.Entry, i int) bool {
	entry := branch[i]
	if entry.Type != sessionlog.EntryMessage || entry.Message == nil {
		return false
	}
	switch entry.Message.Role {
	case models.RoleUser, models.RoleCustom, models.RoleBashExecution:
		return true
	case models.RoleAssistant:
		calls := entry.Message.ToolCalls()
		if len(calls) == 0 {
			return true
		}
		answered := make(map[string]bool)
		for j := i + 1; j < len(branch); j++ {
			later := branch[j]
			if later.Type != sessionlog.EntryMessage || later.Message == nil {
				continue
			}
			if later.Message.Role == models.RoleToolResult && later.Message.ToolCallID != "" {
				answered[later.Message.ToolCallID] = true
			}
		}
		for _, call := range calls {
			if !answered[call.ID] {
				return false
			}
		}
		return true
	default:
		return false
	}
}
