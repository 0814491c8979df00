// Package sessionlog implements the append-only branching tree of session
// entries with O(1) id lookup, branch reconstruction, context rebuilding, and
// durable JSONL replay.
package sessionlog

import (
	"encoding/json"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// Version is the current session file format version.
const Version = 3

// EntryType discriminates entry payloads. Values are the camelCase wire
// spellings.
type EntryType string

const (
	EntryMessage             EntryType = "message"
	EntryThinkingLevelChange EntryType = "thinkingLevelChange"
	EntryModelChange         EntryType = "modelChange"
	EntryCompaction          EntryType = "compaction"
	EntryBranchSummary       EntryType = "branchSummary"
	EntryLabel               EntryType = "label"
	EntrySessionInfo         EntryType = "sessionInfo"
	EntryCustom              EntryType = "custom"
	EntryCustomMessage       EntryType = "customMessage"
)

var knownEntryTypes = map[EntryType]bool{
	EntryMessage:             true,
	EntryThinkingLevelChange: true,
	EntryModelChange:         true,
	EntryCompaction:          true,
	EntryBranchSummary:       true,
	EntryLabel:               true,
	EntrySessionInfo:         true,
	EntryCustom:              true,
	EntryCustomMessage:       true,
}

// ModelChange records a provider/model switch.
type ModelChange struct {
	Provider string `json:"provider"`
	ModelID  string `json:"modelId"`
}

// Compaction records an applied history compaction. Entries strictly before
// FirstKeptEntryID on the branch are replaced by Summary when rebuilding
// context.
type Compaction struct {
	Summary          string         `json:"summary"`
	FirstKeptEntryID string         `json:"firstKeptEntryId"`
	TokensBefore     int            `json:"tokensBefore"`
	Details          map[string]any `json:"details,omitempty"`
	FromHook         bool           `json:"fromHook,omitempty"`
}

// BranchSummary records a summary of an abandoned branch.
type BranchSummary struct {
	FromID   string         `json:"fromId"`
	Summary  string         `json:"summary"`
	Details  map[string]any `json:"details,omitempty"`
	FromHook bool           `json:"fromHook,omitempty"`
}

// Label attaches (or clears, when Label is nil) a label on a target entry.
type Label struct {
	TargetID string  `json:"targetId"`
	Label    *string `json:"label"`
}

// SessionInfo renames the session.
type SessionInfo struct {
	Name string `json:"name"`
}

// Custom carries opaque extension data. Unknown entry types read from disk
// round-trip through this payload.
type Custom struct {
	CustomType string          `json:"customType"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// CustomMessage is an extension-injected message entry.
type CustomMessage struct {
	CustomType string                `json:"customType"`
	Content    []models.ContentBlock `json:"content,omitempty"`
	Display    bool                  `json:"display,omitempty"`
	Details    map[string]any        `json:"details,omitempty"`
}

// Entry is one node of the session tree. ID is 8 lowercase hex chars unique
// within the session; ParentID refers to an earlier entry or is empty at a
// root. Exactly one payload field matches Type.
type Entry struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parentId,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Type      EntryType `json:"type"`

	Message       *models.Message      `json:"message,omitempty"`
	ThinkingLevel models.ThinkingLevel `json:"thinkingLevel,omitempty"`
	ModelChange   *ModelChange         `json:"modelChange,omitempty"`
	Compaction    *Compaction          `json:"compaction,omitempty"`
	BranchSummary *BranchSummary       `json:"branchSummary,omitempty"`
	Label         *Label               `json:"label,omitempty"`
	SessionInfo   *SessionInfo         `json:"sessionInfo,omitempty"`
	Custom        *Custom              `json:"custom,omitempty"`
	CustomMessage *CustomMessage       `json:"customMessage,omitempty"`
}

// Header is the first line of a session file.
type Header struct {
	Type          string `json:"type"`
	Version       int    `json:"version"`
	ID            string `json:"id"`
	Timestamp     int64  `json:"timestamp"`
	CWD           string `json:"cwd"`
	ParentSession string `json:"parentSession,omitempty"`
}

// clone returns a shallow-safe copy of the entry; payload pointers are
// duplicated so callers cannot mutate stored entries.
func (e *Entry) clone() *Entry {
	out := *e
	if e.Message != nil {
		msg := e.Message.Clone()
		out.Message = &msg
	}
	if e.ModelChange != nil {
		mc := *e.ModelChange
		out.ModelChange = &mc
	}
	if e.Compaction != nil {
		c := *e.Compaction
		out.Compaction = &c
	}
	if e.BranchSummary != nil {
		bs := *e.BranchSummary
		out.BranchSummary = &bs
	}
	if e.Label != nil {
		l := *e.Label
		out.Label = &l
	}
	if e.SessionInfo != nil {
		si := *e.SessionInfo
		out.SessionInfo = &si
	}
	if e.Custom != nil {
		c := *e.Custom
		out.Custom = &c
	}
	if e.CustomMessage != nil {
		cm := *e.CustomMessage
		out.CustomMessage = &cm
	}
	return &out
}
