package models

import (
	"time"
)

// EventType identifies the kind of session event.
type EventType string

const (
	// Lifecycle.
	EventAgentStart EventType = "agent_start"
	EventAgentEnd   EventType = "agent_end"
	EventCanceled   EventType = "canceled"
	EventError      EventType = "error"

	// Message streaming.
	EventMessageStart EventType = "message_start"
	EventMessageEnd   EventType = "message_end"
	EventTurnEnd      EventType = "turn_end"

	// Tool execution.
	EventToolExecutionStart EventType = "tool_execution_start"
	EventToolExecutionEnd   EventType = "tool_execution_end"

	// Maintenance.
	EventCompactionComplete    EventType = "compaction_complete"
	EventBranchSummarized      EventType = "branch_summarized"
	EventExtensionStatusReport EventType = "extension_status_report"
)

// CancelReason explains why a run was canceled.
type CancelReason string

const (
	CancelAssistantAborted CancelReason = "assistant_aborted"
	CancelReset            CancelReason = "reset"
)

// Event is the unified session event delivered to subscribers. A single Type
// discriminator selects which optional payload pointers are populated.
//
// Sequence is monotonic within a session for ordering guarantees across
// goroutines.
type Event struct {
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	Sequence  uint64    `json:"seq"`
	SessionID string    `json:"session_id,omitempty"`
	TurnIndex int       `json:"turn_index,omitempty"`

	// Message for message_start/message_end.
	Message *Message `json:"message,omitempty"`

	// Messages for agent_end (the messages of the finished run).
	Messages []Message `json:"messages,omitempty"`

	// Tool for tool_execution_start/end.
	Tool *ToolEventPayload `json:"tool,omitempty"`

	// Reason for canceled.
	Reason CancelReason `json:"reason,omitempty"`

	// Error payload for error events. Partial carries any messages produced
	// before the failure.
	Error   string    `json:"error,omitempty"`
	Partial []Message `json:"partial,omitempty"`

	// Compaction for compaction_complete.
	Compaction *CompactionEventPayload `json:"compaction,omitempty"`

	// BranchSummary for branch_summarized.
	BranchSummary *BranchSummaryPayload `json:"branch_summary,omitempty"`

	// Report for extension_status_report; shape owned by the extensions
	// package, kept opaque here.
	Report any `json:"report,omitempty"`

	// Stats for agent_end.
	Stats *RunStats `json:"stats,omitempty"`
}

// ToolEventPayload describes a tool invocation in flight.
type ToolEventPayload struct {
	CallID  string        `json:"call_id"`
	Name    string        `json:"name"`
	IsError bool          `json:"is_error,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// CompactionEventPayload summarizes an applied compaction.
type CompactionEventPayload struct {
	Summary          string         `json:"summary"`
	FirstKeptEntryID string         `json:"first_kept_entry_id"`
	TokensBefore     int            `json:"tokens_before"`
	Details          map[string]any `json:"details,omitempty"`
}

// BranchSummaryPayload describes a summarized abandoned branch.
type BranchSummaryPayload struct {
	FromID  string `json:"from_id"`
	Summary string `json:"summary"`
}

// RunStats aggregates counters for a finished run, derived from the event
// stream for observability.
type RunStats struct {
	Turns        int           `json:"turns,omitempty"`
	ToolCalls    int           `json:"tool_calls,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	WallTime     time.Duration `json:"wall_time,omitempty"`
	Errors       int           `json:"errors,omitempty"`
}

// Terminal reports whether the event closes a run from the point of view of
// stream subscribers.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventAgentEnd, EventCanceled, EventError:
		return true
	}
	return false
}
