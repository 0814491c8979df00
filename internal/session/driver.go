// Package session implements the per-conversation orchestrator: a
// command-serialized actor that owns one LLM driver, persists observed
// messages into the branching log, triggers compaction, coordinates
// subagents, and fans events out to subscribers.
package session

import (
	"context"
	"errors"

	"github.com/haasonsaas/agentcore/internal/tools"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Errors returned by session operations.
var (
	ErrAlreadyStreaming = errors.New("already_streaming")
	ErrEntryNotFound    = errors.New("entry_not_found")
	ErrEmptyBranch      = errors.New("empty_branch")
	ErrSessionClosed    = errors.New("session_closed")
)

// Driver is the LLM collaborator the orchestrator wraps. It streams from the
// network and publishes events on its mailbox; the orchestrator is its only
// consumer of Events; the other methods must be safe for concurrent use, as
// recovery calls WaitForIdle and Continue off the orchestrator goroutine.
type Driver interface {
	// Prompt starts a run from the given user message.
	Prompt(ctx context.Context, msg models.Message) error

	// Steer injects a message mid-run, delivered after the current tool
	// execution completes.
	Steer(ctx context.Context, msg models.Message) error

	// FollowUp queues a message delivered once the run goes idle.
	FollowUp(ctx context.Context, msg models.Message) error

	// Abort cancels the in-flight run; the driver emits a canceled event.
	Abort()

	SetTools(tools []tools.Tool)
	SetModel(provider, model string)
	SetThinkingLevel(level models.ThinkingLevel)
	SetSystemPrompt(prompt string)

	// Continue resumes the run after an external intervention such as a
	// forced compaction.
	Continue(ctx context.Context) error

	// WaitForIdle blocks until the driver has no run in flight.
	WaitForIdle(ctx context.Context) error

	// Reset discards driver state for a fresh session.
	Reset()

	// ReplaceMessages swaps the driver's conversation history.
	ReplaceMessages(messages []models.Message)

	// Events is the driver's event mailbox.
	Events() <-chan models.Event
}
