// Package rungraph maintains the process-wide registry of run records with
// parent/child links, monotonic lifecycle transitions, wait primitives, disk
// persistence, and TTL cleanup. All mutations funnel through a single writer
// goroutine; reads go straight to the in-memory index.
package rungraph

import (
	"errors"
	"time"

	"github.com/haasonsaas/agentcore/internal/budget"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusLost      Status = "lost"
	StatusKilled    Status = "killed"
	StatusCancelled Status = "cancelled"
)

// ErrLostOnRestart is recorded on runs observed as running after a restart.
const ErrLostOnRestart = "lost_on_restart"

// allowedTransitions is the monotonic state machine. Terminal states are
// sinks.
var allowedTransitions = map[Status][]Status{
	StatusQueued:  {StatusRunning, StatusCancelled, StatusKilled},
	StatusRunning: {StatusCompleted, StatusError, StatusKilled, StatusCancelled, StatusLost},
}

// Terminal reports whether s is a sink state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusLost, StatusKilled, StatusCancelled:
		return true
	}
	return false
}

// canTransition reports whether from→to is allowed.
func canTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Errors returned by graph operations.
var (
	ErrRunNotFound       = errors.New("run not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAwaitTimeout      = errors.New("await timeout")
	ErrGraphClosed       = errors.New("run graph closed")
)

// RunRecord is one run's registry entry.
type RunRecord struct {
	ID         string   `json:"id"`
	Status     Status   `json:"status"`
	Parent     string   `json:"parent,omitempty"`
	Children   []string `json:"children,omitempty"`
	SessionKey string   `json:"session_key,omitempty"`

	InsertedAt  time.Time  `json:"inserted_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// Budget is side-data managed by the budget tracker.
	Budget *budget.Budget `json:"budget,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *RunRecord) Clone() *RunRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Children != nil {
		out.Children = append([]string(nil), r.Children...)
	}
	if r.StartedAt != nil {
		v := *r.StartedAt
		out.StartedAt = &v
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		out.CompletedAt = &v
	}
	return &out
}
