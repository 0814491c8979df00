// Package budget implements hierarchical token, cost, and concurrency
// accounting for runs. Budgets are stored as side-data keyed by run id;
// children inherit limits from their parent and may only tighten them.
package budget

import (
	"fmt"
	"sync"
	"time"
)

// Budget tracks limits and usage for a single run. Nil limit pointers mean
// unlimited.
type Budget struct {
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	MaxCost     *float64 `json:"max_cost,omitempty"`
	MaxChildren *int     `json:"max_children,omitempty"`

	UsedTokens     int       `json:"used_tokens"`
	UsedCost       float64   `json:"used_cost"`
	ActiveChildren int       `json:"active_children"`
	CreatedAt      time.Time `json:"created_at"`
}

// Opts are optional limit overrides for budget creation.
type Opts struct {
	MaxTokens   *int
	MaxCost     *float64
	MaxChildren *int
}

// clone returns a copy with duplicated limit pointers.
func (b *Budget) clone() *Budget {
	if b == nil {
		return nil
	}
	out := *b
	if b.MaxTokens != nil {
		v := *b.MaxTokens
		out.MaxTokens = &v
	}
	if b.MaxCost != nil {
		v := *b.MaxCost
		out.MaxCost = &v
	}
	if b.MaxChildren != nil {
		v := *b.MaxChildren
		out.MaxChildren = &v
	}
	return &out
}

// Tracker stores budgets keyed by run id. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	budgets map[string]*Budget
	now     func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{budgets: make(map[string]*Budget), now: time.Now}
}

// Create registers a budget for runID. Unspecified limits inherit from the
// parent's budget when parentID names a tracked run.
func (t *Tracker) Create(runID string, opts Opts, parentID string) *Budget {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := &Budget{
		MaxTokens:   opts.MaxTokens,
		MaxCost:     opts.MaxCost,
		MaxChildren: opts.MaxChildren,
		CreatedAt:   t.now(),
	}
	if parent, ok := t.budgets[parentID]; ok {
		if b.MaxTokens == nil {
			b.MaxTokens = parent.clone().MaxTokens
		}
		if b.MaxCost == nil {
			b.MaxCost = parent.clone().MaxCost
		}
		if b.MaxChildren == nil {
			b.MaxChildren = parent.clone().MaxChildren
		}
	}
	t.budgets[runID] = b
	return b.clone()
}

// CreateSubagent registers a budget for a child run. Each axis takes the
// minimum of the parent limit and the override; unlimited counts as absent,
// so opts may tighten but never loosen the parent's ceiling.
func (t *Tracker) CreateSubagent(parentID, childID string, opts Opts) *Budget {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.budgets[parentID]
	b := &Budget{CreatedAt: t.now()}
	b.MaxTokens = minIntLimit(limitOf(parent, func(p *Budget) *int { return p.MaxTokens }), opts.MaxTokens)
	b.MaxCost = minFloatLimit(limitOf(parent, func(p *Budget) *float64 { return p.MaxCost }), opts.MaxCost)
	b.MaxChildren = minIntLimit(limitOf(parent, func(p *Budget) *int { return p.MaxChildren }), opts.MaxChildren)
	t.budgets[childID] = b
	return b.clone()
}

func limitOf[T any](b *Budget, pick func(*Budget) *T) *T {
	if b == nil {
		return nil
	}
	return pick(b)
}

func minIntLimit(a, b *int) *int {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	}
	v := *a
	if *b < v {
		v = *b
	}
	return &v
}

func minFloatLimit(a, b *float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	}
	v := *a
	if *b < v {
		v = *b
	}
	return &v
}

// Get returns a copy of the budget for runID, or nil when untracked.
func (t *Tracker) Get(runID string) *Budget {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.budgets[runID].clone()
}

// RecordUsage atomically adds tokens and cost to a run's budget.
func (t *Tracker) RecordUsage(runID string, tokens int, cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.budgets[runID]
	if !ok {
		return
	}
	b.UsedTokens += tokens
	b.UsedCost += cost
}

// ResponseUsage is the subset of a model response the tracker consumes.
type ResponseUsage struct {
	Input       int
	Output      int
	TotalTokens int
	Cost        float64
}

// RecordResponseUsage extracts tokens from the explicit total when present,
// otherwise input+output, and records them with the response cost.
func (t *Tracker) RecordResponseUsage(runID string, resp ResponseUsage) {
	tokens := resp.TotalTokens
	if tokens == 0 {
		tokens = resp.Input + resp.Output
	}
	t.RecordUsage(runID, tokens, resp.Cost)
}

// ChildStarted increments the parent's active child count and initializes the
// child's inherited budget when it has none yet.
func (t *Tracker) ChildStarted(parentID, childID string) {
	t.mu.Lock()
	if parent, ok := t.budgets[parentID]; ok {
		parent.ActiveChildren++
	}
	_, hasChild := t.budgets[childID]
	t.mu.Unlock()

	if !hasChild {
		t.CreateSubagent(parentID, childID, Opts{})
	}
}

// ChildCompleted decrements the parent's active child count (clamped at
// zero) and folds the child's used tokens and cost into the parent.
func (t *Tracker) ChildCompleted(parentID, childID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.budgets[parentID]
	if !ok {
		return
	}
	if parent.ActiveChildren > 0 {
		parent.ActiveChildren--
	}
	if child, ok := t.budgets[childID]; ok {
		parent.UsedTokens += child.UsedTokens
		parent.UsedCost += child.UsedCost
	}
}

// Remove forgets a run's budget.
func (t *Tracker) Remove(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.budgets, runID)
}

// ExceededError reports a violated budget axis.
type ExceededError struct {
	RunID   string
	Axis    string
	Used    float64
	Limit   float64
	Verdict Verdict
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("budget exceeded for run %s: %s used %.0f of limit %.0f", e.RunID, e.Axis, e.Used, e.Limit)
}
