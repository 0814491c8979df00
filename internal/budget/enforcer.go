package budget

import (
	"fmt"
)

// Verdict is the enforcement outcome chosen when a budget is exceeded.
type Verdict string

const (
	VerdictCancel  Verdict = "cancel"
	VerdictCompact Verdict = "compact"
	VerdictNotify  Verdict = "notify"
	VerdictError   Verdict = "error"
)

// EnforcerPolicy selects the verdict per enforcement site.
type EnforcerPolicy struct {
	// OnTokensExceeded applies at the pre-API check. Default: compact.
	OnTokensExceeded Verdict

	// OnCostExceeded applies at the pre-API check. Default: cancel.
	OnCostExceeded Verdict

	// OnChildrenExceeded applies at subagent spawn. Default: error.
	OnChildrenExceeded Verdict
}

// DefaultEnforcerPolicy returns the standard verdicts.
func DefaultEnforcerPolicy() EnforcerPolicy {
	return EnforcerPolicy{
		OnTokensExceeded:   VerdictCompact,
		OnCostExceeded:     VerdictCancel,
		OnChildrenExceeded: VerdictError,
	}
}

// DefaultOpts seeds a run budget at run start when the caller provided no
// explicit limits.
type DefaultOpts = Opts

// Enforcer evaluates budgets at run start, pre-API, and subagent spawn.
type Enforcer struct {
	tracker *Tracker
	policy  EnforcerPolicy
}

// NewEnforcer creates an enforcer over the given tracker.
func NewEnforcer(tracker *Tracker, policy EnforcerPolicy) *Enforcer {
	return &Enforcer{tracker: tracker, policy: policy}
}

// Tracker exposes the underlying tracker.
func (e *Enforcer) Tracker() *Tracker { return e.tracker }

// RunStart seeds the default budget for a run, inheriting from parentID.
func (e *Enforcer) RunStart(runID string, defaults DefaultOpts, parentID string) *Budget {
	return e.tracker.Create(runID, defaults, parentID)
}

// Decision is the human-readable outcome of an enforcement check.
type Decision struct {
	Verdict Verdict
	Message string
}

// PreAPI rejects a model call when used + estimated would exceed a limit.
// A nil error means the call may proceed.
func (e *Enforcer) PreAPI(runID string, estimatedTokens int, estimatedCost float64) (*Decision, error) {
	b := e.tracker.Get(runID)
	if b == nil {
		return nil, nil
	}
	if b.MaxTokens != nil && b.UsedTokens+estimatedTokens > *b.MaxTokens {
		d := &Decision{
			Verdict: e.policy.OnTokensExceeded,
			Message: fmt.Sprintf("token budget exhausted: %d used + %d estimated exceeds limit %d", b.UsedTokens, estimatedTokens, *b.MaxTokens),
		}
		return d, &ExceededError{RunID: runID, Axis: "tokens", Used: float64(b.UsedTokens + estimatedTokens), Limit: float64(*b.MaxTokens), Verdict: d.Verdict}
	}
	if b.MaxCost != nil && b.UsedCost+estimatedCost > *b.MaxCost {
		d := &Decision{
			Verdict: e.policy.OnCostExceeded,
			Message: fmt.Sprintf("cost budget exhausted: %.4f used + %.4f estimated exceeds limit %.4f", b.UsedCost, estimatedCost, *b.MaxCost),
		}
		return d, &ExceededError{RunID: runID, Axis: "cost", Used: b.UsedCost + estimatedCost, Limit: *b.MaxCost, Verdict: d.Verdict}
	}
	return nil, nil
}

// SpawnChild rejects a subagent spawn when the parent is at its child cap or
// its own budget is exhausted.
func (e *Enforcer) SpawnChild(parentID string) (*Decision, error) {
	b := e.tracker.Get(parentID)
	if b == nil {
		return nil, nil
	}
	if b.MaxChildren != nil && b.ActiveChildren >= *b.MaxChildren {
		d := &Decision{
			Verdict: e.policy.OnChildrenExceeded,
			Message: fmt.Sprintf("subagent limit reached: %d of %d children active", b.ActiveChildren, *b.MaxChildren),
		}
		return d, &ExceededError{RunID: parentID, Axis: "children", Used: float64(b.ActiveChildren), Limit: float64(*b.MaxChildren), Verdict: d.Verdict}
	}
	if b.MaxTokens != nil && b.UsedTokens >= *b.MaxTokens {
		d := &Decision{
			Verdict: e.policy.OnTokensExceeded,
			Message: fmt.Sprintf("parent token budget exhausted: %d of %d used", b.UsedTokens, *b.MaxTokens),
		}
		return d, &ExceededError{RunID: parentID, Axis: "tokens", Used: float64(b.UsedTokens), Limit: float64(*b.MaxTokens), Verdict: d.Verdict}
	}
	if b.MaxCost != nil && b.UsedCost >= *b.MaxCost {
		d := &Decision{
			Verdict: e.policy.OnCostExceeded,
			Message: fmt.Sprintf("parent cost budget exhausted: %.4f of %.4f used", b.UsedCost, *b.MaxCost),
		}
		return d, &ExceededError{RunID: parentID, Axis: "cost", Used: b.UsedCost, Limit: *b.MaxCost, Verdict: d.Verdict}
	}
	return nil, nil
}

// IntLimit is a convenience for building limit pointers.
func IntLimit(v int) *int { return &v }

// CostLimit is a convenience for building cost limit pointers.
func CostLimit(v float64) *float64 { return &v }
