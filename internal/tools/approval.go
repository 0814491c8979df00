package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/agentcore/internal/policy"
)

var (
	ErrApprovalDenied  = errors.New("approval denied")
	ErrApprovalExpired = errors.New("approval expired")
)

// ApprovalRequest describes one pending tool execution awaiting a decision.
type ApprovalRequest struct {
	ToolName    string
	Args        map[string]any
	SessionID   string
	AgentID     string
	RequestedAt time.Time
}

// Prompter obtains an approval decision, typically by asking the user.
// Returning false denies the execution; reason is surfaced to the model.
type Prompter func(ctx context.Context, req ApprovalRequest) (approved bool, reason string, err error)

// approvalKey scopes persisted decisions to one session+agent pair.
type approvalKey struct {
	session string
	agent   string
}

// ApprovalManager persists approval decisions per session+agent so a tool
// approved once does not prompt again within the same scope.
type ApprovalManager struct {
	mu        sync.Mutex
	prompt    Prompter
	decisions map[approvalKey]map[string]bool
}

// NewApprovalManager creates a manager using prompt for undecided tools.
// A nil prompt denies everything that requires approval.
func NewApprovalManager(prompt Prompter) *ApprovalManager {
	return &ApprovalManager{
		prompt:    prompt,
		decisions: make(map[approvalKey]map[string]bool),
	}
}

// Decide returns the persisted decision for the tool, prompting if none
// exists yet. The decision is persisted either way.
func (m *ApprovalManager) Decide(ctx context.Context, req ApprovalRequest) (bool, string, error) {
	key := approvalKey{session: req.SessionID, agent: req.AgentID}

	m.mu.Lock()
	if decided, ok := m.decisions[key][req.ToolName]; ok {
		m.mu.Unlock()
		if decided {
			return true, "", nil
		}
		return false, "previously denied", nil
	}
	prompt := m.prompt
	m.mu.Unlock()

	if prompt == nil {
		m.record(key, req.ToolName, false)
		return false, "no approver configured", nil
	}
	approved, reason, err := prompt(ctx, req)
	if err != nil {
		return false, "", err
	}
	m.record(key, req.ToolName, approved)
	return approved, reason, nil
}

func (m *ApprovalManager) record(key approvalKey, toolName string, approved bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decisions[key] == nil {
		m.decisions[key] = make(map[string]bool)
	}
	m.decisions[key][toolName] = approved
}

// Reset clears persisted decisions for one session+agent scope.
func (m *ApprovalManager) Reset(sessionID, agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.decisions, approvalKey{session: sessionID, agent: agentID})
}

// approvalTool wraps a tool so Execute consults the approval manager first.
type approvalTool struct {
	Tool
	manager   *ApprovalManager
	sessionID string
	agentID   string
}

func (t *approvalTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	approved, reason, err := t.manager.Decide(ctx, ApprovalRequest{
		ToolName:    t.Name(),
		Args:        args,
		SessionID:   t.sessionID,
		AgentID:     t.agentID,
		RequestedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("approval for %s: %w", t.Name(), err)
	}
	if !approved {
		if reason == "" {
			reason = "denied"
		}
		return ErrorResult("tool %s not executed: approval %s", t.Name(), reason), nil
	}
	return t.Tool.Execute(ctx, args)
}

// WrapApproval returns a registry where tools the policy gates behind
// approval consult the manager on execute. Other tools pass through.
func (r *Registry) WrapApproval(pol policy.Policy, manager *ApprovalManager, sessionID, agentID string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := NewRegistry()
	for _, name := range r.order {
		tool := r.tools[name]
		if pol.NeedsApproval(name) && manager != nil {
			tool = &approvalTool{
				Tool:      tool,
				manager:   manager,
				sessionID: sessionID,
				agentID:   agentID,
			}
		}
		out.tools[name] = tool
		out.order = append(out.order, name)
	}
	return out
}
