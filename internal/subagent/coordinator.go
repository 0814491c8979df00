package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/agentcore/internal/budget"
	"github.com/haasonsaas/agentcore/internal/lane"
	"github.com/haasonsaas/agentcore/internal/rungraph"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// DefaultTimeout bounds a fan-out when the caller passes none.
const DefaultTimeout = 10 * time.Minute

var tracer = otel.Tracer("agentcore/subagent")

// Status is the outcome of one child run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusAborted   Status = "aborted"
)

// Spec describes one child run to launch.
type Spec struct {
	// AgentName optionally references a registered named subagent whose
	// prompt prefix and model overrides apply.
	AgentName string `json:"agent_name,omitempty"`

	// Prompt is the task text sent to the child.
	Prompt string `json:"prompt"`

	// Model and ThinkingLevel override both the parent's and the named
	// definition's values when set.
	Model         string               `json:"model,omitempty"`
	ThinkingLevel models.ThinkingLevel `json:"thinking_level,omitempty"`
}

// Result is the outcome of one child run, in the order its spec was given.
type Result struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// LaunchOptions carries the inherited and resolved settings for one child.
type LaunchOptions struct {
	RunID         string
	ParentRunID   string
	PromptPrefix  string
	CWD           string
	Provider      string
	Model         string
	ThinkingLevel models.ThinkingLevel
}

// Child is a started child session. Implemented by the session orchestrator.
type Child interface {
	SessionID() string
	Prompt(ctx context.Context, text string) error
	// Subscribe registers fn for every session event; the returned func
	// unsubscribes.
	Subscribe(fn func(models.Event)) func()
	Abort()
	Stop()
}

// Launcher starts child sessions. Implemented by the session orchestrator.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Child, error)
}

// Inherited are the parent session settings children start from.
type Inherited struct {
	CWD           string
	Provider      string
	Model         string
	ThinkingLevel models.ThinkingLevel
}

// Options configures a Coordinator. Registry, Graph, Budgets, and Lanes are
// optional collaborators.
type Options struct {
	Launcher Launcher
	Registry *Registry
	Graph    *rungraph.Graph
	Budgets  *budget.Tracker

	// Lanes, when set, funnels child launches through the subagent lane so
	// concurrent fan-outs from multiple sessions queue instead of stampeding
	// the launcher.
	Lanes *lane.Queue

	Logger *slog.Logger
}

// Coordinator spawns child sessions for specs, monitors each, and collects
// results in submission order within a shared deadline.
type Coordinator struct {
	launcher Launcher
	registry *Registry
	graph    *rungraph.Graph
	budgets  *budget.Tracker
	lanes    *lane.Queue
	logger   *slog.Logger
}

// NewCoordinator builds a coordinator. Launcher is required.
func NewCoordinator(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		launcher: opts.Launcher,
		registry: opts.Registry,
		graph:    opts.Graph,
		budgets:  opts.Budgets,
		lanes:    opts.Lanes,
		logger:   logger,
	}
}

// child tracks one launched spec during a fan-out.
type child struct {
	index   int
	runID   string
	session Child
	cancel  func()
	done    bool
}

// childEvent routes a session event back to the wait loop.
type childEvent struct {
	index int
	event models.Event
}

// RunSubagents launches one child per spec, sends each its prompt, and waits
// for all to finish within timeout. Pending children are marked timeout and
// aborted at the deadline; results come back in spec order.
func (c *Coordinator) RunSubagents(ctx context.Context, parentRunID string, inherited Inherited, specs []Spec, timeout time.Duration) []Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, span := tracer.Start(ctx, "subagent.fan_out")
	span.SetAttributes(attribute.Int("subagent.count", len(specs)))
	defer span.End()

	results := make([]Result, len(specs))
	children := make([]*child, len(specs))
	events := make(chan childEvent, len(specs)*16)

	defer c.cleanup(children)

	pending := 0
	for i, spec := range specs {
		id := uuid.NewString()
		results[i] = Result{ID: id, Status: StatusError}

		opts, err := c.resolveLaunch(id, parentRunID, inherited, spec)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		c.trackRun(id, parentRunID)

		session, err := c.launch(ctx, opts)
		if err != nil {
			results[i].Error = fmt.Sprintf("launch failed: %v", err)
			c.cancelRun(id)
			continue
		}
		idx := i
		cancel := session.Subscribe(func(event models.Event) {
			select {
			case events <- childEvent{index: idx, event: event}:
			default:
			}
		})
		children[i] = &child{index: i, runID: id, session: session, cancel: cancel}
		results[i].SessionID = session.SessionID()

		prompt := spec.Prompt
		if opts.PromptPrefix != "" {
			prompt = opts.PromptPrefix + "\n\n" + prompt
		}
		if err := session.Prompt(ctx, prompt); err != nil {
			results[i].Error = fmt.Sprintf("prompt failed: %v", err)
			c.cancelRun(id)
			children[i].done = true
			continue
		}
		c.markRunning(id)
		pending++
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for pending > 0 {
		select {
		case ce := <-events:
			entry := children[ce.index]
			if entry == nil || entry.done {
				continue
			}
			switch ce.event.Type {
			case models.EventAgentEnd:
				results[ce.index].Status = StatusCompleted
				results[ce.index].Result = finalAssistantText(ce.event.Messages)
				results[ce.index].Error = ""
				c.finishRun(entry.runID, results[ce.index].Result)
				entry.done = true
				pending--
			case models.EventError:
				results[ce.index].Status = StatusError
				results[ce.index].Error = ce.event.Error
				c.failRun(entry.runID, ce.event.Error)
				entry.done = true
				pending--
			case models.EventCanceled:
				results[ce.index].Status = StatusAborted
				results[ce.index].Error = string(ce.event.Reason)
				c.cancelRun(entry.runID)
				entry.done = true
				pending--
			}
		case <-deadline.C:
			c.expirePending(children, results, StatusTimeout, "deadline exceeded")
			return results
		case <-ctx.Done():
			c.expirePending(children, results, StatusAborted, ctx.Err().Error())
			return results
		}
	}
	return results
}

// launch starts a child, going through the shared subagent lane when one is
// configured. The lane supervises the launcher call, so a panicking launcher
// surfaces as a launch error instead of taking the fan-out down.
func (c *Coordinator) launch(ctx context.Context, opts LaunchOptions) (Child, error) {
	if c.lanes == nil {
		return c.launcher.Launch(ctx, opts)
	}
	return lane.Enqueue(c.lanes, lane.LaneSubagent, func(context.Context) (Child, error) {
		return c.launcher.Launch(ctx, opts)
	}, &lane.EnqueueOptions{Context: ctx})
}

// resolveLaunch merges the named definition (if any), the inherited parent
// settings, and the spec's own overrides.
func (c *Coordinator) resolveLaunch(id, parentRunID string, inherited Inherited, spec Spec) (LaunchOptions, error) {
	opts := LaunchOptions{
		RunID:         id,
		ParentRunID:   parentRunID,
		CWD:           inherited.CWD,
		Provider:      inherited.Provider,
		Model:         inherited.Model,
		ThinkingLevel: inherited.ThinkingLevel,
	}
	if spec.AgentName != "" {
		if c.registry == nil {
			return opts, fmt.Errorf("unknown subagent %q: no registry configured", spec.AgentName)
		}
		def, ok := c.registry.Resolve(spec.AgentName)
		if !ok {
			return opts, fmt.Errorf("unknown subagent %q", spec.AgentName)
		}
		opts.PromptPrefix = def.PromptPrefix
		if def.Provider != "" {
			opts.Provider = def.Provider
		}
		if def.Model != "" {
			opts.Model = def.Model
		}
		if def.ThinkingLevel != "" {
			opts.ThinkingLevel = def.ThinkingLevel
		}
	}
	if spec.Model != "" {
		opts.Model = spec.Model
	}
	if spec.ThinkingLevel != "" {
		opts.ThinkingLevel = spec.ThinkingLevel
	}
	return opts, nil
}

// expirePending marks every unfinished child with status, aborts it, and
// records the run outcome.
func (c *Coordinator) expirePending(children []*child, results []Result, status Status, reason string) {
	for _, entry := range children {
		if entry == nil || entry.done {
			continue
		}
		results[entry.index].Status = status
		results[entry.index].Error = reason
		entry.session.Abort()
		if status == StatusTimeout {
			c.killRun(entry.runID)
		} else {
			c.cancelRun(entry.runID)
		}
		entry.done = true
	}
}

// cleanup unsubscribes and stops every tracked child.
func (c *Coordinator) cleanup(children []*child) {
	for _, entry := range children {
		if entry == nil {
			continue
		}
		entry.cancel()
		entry.session.Stop()
	}
}

func finalAssistantText(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant {
			return messages[i].Text()
		}
	}
	return ""
}

// --- run graph and budget bookkeeping; all optional collaborators ---

func (c *Coordinator) trackRun(id, parentID string) {
	if c.graph != nil {
		if _, err := c.graph.NewRun(rungraph.Attrs{ID: id, Parent: parentID}); err != nil {
			c.logger.Warn("subagent run registration failed", "run_id", id, "error", err)
		}
	}
	if c.budgets != nil && parentID != "" {
		c.budgets.ChildStarted(parentID, id)
	}
}

func (c *Coordinator) markRunning(id string) {
	if c.graph == nil {
		return
	}
	if err := c.graph.MarkRunning(id); err != nil {
		c.logger.Warn("subagent run transition failed", "run_id", id, "error", err)
	}
}

func (c *Coordinator) finishRun(id, result string) {
	if c.graph != nil {
		_ = c.graph.Finish(id, result)
	}
	c.settleBudget(id)
}

func (c *Coordinator) failRun(id, errMsg string) {
	if c.graph != nil {
		_ = c.graph.Fail(id, errMsg)
	}
	c.settleBudget(id)
}

func (c *Coordinator) cancelRun(id string) {
	if c.graph != nil {
		_ = c.graph.Cancel(id)
	}
	c.settleBudget(id)
}

func (c *Coordinator) killRun(id string) {
	if c.graph != nil {
		_ = c.graph.Kill(id)
	}
	c.settleBudget(id)
}

func (c *Coordinator) settleBudget(id string) {
	if c.budgets == nil || c.graph == nil {
		return
	}
	record := c.graph.Get(id)
	if record == nil || record.Parent == "" {
		return
	}
	c.budgets.ChildCompleted(record.Parent, id)
}
