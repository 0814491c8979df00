// Package runtime assembles the agentcore subsystems from a loaded
// configuration: logging, metrics, tracing, the run graph, budgets, the
// extension manager, and per-session orchestrators.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/agentcore/internal/budget"
	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/internal/extensions"
	"github.com/haasonsaas/agentcore/internal/guardrails"
	"github.com/haasonsaas/agentcore/internal/lane"
	"github.com/haasonsaas/agentcore/internal/netguard"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/policy"
	"github.com/haasonsaas/agentcore/internal/rungraph"
	"github.com/haasonsaas/agentcore/internal/session"
	"github.com/haasonsaas/agentcore/internal/subagent"
	"github.com/haasonsaas/agentcore/internal/tools"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// Options configures a Runtime.
type Options struct {
	// Config supplies all settings. Nil uses config.Default().
	Config *config.Config

	// DriverFactory builds the model driver for each new session. Required
	// for NewSession and Coordinator.
	DriverFactory session.DriverFactory

	// Summarizer generates compaction and branch summaries. Optional;
	// without one, sessions skip auto-compaction and overflow recovery.
	Summarizer compaction.Summarizer

	// Registerer receives the metric collectors. Nil uses the default
	// prometheus registerer.
	Registerer prometheus.Registerer

	// Tracing configures the OTLP exporter. An empty endpoint leaves
	// tracing as a no-op.
	Tracing observability.TraceConfig

	// GraphStorePath is the sqlite file backing the run graph. Empty keeps
	// the graph in memory.
	GraphStorePath string
}

// Runtime holds the shared subsystems behind every session.
type Runtime struct {
	Config     *config.Config
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	Graph      *rungraph.Graph
	Budgets    *budget.Tracker
	Lanes      *lane.Queue
	Extensions *extensions.Manager
	Fetcher    *netguard.Fetcher
	Guard      *guardrails.Guard
	Subagents  *subagent.Registry
	Policy     policy.Policy

	driverFactory session.DriverFactory
	summarizer    compaction.Summarizer

	shutdownTracing func(context.Context) error
}

// New builds the runtime from opts. Extensions are loaded eagerly; load
// failures are reported per-extension through the tool registry, not here.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metrics := observability.NewMetrics(reg)

	shutdown, err := observability.SetupTracing(ctx, opts.Tracing)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	pol, err := cfg.ResolvedPolicy()
	if err != nil {
		return nil, err
	}

	graph, err := rungraph.New(rungraph.Options{
		StorePath: opts.GraphStorePath,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open run graph: %w", err)
	}

	manager := extensions.NewManager(cfg.Extensions.Dirs, logger)
	if len(cfg.Extensions.Dirs) > 0 {
		manager.Load()
	}

	return &Runtime{
		Config:          cfg,
		Logger:          logger,
		Metrics:         metrics,
		Graph:           graph,
		Budgets:         budget.NewTracker(),
		Lanes:           lane.NewQueue(),
		Extensions:      manager,
		Fetcher:         netguard.NewFetcher(cfg.Fetch.FetchOptions()),
		Guard:           guardrails.New(cfg.Guardrails),
		Subagents:       subagent.NewRegistry(),
		Policy:          pol,
		driverFactory:   opts.DriverFactory,
		summarizer:      opts.Summarizer,
		shutdownTracing: shutdown,
	}, nil
}

// Close releases the run graph and flushes pending trace spans.
func (r *Runtime) Close(ctx context.Context) error {
	r.Graph.Close()
	if r.shutdownTracing != nil {
		return r.shutdownTracing(ctx)
	}
	return nil
}

// SessionOptions overrides per-session settings; zero values fall back to the
// runtime config.
type SessionOptions struct {
	ID            string
	Workspace     string
	Provider      string
	Model         string
	ThinkingLevel models.ThinkingLevel

	ExplicitSystemPrompt string
	TemplateBody         string

	// Driver overrides the runtime's driver factory for this session.
	Driver session.Driver

	// Builtins are composed ahead of extension tools.
	Builtins []tools.Tool
}

// NewSession builds a session wired to the runtime's shared subsystems.
func (r *Runtime) NewSession(opts SessionOptions) (*session.Session, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	provider := opts.Provider
	if provider == "" {
		provider = r.Config.LLM.DefaultProvider
	}
	model := opts.Model
	if model == "" {
		model = r.defaultModel(provider)
	}
	workspace := opts.Workspace
	if workspace == "" {
		workspace = r.Config.Workspace
	}

	driver := opts.Driver
	if driver == nil {
		if r.driverFactory == nil {
			return nil, fmt.Errorf("no driver for session: factory not configured")
		}
		var err error
		driver, err = r.driverFactory(provider, model)
		if err != nil {
			return nil, fmt.Errorf("build driver for %s/%s: %w", provider, model, err)
		}
	}

	var logPath string
	if r.Config.Session.Dir != "" {
		logPath = filepath.Join(r.Config.Session.Dir, id+".jsonl")
	}

	sess, err := session.New(session.Options{
		ID:                   id,
		Workspace:            workspace,
		LogPath:              logPath,
		Provider:             provider,
		Model:                model,
		ThinkingLevel:        opts.ThinkingLevel,
		ExplicitSystemPrompt: opts.ExplicitSystemPrompt,
		TemplateBody:         opts.TemplateBody,
		Driver:               driver,
		Logger:               r.Logger,
		Compaction:           r.Config.Compaction,
		Summarizer:           r.summarizer,
		Telemetry:            r.Metrics,
		Extensions:           r.Extensions,
		Builtins:             opts.Builtins,
		Guard:                r.Guard,
	})
	if err != nil {
		return nil, err
	}
	sess.SubscribeDirect(r.recordSessionEvent(provider, model))
	return sess, nil
}

// recordSessionEvent feeds the run counters from one session's event stream.
// Token labels carry the session's starting provider and model; a mid-session
// model switch is not reflected.
func (r *Runtime) recordSessionEvent(provider, model string) func(models.Event) {
	return func(event models.Event) {
		switch event.Type {
		case models.EventAgentEnd:
			r.Metrics.RecordRunOutcome("completed")
			if event.Stats != nil {
				r.Metrics.RecordTokens(provider, model, event.Stats.InputTokens, event.Stats.OutputTokens)
			}
		case models.EventError:
			r.Metrics.RecordRunOutcome("error")
		case models.EventCanceled:
			r.Metrics.RecordRunOutcome("canceled")
		case models.EventToolExecutionEnd:
			if event.Tool != nil {
				r.Metrics.RecordToolExecution(event.Tool.Name, event.Tool.IsError, event.Tool.Elapsed)
			}
		case models.EventCompactionComplete:
			r.Metrics.RecordCompaction("session")
		}
	}
}

// defaultModel resolves the model for a provider: the provider's configured
// default, else the global default.
func (r *Runtime) defaultModel(provider string) string {
	if pc, ok := r.Config.LLM.Providers[provider]; ok && pc.DefaultModel != "" {
		return pc.DefaultModel
	}
	return r.Config.LLM.DefaultModel
}

// Coordinator builds a subagent coordinator whose children are sessions
// launched against the runtime's driver factory and shared subsystems.
func (r *Runtime) Coordinator(parentSessionID string, builtins []tools.Tool) *subagent.Coordinator {
	return subagent.NewCoordinator(subagent.Options{
		Launcher: &session.Launcher{
			Factory:         r.driverFactory,
			ParentSessionID: parentSessionID,
			Logger:          r.Logger,
			Summarizer:      r.summarizer,
			Compaction:      r.Config.Compaction,
			Builtins:        builtins,
		},
		Registry: r.Subagents,
		Graph:    r.Graph,
		Budgets:  r.Budgets,
		Lanes:    r.Lanes,
		Logger:   r.Logger,
	})
}

// SessionTools returns the session's composed registry with the effective
// policy applied: denied tools removed, approval-gated tools wrapped.
func (r *Runtime) SessionTools(sess *session.Session, approvals *tools.ApprovalManager, agentID string) *tools.Registry {
	reg := sess.Registry().FilterByPolicy(r.Policy)
	if approvals != nil {
		reg = reg.WrapApproval(r.Policy, approvals, sess.SessionID(), agentID)
	}
	return reg
}

// FetchTool exposes the SSRF-guarded fetcher as a builtin tool.
func (r *Runtime) FetchTool() tools.Tool {
	return &tools.FuncTool{
		ToolName:        "fetch",
		ToolDescription: "Fetch an http(s) URL with GET. Requests resolving to private networks are rejected.",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Absolute http(s) URL to fetch.",
				},
			},
			"required": []any{"url"},
		},
		Fn: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			rawURL, _ := args["url"].(string)
			if rawURL == "" {
				return tools.ErrorResult("url is required"), nil
			}
			res, err := r.Fetcher.Get(ctx, rawURL)
			if err != nil {
				return tools.ErrorResult("fetch failed: %v", err), nil
			}
			return &tools.Result{
				Content: string(res.Body),
				Details: map[string]any{
					"status_code": res.StatusCode,
					"final_url":   res.FinalURL,
					"redirects":   res.Redirects,
				},
			}, nil
		},
	}
}
