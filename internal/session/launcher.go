package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/internal/subagent"
	"github.com/haasonsaas/agentcore/internal/tools"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// DriverFactory builds a driver for a child session.
type DriverFactory func(provider, model string) (Driver, error)

// Launcher starts child sessions for subagent fan-out. It implements
// subagent.Launcher; the children it returns are full Session orchestrators.
type Launcher struct {
	// Factory is required.
	Factory DriverFactory

	// ParentSessionID links children to their parent in the session log.
	ParentSessionID string

	Logger     *slog.Logger
	Summarizer compaction.Summarizer
	Compaction compaction.Settings
	Builtins   []tools.Tool
}

// Launch builds a child session with the resolved settings. The child is
// subagent-scoped: its system prompt composition skips the parent's memory
// files.
func (l *Launcher) Launch(_ context.Context, opts subagent.LaunchOptions) (subagent.Child, error) {
	if l.Factory == nil {
		return nil, fmt.Errorf("no driver factory configured")
	}
	driver, err := l.Factory(opts.Provider, opts.Model)
	if err != nil {
		return nil, fmt.Errorf("create driver: %w", err)
	}
	sess, err := New(Options{
		ParentSession: l.ParentSessionID,
		Workspace:     opts.CWD,
		Provider:      opts.Provider,
		Model:         opts.Model,
		ThinkingLevel: opts.ThinkingLevel,
		Driver:        driver,
		Logger:        l.Logger,
		Compaction:    l.Compaction,
		Summarizer:    l.Summarizer,
		Builtins:      l.Builtins,
	})
	if err != nil {
		return nil, fmt.Errorf("create child session: %w", err)
	}
	return &childSession{sess: sess}, nil
}

// childSession adapts a Session to the subagent.Child interface.
type childSession struct {
	sess *Session
}

func (c *childSession) SessionID() string { return c.sess.SessionID() }

func (c *childSession) Prompt(ctx context.Context, text string) error {
	return c.sess.Prompt(ctx, text)
}

func (c *childSession) Subscribe(fn func(models.Event)) func() {
	return c.sess.SubscribeDirect(fn)
}

func (c *childSession) Abort() { c.sess.Abort() }

func (c *childSession) Stop() { c.sess.Close() }
