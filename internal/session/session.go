package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/internal/extensions"
	"github.com/haasonsaas/agentcore/internal/guardrails"
	"github.com/haasonsaas/agentcore/internal/sessionlog"
	"github.com/haasonsaas/agentcore/internal/tools"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// promptDelay is the deferred dispatch window: callers get this long to
// subscribe or race a steer/follow_up in before the prompt is sent.
const promptDelay = 10 * time.Millisecond

// resetIdleTimeout bounds how long Reset waits for the driver to go idle.
const resetIdleTimeout = 5 * time.Second

var tracer = otel.Tracer("agentcore/session")

// Options configures a Session. Driver is required.
type Options struct {
	ID            string
	ParentSession string
	Workspace     string
	LogPath       string

	Provider      string
	Model         string
	ThinkingLevel models.ThinkingLevel

	ExplicitSystemPrompt string
	TemplateBody         string

	Driver     Driver
	Logger     *slog.Logger
	Compaction compaction.Settings
	Summarizer compaction.Summarizer

	// RecoveryTimeout bounds one overflow auto-recovery; zero means the
	// compaction default.
	RecoveryTimeout time.Duration
	Telemetry       compaction.Telemetry

	Extensions *extensions.Manager
	Builtins   []tools.Tool

	// Guard, when set, transforms rebuilt message lists before they reach
	// the driver.
	Guard *guardrails.Guard
}

// Session is the orchestrator actor for one conversation. All state below
// the command channel is owned by the actor goroutine; public methods post
// commands and wait for replies.
type Session struct {
	id     string
	opts   Options
	driver Driver
	logger *slog.Logger

	cmds   chan func()
	closed chan struct{}

	// Actor-owned state.
	log           *sessionlog.Log
	streaming     bool
	turn          int
	pendingPrompt *models.Message
	promptTimer   *time.Timer
	provider      string
	model         string
	thinkingLevel models.ThinkingLevel
	seq           uint64

	nextSubID  int
	directSubs map[int]func(models.Event)
	subOrder   []int
	streams    map[int]*Stream

	runMessages []models.Message
	runStart    time.Time
	stats       models.RunStats
	heldError   *models.Event

	recovery       *compaction.Recovery
	autoCompacting map[compaction.Signature]bool
	registry       *tools.Registry
}

// New creates a session around driver and starts its actor goroutine.
func New(opts Options) (*Session, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		id:             id,
		opts:           opts,
		driver:         opts.Driver,
		logger:         logger.With("session_id", id),
		cmds:           make(chan func(), 64),
		closed:         make(chan struct{}),
		log:            sessionlog.New(opts.Workspace, id, opts.ParentSession),
		provider:       opts.Provider,
		model:          opts.Model,
		thinkingLevel:  opts.ThinkingLevel,
		directSubs:     make(map[int]func(models.Event)),
		streams:        make(map[int]*Stream),
		recovery:       compaction.NewRecovery(opts.RecoveryTimeout, opts.Telemetry),
		autoCompacting: make(map[compaction.Signature]bool),
	}
	if s.thinkingLevel == "" {
		s.thinkingLevel = models.ThinkingOff
	}
	s.rebuildTools()
	go s.loop()
	return s, nil
}

// SessionID returns the session's id.
func (s *Session) SessionID() string { return s.id }

// Close stops the actor. Pending commands fail with ErrSessionClosed.
func (s *Session) Close() {
	select {
	case <-s.closed:
		return
	default:
	}
	// Post the close through the mailbox so in-flight commands finish first.
	select {
	case s.cmds <- func() { close(s.closed) }:
	case <-s.closed:
	}
}

// loop is the actor: one command or driver event at a time.
func (s *Session) loop() {
	events := s.driver.Events()
	for {
		select {
		case cmd := <-s.cmds:
			cmd()
			select {
			case <-s.closed:
				return
			default:
			}
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleDriverEvent(event)
		case <-s.closed:
			return
		}
	}
}

// call runs fn on the actor goroutine and returns its error.
func (s *Session) call(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- func() { reply <- fn() }:
	case <-s.closed:
		return ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.closed:
		return ErrSessionClosed
	}
}

// post schedules fn on the actor goroutine without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.closed:
	}
}

// Prompt accepts a user message and defers dispatch by promptDelay.
func (s *Session) Prompt(ctx context.Context, text string, images ...models.ImageBlock) error {
	return s.call(func() error {
		if s.streaming || s.pendingPrompt != nil {
			return ErrAlreadyStreaming
		}
		msg := models.NewUserMessage(text, images...)
		s.pendingPrompt = &msg
		s.promptTimer = time.AfterFunc(promptDelay, func() {
			s.post(s.dispatchPrompt)
		})
		return nil
	})
}

// dispatchPrompt sends the deferred prompt to the driver. Runs on the actor.
func (s *Session) dispatchPrompt() {
	if s.pendingPrompt == nil {
		return
	}
	msg := *s.pendingPrompt
	s.pendingPrompt = nil
	s.promptTimer = nil

	s.streaming = true
	s.turn++
	s.runMessages = nil
	s.runStart = time.Now()
	s.stats = models.RunStats{}
	s.recovery.Reset()

	s.driver.SetSystemPrompt(s.composePrompt())

	s.persistMessage(msg)

	ctx, span := tracer.Start(context.Background(), "session.prompt")
	defer span.End()
	if err := s.driver.Prompt(ctx, msg); err != nil {
		s.streaming = false
		s.emit(models.Event{Type: models.EventError, Error: err.Error()})
	}
}

func (s *Session) composePrompt() string {
	scope := ScopeMain
	if s.opts.ParentSession != "" {
		scope = ScopeSubagent
	}
	return ComposeSystemPrompt(PromptConfig{
		ExplicitSystemPrompt: s.opts.ExplicitSystemPrompt,
		TemplateBody:         s.opts.TemplateBody,
		Workspace:            s.opts.Workspace,
		Scope:                scope,
	})
}

// Steer forwards a mid-run steering message to the driver.
func (s *Session) Steer(ctx context.Context, text string) error {
	return s.call(func() error {
		msg := models.NewUserMessage(text)
		return s.driver.Steer(ctx, msg)
	})
}

// FollowUp queues a message for delivery once the run goes idle.
func (s *Session) FollowUp(ctx context.Context, text string) error {
	return s.call(func() error {
		msg := models.NewUserMessage(text)
		return s.driver.FollowUp(ctx, msg)
	})
}

// Abort cancels the deferred prompt and signals the driver. When no run was
// active but a prompt was pending, a terminal canceled event is emitted.
func (s *Session) Abort() {
	_ = s.call(func() error {
		hadPending := s.cancelDeferredPrompt()
		if s.streaming {
			s.driver.Abort()
			return nil
		}
		if hadPending {
			s.emit(models.Event{Type: models.EventCanceled, Reason: models.CancelAssistantAborted})
		}
		return nil
	})
}

// Reset cancels any run and restores a fresh driver state.
func (s *Session) Reset() {
	_ = s.call(func() error {
		s.cancelDeferredPrompt()
		if s.streaming {
			s.emit(models.Event{Type: models.EventCanceled, Reason: models.CancelReset})
			s.driver.Abort()
			ctx, cancel := context.WithTimeout(context.Background(), resetIdleTimeout)
			if err := s.driver.WaitForIdle(ctx); err != nil {
				s.logger.Warn("driver did not go idle before reset", "error", err)
			}
			cancel()
			s.flushDriverEvents()
			s.streaming = false
		}
		s.driver.Reset()
		s.heldError = nil
		s.runMessages = nil
		s.recovery.Reset()
		return nil
	})
}

func (s *Session) cancelDeferredPrompt() bool {
	if s.pendingPrompt == nil {
		return false
	}
	if s.promptTimer != nil {
		s.promptTimer.Stop()
		s.promptTimer = nil
	}
	s.pendingPrompt = nil
	return true
}

// flushDriverEvents drains queued driver events without forwarding them.
func (s *Session) flushDriverEvents() {
	for {
		select {
		case _, ok := <-s.driver.Events():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// SubscribeDirect registers fn for every event in mailbox order. The
// returned func unsubscribes.
func (s *Session) SubscribeDirect(fn func(models.Event)) func() {
	var id int
	_ = s.call(func() error {
		id = s.nextSubID
		s.nextSubID++
		s.directSubs[id] = fn
		s.subOrder = append(s.subOrder, id)
		return nil
	})
	return func() {
		s.post(func() {
			delete(s.directSubs, id)
		})
	}
}

// SubscribeStream opens a bounded-queue stream subscription.
func (s *Session) SubscribeStream(opts StreamOptions) *Stream {
	stream := newStream(opts)
	_ = s.call(func() error {
		id := s.nextSubID
		s.nextSubID++
		s.streams[id] = stream
		return nil
	})
	return stream
}

// SwitchModel updates the driver and records a model-change entry.
func (s *Session) SwitchModel(provider, model string) error {
	return s.call(func() error {
		s.provider = provider
		s.model = model
		s.driver.SetModel(provider, model)
		_, err := s.log.Append(sessionlog.Entry{
			Type:        sessionlog.EntryModelChange,
			ModelChange: &sessionlog.ModelChange{Provider: provider, ModelID: model},
		})
		if err != nil {
			return err
		}
		s.saveLog()
		return nil
	})
}

// SetThinkingLevel updates the driver and records a change entry.
func (s *Session) SetThinkingLevel(level models.ThinkingLevel) error {
	return s.call(func() error {
		if !models.ValidThinkingLevel(level) {
			return fmt.Errorf("invalid thinking level %q", level)
		}
		s.thinkingLevel = level
		s.driver.SetThinkingLevel(level)
		_, err := s.log.Append(sessionlog.Entry{
			Type:          sessionlog.EntryThinkingLevelChange,
			ThinkingLevel: level,
		})
		if err != nil {
			return err
		}
		s.saveLog()
		return nil
	})
}

// NavigateTree moves the leaf to entryID and rebuilds the driver context.
// When leaving the current branch with summarizeAbandoned set, a branch
// summary for the abandoned path is generated asynchronously.
func (s *Session) NavigateTree(entryID string, summarizeAbandoned bool) error {
	return s.call(func() error {
		oldLeaf := s.log.LeafID()
		oldBranch, _ := s.log.Branch(oldLeaf)

		if err := s.log.SetLeaf(entryID); err != nil {
			return ErrEntryNotFound
		}
		rebuilt, err := s.log.BuildContext(entryID)
		if err != nil {
			return err
		}
		s.replaceDriverMessages(rebuilt.Messages)
		s.saveLog()

		if summarizeAbandoned && oldLeaf != "" && s.branchSwitched(oldBranch, entryID) {
			s.summarizeAbandonedAsync(oldLeaf, oldBranch)
		}
		return nil
	})
}

// branchSwitched reports whether moving to target left the old branch
// entirely (rather than moving up or down within it).
func (s *Session) branchSwitched(oldBranch []*sessionlog.Entry, target string) bool {
	for _, entry := range oldBranch {
		if entry.ID == target {
			return false
		}
	}
	newBranch, err := s.log.Branch(target)
	if err != nil {
		return true
	}
	for _, entry := range newBranch {
		if len(oldBranch) > 0 && entry.ID == oldBranch[len(oldBranch)-1].ID {
			return false
		}
	}
	return true
}

// ReloadExtensions re-discovers extensions and swaps the rebuilt tool set
// into the driver.
func (s *Session) ReloadExtensions() error {
	return s.call(func() error {
		if s.streaming {
			return ErrAlreadyStreaming
		}
		report := s.rebuildTools()
		s.emit(models.Event{Type: models.EventExtensionStatusReport, Report: report})
		return nil
	})
}

// rebuildTools composes the registry from builtins and extension tools and
// pushes it into the driver. Returns the conflict report.
func (s *Session) rebuildTools() *tools.ConflictReport {
	var extTools []tools.ExtensionTools
	var loadFailures []tools.LoadFailure
	if s.opts.Extensions != nil {
		s.opts.Extensions.Reload()
		extTools = s.opts.Extensions.ExtensionTools()
		loadFailures = s.opts.Extensions.LoadFailures()
	}
	registry, report := tools.Compose(s.opts.Builtins, extTools, loadFailures)
	s.registry = registry
	if s.driver != nil {
		s.driver.SetTools(registry.All())
	}
	return report
}

// Registry returns the current composed tool registry.
func (s *Session) Registry() *tools.Registry {
	var reg *tools.Registry
	_ = s.call(func() error {
		reg = s.registry
		return nil
	})
	return reg
}

// RunStats returns the stats of the current or last run.
func (s *Session) RunStats() models.RunStats {
	var stats models.RunStats
	_ = s.call(func() error {
		stats = s.stats
		return nil
	})
	return stats
}

// LeafID returns the session log's current leaf.
func (s *Session) LeafID() string {
	var leaf string
	_ = s.call(func() error {
		leaf = s.log.LeafID()
		return nil
	})
	return leaf
}

// Entries returns a snapshot of all session log entries.
func (s *Session) Entries() []*sessionlog.Entry {
	var entries []*sessionlog.Entry
	_ = s.call(func() error {
		entries = s.log.Entries()
		return nil
	})
	return entries
}

// handleDriverEvent persists observed messages, updates stats, applies
// terminal semantics, and forwards the event. Runs on the actor.
func (s *Session) handleDriverEvent(event models.Event) {
	switch event.Type {
	case models.EventAgentStart:
		s.streaming = true
	case models.EventMessageEnd:
		if event.Message != nil {
			s.persistMessage(*event.Message)
			s.runMessages = append(s.runMessages, *event.Message)
			s.accumulateStats(event.Message)
		}
	case models.EventTurnEnd:
		s.stats.Turns++
		s.maybeAutoCompact()
	case models.EventToolExecutionEnd:
		s.stats.ToolCalls++
		if event.Tool != nil && event.Tool.IsError {
			s.stats.Errors++
		}
	case models.EventAgentEnd:
		s.streaming = false
		s.stats.WallTime = time.Since(s.runStart)
		if event.Messages == nil {
			event.Messages = append([]models.Message(nil), s.runMessages...)
		}
		stats := s.stats
		event.Stats = &stats
	case models.EventCanceled:
		s.streaming = false
		if event.Messages == nil {
			event.Messages = append([]models.Message(nil), s.runMessages...)
		}
	case models.EventError:
		if s.tryOverflowRecovery(&event) {
			return
		}
		s.streaming = false
		if event.Partial == nil {
			event.Partial = append([]models.Message(nil), s.runMessages...)
		}
	}
	s.emit(event)
}

// persistMessage appends a message entry to the branching log and saves it.
// Persistence happens before the event is forwarded to subscribers.
func (s *Session) persistMessage(msg models.Message) {
	switch msg.Role {
	case models.RoleUser, models.RoleAssistant, models.RoleToolResult, models.RoleBashExecution:
	default:
		return
	}
	if _, err := s.log.Append(sessionlog.Entry{Type: sessionlog.EntryMessage, Message: &msg}); err != nil {
		s.logger.Error("failed to persist message", "role", msg.Role, "error", err)
		return
	}
	s.saveLog()
}

// replaceDriverMessages swaps the driver context, applying guardrails when
// configured.
func (s *Session) replaceDriverMessages(messages []models.Message) {
	if s.opts.Guard != nil {
		messages = s.opts.Guard.Apply(messages)
	}
	s.driver.ReplaceMessages(messages)
}

func (s *Session) saveLog() {
	if s.opts.LogPath == "" {
		return
	}
	if err := s.log.Save(s.opts.LogPath); err != nil {
		s.logger.Error("failed to save session log", "path", s.opts.LogPath, "error", err)
	}
}

func (s *Session) accumulateStats(msg *models.Message) {
	if msg.Role != models.RoleAssistant || msg.Usage == nil {
		return
	}
	s.stats.InputTokens += msg.Usage.Input
	s.stats.OutputTokens += msg.Usage.Output
}

// emit stamps and forwards an event to all subscribers. Runs on the actor.
func (s *Session) emit(event models.Event) {
	s.seq++
	event.Sequence = s.seq
	event.SessionID = s.id
	event.TurnIndex = s.turn
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	for _, id := range s.subOrder {
		if fn, ok := s.directSubs[id]; ok {
			fn(event)
		}
	}

	terminal := event.Terminal()
	for id, stream := range s.streams {
		if terminal {
			stream.finish(event)
			delete(s.streams, id)
			continue
		}
		stream.push(event)
	}
}
