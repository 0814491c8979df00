package session

import (
	"context"
	"errors"

	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/internal/sessionlog"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// ErrNoSummarizer is returned when a compaction needs a generated summary but
// no summarizer is configured.
var ErrNoSummarizer = errors.New("no summarizer configured")

// CompactOptions configures a manual compaction.
type CompactOptions struct {
	// Force accepts degraded cut-points instead of failing.
	Force bool

	// Summary, when non-empty, is used verbatim instead of generating one.
	Summary string

	// CustomInstructions are appended to the summary generation prompt.
	CustomInstructions string
}

// Compact runs a compaction of the current branch in-band: the actor is held
// for the duration, so no run can start mid-compaction. Returns
// compaction.ErrCannotCompact when no valid cut-point exists and Force is
// unset.
func (s *Session) Compact(ctx context.Context, opts CompactOptions) error {
	return s.call(func() error {
		if s.streaming {
			return ErrAlreadyStreaming
		}
		return s.doCompact(ctx, opts)
	})
}

// doCompact performs one compaction of the current branch. Runs on the actor.
func (s *Session) doCompact(ctx context.Context, opts CompactOptions) error {
	branch, err := s.log.Branch("")
	if err != nil {
		return err
	}
	cutID, err := compaction.FindCutPoint(branch, s.opts.Compaction, opts.Force)
	if err != nil {
		return err
	}

	pre := preCutMessages(branch, cutID)
	tokensBefore := 0
	for _, entry := range branch {
		tokensBefore += compaction.EstimateEntryTokens(entry)
	}

	if opts.Summary == "" && s.opts.Summarizer == nil {
		return ErrNoSummarizer
	}
	summary, err := compaction.Summarize(ctx, s.opts.Summarizer, compaction.Request{
		Messages:           pre,
		Summary:            opts.Summary,
		CustomInstructions: opts.CustomInstructions,
	})
	if err != nil {
		return err
	}

	var details map[string]any
	if ops := compaction.ExtractFileOps(pre); ops != nil {
		details = map[string]any{"file_operations": ops}
	}
	return s.applyCompaction(cutID, summary, tokensBefore, details)
}

// applyCompaction appends the compaction entry, rebuilds the driver context,
// and emits compaction_complete. Runs on the actor.
func (s *Session) applyCompaction(cutID, summary string, tokensBefore int, details map[string]any) error {
	if _, err := s.log.Append(sessionlog.Entry{
		Type: sessionlog.EntryCompaction,
		Compaction: &sessionlog.Compaction{
			Summary:          summary,
			FirstKeptEntryID: cutID,
			TokensBefore:     tokensBefore,
			Details:          details,
		},
	}); err != nil {
		return err
	}
	rebuilt, err := s.log.BuildContext(s.log.LeafID())
	if err != nil {
		return err
	}
	s.replaceDriverMessages(rebuilt.Messages)
	s.saveLog()

	s.emit(models.Event{
		Type: models.EventCompactionComplete,
		Compaction: &models.CompactionEventPayload{
			Summary:          summary,
			FirstKeptEntryID: cutID,
			TokensBefore:     tokensBefore,
			Details:          details,
		},
	})
	return nil
}

// preCutMessages collects the messages of entries strictly before cutID on
// the branch.
func preCutMessages(branch []*sessionlog.Entry, cutID string) []models.Message {
	var out []models.Message
	for _, entry := range branch {
		if entry.ID == cutID {
			break
		}
		if entry.Type == sessionlog.EntryMessage && entry.Message != nil {
			out = append(out, entry.Message.Clone())
		}
	}
	return out
}

// branchMessages collects every message on the branch.
func branchMessages(branch []*sessionlog.Entry) []models.Message {
	var out []models.Message
	for _, entry := range branch {
		if entry.Type == sessionlog.EntryMessage && entry.Message != nil {
			out = append(out, entry.Message.Clone())
		}
	}
	return out
}

// signature captures the branch state for debouncing async compactions. Runs
// on the actor.
func (s *Session) signature() compaction.Signature {
	return compaction.Signature{
		SessionID:  s.id,
		LeafID:     s.log.LeafID(),
		EntryCount: s.log.Len(),
		Turn:       s.turn,
		Provider:   s.provider,
		Model:      s.model,
	}
}

// maybeAutoCompact checks the trigger signals after a turn and stages an
// asynchronous compaction: the cut-point and summary are computed off the
// actor, then applied by a posted command that re-checks the branch is
// unchanged. Runs on the actor.
func (s *Session) maybeAutoCompact() {
	if s.opts.Summarizer == nil {
		return
	}
	branch, err := s.log.Branch("")
	if err != nil || len(branch) == 0 {
		return
	}
	tokens := 0
	messageCount := 0
	for _, entry := range branch {
		tokens += compaction.EstimateEntryTokens(entry)
		if entry.Type == sessionlog.EntryMessage {
			messageCount++
		}
	}
	if !s.opts.Compaction.ShouldCompact(tokens, messageCount) {
		return
	}

	sig := s.signature()
	if s.autoCompacting[sig] {
		return
	}
	s.autoCompacting[sig] = true

	settings := s.opts.Compaction
	summarizer := s.opts.Summarizer
	go func() {
		cutID, err := compaction.FindCutPoint(branch, settings, false)
		if err != nil {
			s.post(func() { delete(s.autoCompacting, sig) })
			return
		}
		pre := preCutMessages(branch, cutID)
		summary, err := compaction.Summarize(context.Background(), summarizer, compaction.Request{Messages: pre})
		s.post(func() {
			delete(s.autoCompacting, sig)
			if err != nil {
				s.logger.Warn("auto-compaction summary failed", "error", err)
				return
			}
			// The branch moved since the snapshot; the stale summary must
			// not be applied.
			if s.log.LeafID() != sig.LeafID || s.log.Len() != sig.EntryCount {
				return
			}
			var details map[string]any
			if ops := compaction.ExtractFileOps(pre); ops != nil {
				details = map[string]any{"file_operations": ops}
			}
			if err := s.applyCompaction(cutID, summary, tokens, details); err != nil {
				s.logger.Error("auto-compaction apply failed", "error", err)
			}
		})
	}()
}

// tryOverflowRecovery intercepts a provider overflow error and attempts a
// forced compaction followed by a resume. The error event is held; it is
// forwarded only when recovery fails. Returns false when the event should
// flow through untouched. Runs on the actor.
func (s *Session) tryOverflowRecovery(event *models.Event) bool {
	if !compaction.IsOverflowError(event.Error) {
		return false
	}
	if s.opts.Summarizer == nil || s.recovery.Attempted(s.turn) {
		return false
	}
	sig := s.signature()
	held := *event
	s.logger.Info("context overflow detected, attempting recovery",
		"turn", sig.Turn, "entries", sig.EntryCount)

	go func() {
		err := s.recovery.Run(context.Background(), sig, func(ctx context.Context) error {
			if err := s.call(func() error {
				return s.doCompact(ctx, CompactOptions{Force: true})
			}); err != nil {
				return err
			}
			if err := s.driver.WaitForIdle(ctx); err != nil {
				return err
			}
			return s.driver.Continue(ctx)
		})
		if err == nil {
			s.logger.Info("overflow recovery succeeded", "turn", sig.Turn)
			return
		}
		s.logger.Warn("overflow recovery failed",
			"turn", sig.Turn, "reason", compaction.NormalizeReason(err))
		s.post(func() {
			s.streaming = false
			if held.Partial == nil {
				held.Partial = append([]models.Message(nil), s.runMessages...)
			}
			s.emit(held)
		})
	}()
	return true
}

// SummarizeCurrentBranch generates a summary of the current branch and
// records it as a branch summary entry. Returns ErrEmptyBranch when the
// branch has no messages.
func (s *Session) SummarizeCurrentBranch(ctx context.Context) (string, error) {
	var branch []*sessionlog.Entry
	var leaf string
	if err := s.call(func() error {
		var err error
		branch, err = s.log.Branch("")
		leaf = s.log.LeafID()
		return err
	}); err != nil {
		return "", err
	}

	messages := branchMessages(branch)
	if len(messages) == 0 {
		return "", ErrEmptyBranch
	}
	if s.opts.Summarizer == nil {
		return "", ErrNoSummarizer
	}
	summary, err := compaction.Summarize(ctx, s.opts.Summarizer, compaction.Request{Messages: messages})
	if err != nil {
		return "", err
	}

	err = s.call(func() error {
		if _, err := s.log.Append(sessionlog.Entry{
			Type:          sessionlog.EntryBranchSummary,
			BranchSummary: &sessionlog.BranchSummary{FromID: leaf, Summary: summary},
		}); err != nil {
			return err
		}
		s.saveLog()
		s.emit(models.Event{
			Type:          models.EventBranchSummarized,
			BranchSummary: &models.BranchSummaryPayload{FromID: leaf, Summary: summary},
		})
		return nil
	})
	return summary, err
}

// summarizeAbandonedAsync generates a summary for a branch left behind by a
// navigation and records it on the new branch. Runs the generation off the
// actor. Runs on the actor.
func (s *Session) summarizeAbandonedAsync(oldLeaf string, oldBranch []*sessionlog.Entry) {
	if s.opts.Summarizer == nil {
		return
	}
	messages := branchMessages(oldBranch)
	if len(messages) == 0 {
		return
	}
	summarizer := s.opts.Summarizer
	go func() {
		summary, err := compaction.Summarize(context.Background(), summarizer, compaction.Request{Messages: messages})
		if err != nil {
			s.logger.Warn("abandoned branch summary failed", "from", oldLeaf, "error", err)
			return
		}
		s.post(func() {
			if _, err := s.log.Append(sessionlog.Entry{
				Type:          sessionlog.EntryBranchSummary,
				BranchSummary: &sessionlog.BranchSummary{FromID: oldLeaf, Summary: summary},
			}); err != nil {
				s.logger.Error("record branch summary failed", "from", oldLeaf, "error", err)
				return
			}
			s.saveLog()
			s.emit(models.Event{
				Type:          models.EventBranchSummarized,
				BranchSummary: &models.BranchSummaryPayload{FromID: oldLeaf, Summary: summary},
			})
		})
	}()
}
