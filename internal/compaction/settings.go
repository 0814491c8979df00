// Package compaction decides when and where to compact session history,
// generates summaries, and drives overflow auto-recovery.
package compaction

import "errors"

// Defaults for compaction settings.
const (
	DefaultReserveTokens            = 16384
	DefaultKeepRecentTokens         = 20000
	DefaultMessageLimitTriggerRatio = 0.9
	DefaultMessageLimitKeepRatio    = 0.6
	DefaultMinKeepMessages          = 5
)

// ErrCannotCompact is returned when no valid cut-point exists and the caller
// did not force.
var ErrCannotCompact = errors.New("cannot_compact")

// Settings controls trigger thresholds and cut-point selection.
type Settings struct {
	// ContextWindow is the provider's token ceiling. Zero disables the
	// token trigger.
	ContextWindow int `json:"context_window" yaml:"context_window"`

	// ReserveTokens is slack kept free for the model response.
	ReserveTokens int `json:"reserve_tokens" yaml:"reserve_tokens"`

	// KeepRecentTokens is how much recent history survives compaction.
	KeepRecentTokens int `json:"keep_recent_tokens" yaml:"keep_recent_tokens"`

	// MessageLimit is the provider's request-message cap. Zero disables the
	// message-count trigger.
	MessageLimit int `json:"message_limit" yaml:"message_limit"`

	// MessageLimitTriggerRatio triggers preemptive compaction at this
	// fraction of MessageLimit.
	MessageLimitTriggerRatio float64 `json:"message_limit_trigger_ratio" yaml:"message_limit_trigger_ratio"`

	// MessageLimitKeepRatio is the fraction of messages kept after a
	// preemptive compaction.
	MessageLimitKeepRatio float64 `json:"message_limit_keep_ratio" yaml:"message_limit_keep_ratio"`

	// MinKeepMessages bounds how few messages a forced compaction may keep.
	MinKeepMessages int `json:"min_keep_messages" yaml:"min_keep_messages"`
}

// DefaultSettings returns settings with standard thresholds and no provider
// limits.
func DefaultSettings() Settings {
	return Settings{
		ReserveTokens:            DefaultReserveTokens,
		KeepRecentTokens:         DefaultKeepRecentTokens,
		MessageLimitTriggerRatio: DefaultMessageLimitTriggerRatio,
		MessageLimitKeepRatio:    DefaultMessageLimitKeepRatio,
		MinKeepMessages:          DefaultMinKeepMessages,
	}
}

// withDefaults fills zero-valued thresholds.
func (s Settings) withDefaults() Settings {
	if s.ReserveTokens == 0 {
		s.ReserveTokens = DefaultReserveTokens
	}
	if s.KeepRecentTokens == 0 {
		s.KeepRecentTokens = DefaultKeepRecentTokens
	}
	if s.MessageLimitTriggerRatio == 0 {
		s.MessageLimitTriggerRatio = DefaultMessageLimitTriggerRatio
	}
	if s.MessageLimitKeepRatio == 0 {
		s.MessageLimitKeepRatio = DefaultMessageLimitKeepRatio
	}
	if s.MinKeepMessages == 0 {
		s.MinKeepMessages = DefaultMinKeepMessages
	}
	return s
}

// ShouldCompact evaluates the token and message-count signals after an
// assistant turn. Either signal triggers.
func (s Settings) ShouldCompact(estimatedTokens, messageCount int) bool {
	s = s.withDefaults()
	if s.ContextWindow > 0 && estimatedTokens > s.ContextWindow-s.ReserveTokens {
		return true
	}
	if s.MessageLimit > 0 {
		threshold := int(float64(s.MessageLimit) * s.MessageLimitTriggerRatio)
		if messageCount >= threshold {
			return true
		}
	}
	return false
}
