package compaction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// DefaultRecoveryTimeout bounds one overflow auto-recovery attempt.
const DefaultRecoveryTimeout = 120 * time.Second

// ErrRecoveryAttempted is returned when auto-recovery was already tried for
// the current turn.
var ErrRecoveryAttempted = errors.New("recovery_already_attempted")

// ErrRecoveryInFlight is returned when an identical recovery is already
// running.
var ErrRecoveryInFlight = errors.New("recovery_in_flight")

// overflowMarkers are matched case-insensitively against provider error text.
var overflowMarkers = []string{
	"context_length_exceeded",
	"context length exceeded",
	"context window",
	"maximum context length",
}

// IsOverflowError reports whether a provider error message indicates a
// context-window overflow.
func IsOverflowError(message string) bool {
	if message == "" {
		return false
	}
	lower := strings.ToLower(message)
	for _, marker := range overflowMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Signature identifies one recovery attempt for debouncing. Two recoveries
// with the same signature are the same logical attempt.
type Signature struct {
	SessionID  string
	LeafID     string
	EntryCount int
	Turn       int
	Provider   string
	Model      string
}

// Telemetry receives recovery lifecycle events. Reasons are normalized to
// metric-label-safe strings.
type Telemetry interface {
	RecoveryAttempt(sig Signature)
	RecoverySuccess(sig Signature, duration time.Duration)
	RecoveryFailure(sig Signature, reason string, duration time.Duration)
}

// NopTelemetry discards all events.
type NopTelemetry struct{}

func (NopTelemetry) RecoveryAttempt(Signature)                        {}
func (NopTelemetry) RecoverySuccess(Signature, time.Duration)         {}
func (NopTelemetry) RecoveryFailure(Signature, string, time.Duration) {}

// Recovery gates overflow auto-recovery: at most one attempt per turn, a
// bounded timeout per attempt, and debouncing of concurrent identical
// attempts.
type Recovery struct {
	timeout   time.Duration
	telemetry Telemetry

	mu            sync.Mutex
	attemptedTurn map[int]bool
	inFlight      map[Signature]bool
}

// NewRecovery builds a Recovery. Zero timeout means DefaultRecoveryTimeout;
// nil telemetry means NopTelemetry.
func NewRecovery(timeout time.Duration, telemetry Telemetry) *Recovery {
	if timeout <= 0 {
		timeout = DefaultRecoveryTimeout
	}
	if telemetry == nil {
		telemetry = NopTelemetry{}
	}
	return &Recovery{
		timeout:       timeout,
		telemetry:     telemetry,
		attemptedTurn: make(map[int]bool),
		inFlight:      make(map[Signature]bool),
	}
}

// Reset clears per-turn attempt tracking, for a new prompt cycle.
func (r *Recovery) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attemptedTurn = make(map[int]bool)
	r.inFlight = make(map[Signature]bool)
}

// Attempted reports whether a recovery was already tried for turn.
func (r *Recovery) Attempted(turn int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attemptedTurn[turn]
}

// Run executes one recovery attempt under the configured timeout. It fails
// fast when the turn already had an attempt or an identical attempt is in
// flight, and emits telemetry at attempt, success, and failure.
func (r *Recovery) Run(ctx context.Context, sig Signature, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	if r.attemptedTurn[sig.Turn] {
		r.mu.Unlock()
		return ErrRecoveryAttempted
	}
	if r.inFlight[sig] {
		r.mu.Unlock()
		return ErrRecoveryInFlight
	}
	r.attemptedTurn[sig.Turn] = true
	r.inFlight[sig] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inFlight, sig)
		r.mu.Unlock()
	}()

	r.telemetry.RecoveryAttempt(sig)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := fn(ctx)
	duration := time.Since(start)
	if err != nil {
		r.telemetry.RecoveryFailure(sig, NormalizeReason(err), duration)
		return err
	}
	r.telemetry.RecoverySuccess(sig, duration)
	return nil
}

// reasonMaxLen caps normalized reasons so metric label cardinality stays
// bounded.
const reasonMaxLen = 64

// NormalizeReason turns an error into a lowercase label-safe reason string.
func NormalizeReason(err error) string {
	if err == nil {
		return "none"
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrCannotCompact):
		return "cannot_compact"
	}
	raw := strings.ToLower(err.Error())
	var b strings.Builder
	lastUnderscore := false
	for _, r := range raw {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if ok {
			b.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
		if b.Len() >= reasonMaxLen {
			break
		}
	}
	reason := strings.Trim(b.String(), "_")
	if reason == "" {
		return "unknown"
	}
	return reason
}
