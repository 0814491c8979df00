package compaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestIsOverflowError(t *testing.T) {
	overflow := []string{
		"error: context_length_exceeded",
		"The Context Length Exceeded for this request",
		"request exceeds the context window of the model",
		"This model's maximum context length is 200000 tokens",
	}
	for _, msg := range overflow {
		if !IsOverflowError(msg) {
			t.Errorf("IsOverflowError(%q) = false, want true", msg)
		}
	}
	benign := []string{"", "rate limit exceeded", "invalid api key", "connection reset"}
	for _, msg := range benign {
		if IsOverflowError(msg) {
			t.Errorf("IsOverflowError(%q) = true, want false", msg)
		}
	}
}

type recordingTelemetry struct {
	mu        sync.Mutex
	attempts  int
	successes int
	failures  []string
}

func (r *recordingTelemetry) RecoveryAttempt(Signature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
}

func (r *recordingTelemetry) RecoverySuccess(Signature, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes++
}

func (r *recordingTelemetry) RecoveryFailure(_ Signature, reason string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, reason)
}

func TestRecoveryRunEmitsTelemetry(t *testing.T) {
	tel := &recordingTelemetry{}
	r := NewRecovery(0, tel)
	sig := Signature{SessionID: "s1", Turn: 1}
	if err := r.Run(context.Background(), sig, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tel.attempts != 1 || tel.successes != 1 || len(tel.failures) != 0 {
		t.Errorf("telemetry = %+v", tel)
	}
}

func TestRecoveryOncePerTurn(t *testing.T) {
	r := NewRecovery(0, nil)
	sig := Signature{SessionID: "s1", Turn: 3}
	if err := r.Run(context.Background(), sig, func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	err := r.Run(context.Background(), sig, func(context.Context) error { return nil })
	if !errors.Is(err, ErrRecoveryAttempted) {
		t.Errorf("second attempt err = %v, want ErrRecoveryAttempted", err)
	}
	if !r.Attempted(3) {
		t.Error("Attempted(3) = false")
	}
	// A later turn is allowed again.
	sig.Turn = 4
	if err := r.Run(context.Background(), sig, func(context.Context) error { return nil }); err != nil {
		t.Errorf("next turn err = %v", err)
	}
}

func TestRecoveryResetClearsTurns(t *testing.T) {
	r := NewRecovery(0, nil)
	sig := Signature{Turn: 1}
	if err := r.Run(context.Background(), sig, func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	r.Reset()
	if err := r.Run(context.Background(), sig, func(context.Context) error { return nil }); err != nil {
		t.Errorf("post-reset err = %v", err)
	}
}

func TestRecoveryDebouncesInFlight(t *testing.T) {
	r := NewRecovery(time.Second, nil)
	sig := Signature{SessionID: "s1", Turn: 1}
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background(), sig, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// Same turn, already attempted: the turn guard fires first.
	err := r.Run(context.Background(), sig, func(context.Context) error { return nil })
	if !errors.Is(err, ErrRecoveryAttempted) {
		t.Errorf("concurrent err = %v, want ErrRecoveryAttempted", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first attempt err = %v", err)
	}
}

func TestRecoveryTimeout(t *testing.T) {
	tel := &recordingTelemetry{}
	r := NewRecovery(10*time.Millisecond, tel)
	err := r.Run(context.Background(), Signature{Turn: 1}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if len(tel.failures) != 1 || tel.failures[0] != "timeout" {
		t.Errorf("failures = %v, want [timeout]", tel.failures)
	}
}

func TestNormalizeReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{ErrCannotCompact, "cannot_compact"},
		{errors.New("HTTP 429: Too Many Requests!"), "http_429_too_many_requests"},
		{errors.New("___"), "unknown"},
	}
	for _, tc := range cases {
		if got := NormalizeReason(tc.err); got != tc.want {
			t.Errorf("NormalizeReason(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
