package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/agentcore/internal/compaction"
)

func newTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func TestRecoveryTelemetry(t *testing.T) {
	m := newTestMetrics()

	// Metrics must satisfy the recovery telemetry contract.
	var _ compaction.Telemetry = m

	sig := compaction.Signature{SessionID: "s", Turn: 1}
	m.RecoveryAttempt(sig)
	m.RecoverySuccess(sig, 2*time.Second)
	m.RecoveryFailure(sig, compaction.NormalizeReason(errors.New("HTTP 500")), time.Second)

	if got := testutil.ToFloat64(m.RecoveryCounter.WithLabelValues("attempt", "none")); got != 1 {
		t.Errorf("attempt count = %v", got)
	}
	if got := testutil.ToFloat64(m.RecoveryCounter.WithLabelValues("success", "none")); got != 1 {
		t.Errorf("success count = %v", got)
	}
	if got := testutil.ToFloat64(m.RecoveryCounter.WithLabelValues("failure", "http_500")); got != 1 {
		t.Errorf("failure count = %v", got)
	}
}

func TestRecordTokens(t *testing.T) {
	m := newTestMetrics()
	m.RecordTokens("anthropic", "claude", 100, 50)
	m.RecordTokens("anthropic", "claude", 0, 10)

	if got := testutil.ToFloat64(m.TokensUsed.WithLabelValues("anthropic", "claude", "input")); got != 100 {
		t.Errorf("input tokens = %v", got)
	}
	if got := testutil.ToFloat64(m.TokensUsed.WithLabelValues("anthropic", "claude", "output")); got != 60 {
		t.Errorf("output tokens = %v", got)
	}
}

func TestRecordToolExecution(t *testing.T) {
	m := newTestMetrics()
	m.RecordToolExecution("bash", false, 100*time.Millisecond)
	m.RecordToolExecution("bash", true, time.Second)

	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("bash", "success")); got != 1 {
		t.Errorf("success count = %v", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("bash", "error")); got != 1 {
		t.Errorf("error count = %v", got)
	}
}

func TestRunOutcomeAndCompaction(t *testing.T) {
	m := newTestMetrics()
	m.RecordRunOutcome("completed")
	m.RecordRunOutcome("completed")
	m.RecordCompaction("auto")

	if got := testutil.ToFloat64(m.RunCounter.WithLabelValues("completed")); got != 2 {
		t.Errorf("run count = %v", got)
	}
	if got := testutil.ToFloat64(m.CompactionCounter.WithLabelValues("auto")); got != 1 {
		t.Errorf("compaction count = %v", got)
	}
}
