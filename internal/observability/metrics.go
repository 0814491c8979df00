package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/haasonsaas/agentcore/internal/compaction"
)

// Metrics collects the runtime's prometheus metrics. It implements
// compaction.Telemetry so overflow recovery reports through it.
type Metrics struct {
	// RunCounter counts run outcomes.
	// Labels: status (completed|error|cancelled|killed|timeout|lost)
	RunCounter *prometheus.CounterVec

	// TokensUsed tracks token consumption.
	// Labels: provider, model, type (input|output)
	TokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// CompactionCounter counts applied compactions.
	// Labels: trigger (auto|manual|recovery)
	CompactionCounter *prometheus.CounterVec

	// RecoveryCounter counts overflow recovery attempts.
	// Labels: outcome (attempt|success|failure), reason (normalized; "none"
	// for attempt/success)
	RecoveryCounter *prometheus.CounterVec

	// RecoveryDuration measures recovery wall time in seconds.
	// Labels: outcome (success|failure)
	RecoveryDuration *prometheus.HistogramVec

	// ActiveSessions gauges currently open sessions.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all metrics with reg; nil uses the
// default registerer. Call once at startup.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_runs_total",
				Help: "Total runs by terminal status",
			},
			[]string{"status"},
		),

		TokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tokens_total",
				Help: "Total tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_executions_total",
				Help: "Total tool invocations by tool and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_execution_duration_seconds",
				Help:    "Tool execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		CompactionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_compactions_total",
				Help: "Total applied compactions by trigger",
			},
			[]string{"trigger"},
		),

		RecoveryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_overflow_recoveries_total",
				Help: "Overflow recovery attempts by outcome and normalized reason",
			},
			[]string{"outcome", "reason"},
		),

		RecoveryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_overflow_recovery_duration_seconds",
				Help:    "Overflow recovery wall time in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcore_active_sessions",
				Help: "Currently open sessions",
			},
		),
	}
}

// RecordRunOutcome increments the run counter for a terminal status.
func (m *Metrics) RecordRunOutcome(status string) {
	m.RunCounter.WithLabelValues(status).Inc()
}

// RecordTokens adds input/output token counts for a model response.
func (m *Metrics) RecordTokens(provider, model string, input, output int) {
	if input > 0 {
		m.TokensUsed.WithLabelValues(provider, model, "input").Add(float64(input))
	}
	if output > 0 {
		m.TokensUsed.WithLabelValues(provider, model, "output").Add(float64(output))
	}
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(toolName string, isError bool, elapsed time.Duration) {
	status := "success"
	if isError {
		status = "error"
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(elapsed.Seconds())
}

// RecordCompaction records one applied compaction.
func (m *Metrics) RecordCompaction(trigger string) {
	m.CompactionCounter.WithLabelValues(trigger).Inc()
}

// RecoveryAttempt implements compaction.Telemetry.
func (m *Metrics) RecoveryAttempt(compaction.Signature) {
	m.RecoveryCounter.WithLabelValues("attempt", "none").Inc()
}

// RecoverySuccess implements compaction.Telemetry.
func (m *Metrics) RecoverySuccess(_ compaction.Signature, duration time.Duration) {
	m.RecoveryCounter.WithLabelValues("success", "none").Inc()
	m.RecoveryDuration.WithLabelValues("success").Observe(duration.Seconds())
}

// RecoveryFailure implements compaction.Telemetry.
func (m *Metrics) RecoveryFailure(_ compaction.Signature, reason string, duration time.Duration) {
	m.RecoveryCounter.WithLabelValues("failure", reason).Inc()
	m.RecoveryDuration.WithLabelValues("failure").Observe(duration.Seconds())
}
