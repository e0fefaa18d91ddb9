package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the small set of counters/histograms incremented
// exactly at the status transitions named in the agent iteration loop
// and workflow lifecycle. It is an emit point only: nothing in
// strategy or reactloop reads these back.
type Metrics struct {
	IterationsTotal      prometheus.Counter
	ToolInvocationsTotal *prometheus.CounterVec
	LLMTokensTotal       *prometheus.CounterVec
	TaskDurationSeconds  prometheus.Histogram
}

// NewMetrics registers a fresh Metrics set on reg. Pass
// prometheus.NewRegistry() for test isolation, or
// prometheus.DefaultRegisterer to expose on the process-wide /metrics
// endpoint.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowcrew_iterations_total",
			Help: "Total agent iteration loop ticks across all tasks.",
		}),
		ToolInvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowcrew_tool_invocations_total",
			Help: "Total tool invocations, labeled by outcome.",
		}, []string{"outcome"}),
		LLMTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowcrew_llm_tokens_total",
			Help: "Total LLM tokens consumed, labeled by model.",
		}, []string{"model"}),
		TaskDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowcrew_task_duration_seconds",
			Help:    "Wall-clock duration of one RunTask call, from entry until it returns.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.IterationsTotal, m.ToolInvocationsTotal, m.LLMTokensTotal, m.TaskDurationSeconds)
	return m
}
