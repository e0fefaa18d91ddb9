package reactloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"

	"github.com/flowcrew/flowcrew/agent"
	"github.com/flowcrew/flowcrew/llms"
	"github.com/flowcrew/flowcrew/status"
	"github.com/flowcrew/flowcrew/store"
	"github.com/flowcrew/flowcrew/task"
	"github.com/flowcrew/flowcrew/telemetry"
	"github.com/flowcrew/flowcrew/tools"
)

func tickClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

type scriptedProvider struct {
	mu      sync.Mutex
	answers []string
	idx     int
}

func (p *scriptedProvider) Invoke(ctx context.Context, messages []llms.Message, opts llms.Options) (llms.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx >= len(p.answers) {
		return llms.Response{Content: `{"answer": "fallback"}`}, nil
	}
	a := p.answers[p.idx]
	p.idx++
	return llms.Response{Content: a}, nil
}

func (p *scriptedProvider) ModelName() string { return "scripted" }
func (p *scriptedProvider) Close() error      { return nil }

type failingProvider struct {
	mu        sync.Mutex
	failTimes int
}

func (p *failingProvider) Invoke(ctx context.Context, messages []llms.Message, opts llms.Options) (llms.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTimes > 0 {
		p.failTimes--
		return llms.Response{}, &llms.RetryableError{Err: assertErr("rate limited")}
	}
	return llms.Response{Content: `{"answer": "recovered"}`}, nil
}

func (p *failingProvider) ModelName() string { return "flaky" }
func (p *failingProvider) Close() error      { return nil }

type assertErr string

func (e assertErr) Error() string { return string(e) }

type echoTool struct{ calls int }

func (t *echoTool) Name() string               { return "echo" }
func (t *echoTool) Description() string        { return "echoes input" }
func (t *echoTool) InputSchema() tools.Schema   { return tools.Schema{Type: "object"} }
func (t *echoTool) Invoke(ctx context.Context, args map[string]any) (tools.Result, error) {
	t.calls++
	return tools.Result{Content: "echoed"}, nil
}

func newAgent(id string, llm llms.Provider, toolset []tools.Tool) *agent.Agent {
	a := agent.New(id, id, "worker", "finish the task", "", llm, toolset)
	return a
}

func newStore(t *testing.T, taskID, agentID string) (*store.TeamStore, *task.Task) {
	s := store.New("t", 0)
	s.SetClock(tickClock())
	tk := task.New(taskID, agentID, "do the thing")
	require.NoError(t, s.AddTasks([]*task.Task{tk}))
	return s, tk
}

func TestLoop_FinalAnswerImmediate(t *testing.T) {
	s, tk := newStore(t, "A", "a1")
	ag := newAgent("a1", &scriptedProvider{answers: []string{`{"answer": "hello"}`}}, nil)

	New().RunTask(context.Background(), s, ag, tk, "")

	live, _ := s.FindTask("A")
	assert.Equal(t, status.TaskDONE, live.Status)
	assert.Equal(t, "hello", live.Result)

	var starts, ends, finals int
	for _, e := range s.GetCleanedState().WorkflowLogs {
		switch e.Metadata["status"] {
		case status.AgentITERATION_START:
			starts++
		case status.AgentITERATION_END:
			ends++
		case status.AgentFINAL_ANSWER:
			finals++
		}
	}
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, ends)
	assert.Equal(t, 1, finals)
}

func TestLoop_ExternalValidationRequired(t *testing.T) {
	s, tk := newStore(t, "A", "a1")
	tk.ExternalValidationRequired = true
	ag := newAgent("a1", &scriptedProvider{answers: []string{`{"answer": "draft"}`}}, nil)

	New().RunTask(context.Background(), s, ag, tk, "")

	live, _ := s.FindTask("A")
	assert.Equal(t, status.TaskAWAITING_VALIDATION, live.Status)
}

func TestLoop_ToolActionThenFinalAnswer(t *testing.T) {
	s, tk := newStore(t, "A", "a1")
	tool := &echoTool{}
	ag := newAgent("a1", &scriptedProvider{answers: []string{
		`{"tool": "echo", "input": {"x": "y"}}`,
		`{"answer": "done"}`,
	}}, []tools.Tool{tool})

	New().RunTask(context.Background(), s, ag, tk, "")

	live, _ := s.FindTask("A")
	assert.Equal(t, status.TaskDONE, live.Status)
	assert.Equal(t, 1, tool.calls)

	iterationStarts := 0
	for _, e := range s.GetCleanedState().WorkflowLogs {
		if e.Metadata["status"] == status.AgentITERATION_START {
			iterationStarts++
		}
	}
	assert.Equal(t, 2, iterationStarts)
}

func TestLoop_UnknownToolIsNonFatal(t *testing.T) {
	s, tk := newStore(t, "A", "a1")
	ag := newAgent("a1", &scriptedProvider{answers: []string{
		`{"tool": "missing", "input": {}}`,
		`{"answer": "done"}`,
	}}, nil)

	New().RunTask(context.Background(), s, ag, tk, "")

	live, _ := s.FindTask("A")
	assert.Equal(t, status.TaskDONE, live.Status)

	found := false
	for _, e := range s.GetCleanedState().WorkflowLogs {
		if e.Metadata["status"] == status.AgentUSING_TOOL_ERROR {
			found = true
		}
	}
	assert.True(t, found)
}

// TestLoop_UnparseableExhaustsMaxIterations mirrors the max-iterations
// scenario: a mock LLM that always returns a JSON object matching none
// of the known shapes should exhaust the budget and block the task
// without ever crashing the workflow.
func TestLoop_UnparseableExhaustsMaxIterations(t *testing.T) {
	s, tk := newStore(t, "A", "a1")
	ag := newAgent("a1", &scriptedProvider{answers: []string{
		`{"foo": "bar"}`, `{"foo": "bar"}`, `{"foo": "bar"}`,
	}}, nil)
	ag.MaxIterations = 3
	ag.ForceFinalAnswer = 2

	loop := New()
	loop.Sleep = func(time.Duration) {}
	loop.RunTask(context.Background(), s, ag, tk, "")

	live, _ := s.FindTask("A")
	assert.Equal(t, status.TaskBLOCKED, live.Status)

	ends, maxErrs, parseErrs := 0, 0, 0
	for _, e := range s.GetCleanedState().WorkflowLogs {
		switch e.Metadata["status"] {
		case status.AgentITERATION_END:
			ends++
		case status.AgentMAX_ITERATIONS_ERROR:
			maxErrs++
		case status.AgentISSUES_PARSING_LLM_OUTPUT:
			parseErrs++
		}
	}
	assert.Equal(t, 3, ends)
	assert.Equal(t, 1, maxErrs)
	assert.Equal(t, 3, parseErrs)
}

func TestLoop_RetriesTransientFailureThenSucceeds(t *testing.T) {
	s, tk := newStore(t, "A", "a1")
	ag := newAgent("a1", &failingProvider{failTimes: 2}, nil)

	loop := New()
	loop.Sleep = func(time.Duration) {}
	loop.RunTask(context.Background(), s, ag, tk, "")

	live, _ := s.FindTask("A")
	assert.Equal(t, status.TaskDONE, live.Status)
	assert.Equal(t, "recovered", live.Result)

	thinkingErrors := 0
	for _, e := range s.GetCleanedState().WorkflowLogs {
		if e.Metadata["status"] == status.AgentTHINKING_ERROR {
			thinkingErrors++
		}
	}
	assert.Equal(t, 0, thinkingErrors)
}

func TestLoop_PauseCheckpointsBeforeThinking(t *testing.T) {
	s := store.New("t", 0)
	s.SetClock(tickClock())
	ag := newAgent("a1", &scriptedProvider{answers: []string{`{"answer": "hello"}`}}, nil)
	require.NoError(t, s.AddAgents([]*agent.Agent{ag}))
	tk := task.New("A", "a1", "do the thing")
	require.NoError(t, s.AddTasks([]*task.Task{tk}))
	s.SetStrategy(noopStrategy{})
	require.NoError(t, s.Start(nil))
	require.NoError(t, s.Pause())

	live, _ := s.FindTask("A")
	New().RunTask(context.Background(), s, ag, live, "")

	live, _ = s.FindTask("A")
	assert.Equal(t, status.TaskPAUSED, live.Status)

	found := false
	for _, e := range s.GetCleanedState().WorkflowLogs {
		if e.Metadata["status"] == status.AgentPAUSED {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLoop_RecordsMetricsWhenConfigured(t *testing.T) {
	s, tk := newStore(t, "A", "a1")
	tool := &echoTool{}
	ag := newAgent("a1", &scriptedProvider{answers: []string{
		`{"tool": "echo", "input": {}}`,
		`{"answer": "hello"}`,
	}}, []tools.Tool{tool})

	loop := New()
	loop.Metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	loop.RunTask(context.Background(), s, ag, tk, "")

	assert.Equal(t, float64(2), testutil.ToFloat64(loop.Metrics.IterationsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(loop.Metrics.ToolInvocationsTotal.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(loop.Metrics.TaskDurationSeconds))
}

func TestLoop_EstimatesUsageWhenProviderOmitsIt(t *testing.T) {
	s, tk := newStore(t, "A", "a1")
	ag := newAgent("a1", &scriptedProvider{answers: []string{`{"answer": "hello"}`}}, nil)

	loop := New()
	loop.Metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	loop.EstimateUsage = func(model, prompt, completion string) llms.Usage {
		return llms.Usage{InputTokens: 7, OutputTokens: 3}
	}
	loop.RunTask(context.Background(), s, ag, tk, "")

	assert.Equal(t, float64(10), testutil.ToFloat64(loop.Metrics.LLMTokensTotal.WithLabelValues("scripted")))
}

func TestLoop_NilEstimateUsageLeavesUsageZero(t *testing.T) {
	s, tk := newStore(t, "A", "a1")
	ag := newAgent("a1", &scriptedProvider{answers: []string{`{"answer": "hello"}`}}, nil)

	loop := New()
	loop.Metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	loop.RunTask(context.Background(), s, ag, tk, "")

	assert.Equal(t, float64(0), testutil.ToFloat64(loop.Metrics.LLMTokensTotal.WithLabelValues("scripted")))
}

func TestLoop_TracerWiredDoesNotChangeOutcome(t *testing.T) {
	s, tk := newStore(t, "A", "a1")
	ag := newAgent("a1", &scriptedProvider{answers: []string{`{"answer": "hello"}`}}, nil)

	loop := New()
	loop.Tracer = otel.Tracer("reactloop-test")
	loop.RunTask(context.Background(), s, ag, tk, "")

	live, _ := s.FindTask("A")
	assert.Equal(t, status.TaskDONE, live.Status)
}

type noopStrategy struct{}

func (noopStrategy) StartExecution(*store.TeamStore) error { return nil }
func (noopStrategy) StopExecution(*store.TeamStore)        {}
func (noopStrategy) ResumeExecution(*store.TeamStore)      {}
