// Package reactloop implements the bounded think-act-observe loop that
// drives a single agent through a single task: build a prompt, invoke
// the LLM, parse its output into one of five shapes, dispatch, repeat
// until a final answer, max iterations, pause, or abort. Loop satisfies
// strategy.TaskRunner by structural typing; it does not import strategy
// so the two packages stay decoupled.
package reactloop

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/flowcrew/flowcrew/agent"
	"github.com/flowcrew/flowcrew/llms"
	"github.com/flowcrew/flowcrew/status"
	"github.com/flowcrew/flowcrew/store"
	"github.com/flowcrew/flowcrew/task"
	"github.com/flowcrew/flowcrew/telemetry"
	"github.com/flowcrew/flowcrew/wlog"
)

const (
	maxThinkingRetries = 3
	retryBaseDelay     = 200 * time.Millisecond

	forceFinalAnswerNudge = "You are nearly out of iterations. Respond only with a final answer now, in the form " +
		`{"answer": "..."}` + ".\n\n"
	correctiveNudge = "Your last response could not be parsed. Respond with exactly one JSON object shaped as " +
		`{"tool": "...", "input": {...}}, {"question": "..."}, or {"answer": "..."}` + "."
)

// Loop runs the ReAct iteration loop for one task at a time. The zero
// value is ready to use; Sleep may be overridden by tests to avoid real
// backoff delays.
type Loop struct {
	// Sleep is called between thinking retries; defaults to time.Sleep.
	// Tests substitute a no-op to run the retry path instantly.
	Sleep func(time.Duration)

	// Metrics and Tracer are optional emit points; a nil value disables
	// the corresponding instrumentation without changing scheduling.
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer

	// EstimateUsage backfills Usage when a provider response omits it.
	// Nil disables estimation. team.Team.New wires this to a real
	// tokenizer-backed estimator; tests leave it nil to stay hermetic,
	// since the tokenizer downloads its encoding table over the network
	// on first use.
	EstimateUsage func(model, prompt, completion string) llms.Usage
}

// DefaultEstimateUsage estimates Usage with llms.NewTokenEstimator,
// the tiktoken-backed counter. A tokenizer failure leaves Usage zeroed
// rather than failing the iteration over an accounting detail.
func DefaultEstimateUsage(model, prompt, completion string) llms.Usage {
	estimator, err := llms.NewTokenEstimator(model)
	if err != nil {
		return llms.Usage{}
	}
	return estimator.EstimateUsage(prompt, completion)
}

// New constructs a Loop with real backoff sleeps.
func New() *Loop {
	return &Loop{Sleep: time.Sleep}
}

func (l *Loop) sleep(d time.Duration) {
	if l.Sleep != nil {
		l.Sleep(d)
		return
	}
	time.Sleep(d)
}

// RunTask drives ag through t to completion, a paused checkpoint, or a
// blocked exhaustion, reporting every outcome through s's mutators.
func (l *Loop) RunTask(ctx context.Context, s *store.TeamStore, ag *agent.Agent, t *task.Task, taskContext string) {
	if ag.CurrentTaskID() != t.ID {
		ag.Reset()
	}
	ag.MarkBusy(t.ID)

	started := time.Now()
	finish := func() {
		if l.Metrics != nil {
			l.Metrics.TaskDurationSeconds.Observe(time.Since(started).Seconds())
		}
	}

	pending := s.ConsumePendingFeedback(t.ID)
	inputs := s.InputsSnapshot()

	for ag.CurrentIterations < ag.MaxIterations {
		switch s.CurrentWorkflowStatus() {
		case status.WorkflowPAUSED:
			l.emit(s, ag, t, status.AgentPAUSED, nil, "checkpointed on pause")
			_ = s.UpdateTaskStatus(t.ID, status.TaskPAUSED)
			finish()
			return
		case status.WorkflowSTOPPING:
			l.emit(s, ag, t, status.AgentTASK_ABORTED, nil, "aborted on stop")
			_ = s.UpdateTaskStatus(t.ID, status.TaskABORTED)
			finish()
			return
		}

		iterCtx := ctx
		var span trace.Span
		if l.Tracer != nil {
			iterCtx, span = telemetry.StartIterationSpan(ctx, l.Tracer, t.ID, ag.CurrentIterations)
		}
		if l.Metrics != nil {
			l.Metrics.IterationsTotal.Inc()
		}

		l.emit(s, ag, t, status.AgentITERATION_START, map[string]any{"iteration": ag.CurrentIterations}, "iteration start")

		prompt := buildPrompt(t, taskContext, inputs, pending)
		pending = nil
		if ag.CurrentIterations >= ag.ForceFinalAnswer {
			prompt = forceFinalAnswerNudge + prompt
		}

		resp, err := l.think(iterCtx, s, ag, t, prompt)
		if err != nil {
			ag.CurrentIterations++
			l.emit(s, ag, t, status.AgentITERATION_END, map[string]any{"iteration": ag.CurrentIterations}, "iteration end")
			if span != nil {
				span.End()
			}
			continue
		}

		ag.History = append(ag.History,
			agent.Turn{Role: llms.RoleUser, Content: prompt},
			agent.Turn{Role: llms.RoleAssistant, Content: resp.Content})

		done := l.dispatch(iterCtx, s, ag, t, resp.Content)
		if span != nil {
			span.End()
		}
		if done {
			finish()
			return
		}

		ag.CurrentIterations++
		l.emit(s, ag, t, status.AgentITERATION_END, map[string]any{"iteration": ag.CurrentIterations}, "iteration end")
	}

	l.emit(s, ag, t, status.AgentMAX_ITERATIONS_ERROR, map[string]any{"error": status.ErrMaxIterations}, "max iterations exhausted")
	_ = s.UpdateTaskStatus(t.ID, status.TaskBLOCKED)
	finish()
}

// think invokes the LLM with up to maxThinkingRetries exponential
// backoff attempts for a retryable transport failure, per the error
// handling design's row for transient LLM errors.
func (l *Loop) think(ctx context.Context, s *store.TeamStore, ag *agent.Agent, t *task.Task, prompt string) (llms.Response, error) {
	messages := buildMessages(ag, prompt)

	var lastErr error
	for attempt := 0; attempt < maxThinkingRetries; attempt++ {
		l.emit(s, ag, t, status.AgentTHINKING, map[string]any{"attempt": attempt}, "invoking llm")
		resp, err := ag.LLM.Invoke(ctx, messages, llms.Options{Model: ag.LLM.ModelName()})
		if err == nil {
			if l.EstimateUsage != nil && resp.Usage.InputTokens == 0 && resp.Usage.OutputTokens == 0 {
				resp.Usage = l.EstimateUsage(ag.LLM.ModelName(), prompt, resp.Content)
			}
			l.emit(s, ag, t, status.AgentTHINKING_END, map[string]any{
				"model":        ag.LLM.ModelName(),
				"inputTokens":  resp.Usage.InputTokens,
				"outputTokens": resp.Usage.OutputTokens,
			}, "llm responded")
			if l.Metrics != nil {
				l.Metrics.LLMTokensTotal.WithLabelValues(ag.LLM.ModelName()).
					Add(float64(resp.Usage.InputTokens + resp.Usage.OutputTokens))
			}
			return resp, nil
		}
		lastErr = err
		if !llms.IsRetryable(err) {
			break
		}
		l.sleep(retryBaseDelay << attempt)
	}

	l.emit(s, ag, t, status.AgentTHINKING_ERROR, map[string]any{"error": lastErr.Error()}, "llm invoke failed")
	return llms.Response{}, lastErr
}

// dispatch parses content into one of the five shapes and applies its
// effect. It reports whether the task reached a terminal disposition
// (final answer), in which case RunTask must not loop again.
func (l *Loop) dispatch(ctx context.Context, s *store.TeamStore, ag *agent.Agent, t *task.Task, content string) bool {
	action := parseLLMOutput(content)

	switch action.Kind {
	case kindFinalAnswer:
		l.emit(s, ag, t, status.AgentFINAL_ANSWER, nil, "final answer")
		_ = s.SetTaskResult(t.ID, action.Answer)
		if t.ExternalValidationRequired {
			_ = s.UpdateTaskStatus(t.ID, status.TaskAWAITING_VALIDATION)
		} else {
			_ = s.UpdateTaskStatus(t.ID, status.TaskDONE)
		}
		return true

	case kindToolAction:
		l.emit(s, ag, t, status.AgentEXECUTING_ACTION, map[string]any{"tool": action.Tool}, "executing action")
		l.emit(s, ag, t, status.AgentUSING_TOOL, map[string]any{"tool": action.Tool}, "using tool")
		tool, found := ag.FindTool(action.Tool)
		if !found {
			ag.History = append(ag.History, agent.Turn{Role: llms.RoleTool, Content: status.ErrToolInvocation + ": unknown tool " + action.Tool})
			l.emit(s, ag, t, status.AgentUSING_TOOL_ERROR, map[string]any{"tool": action.Tool, "error": "unknown tool"}, "unknown tool")
			l.observeToolOutcome("error")
			return false
		}
		result, err := tool.Invoke(ctx, action.Input)
		if err != nil {
			ag.History = append(ag.History, agent.Turn{Role: llms.RoleTool, Content: status.ErrToolInvocation + ": " + err.Error()})
			l.emit(s, ag, t, status.AgentUSING_TOOL_ERROR, map[string]any{"tool": action.Tool, "error": err.Error()}, "tool invocation failed")
			l.observeToolOutcome("error")
			return false
		}
		ag.History = append(ag.History, agent.Turn{Role: llms.RoleTool, Content: result.Content})
		l.emit(s, ag, t, status.AgentUSING_TOOL_END, map[string]any{"tool": action.Tool}, "tool invocation done")
		l.observeToolOutcome("success")
		return false

	case kindSelfQuestion:
		ag.History = append(ag.History, agent.Turn{Role: llms.RoleUser, Content: action.Question})
		l.emit(s, ag, t, status.AgentSELF_QUESTION, nil, "self question")
		return false

	case kindObservation:
		ag.History = append(ag.History, agent.Turn{Role: llms.RoleUser, Content: action.Observation})
		l.emit(s, ag, t, status.AgentOBSERVATION, nil, "observation")
		return false

	default:
		ag.History = append(ag.History, agent.Turn{Role: llms.RoleUser, Content: correctiveNudge})
		l.emit(s, ag, t, status.AgentISSUES_PARSING_LLM_OUTPUT, map[string]any{"error": status.ErrLLMParse}, "issues parsing llm output")
		return false
	}
}

func (l *Loop) observeToolOutcome(outcome string) {
	if l.Metrics != nil {
		l.Metrics.ToolInvocationsTotal.WithLabelValues(outcome).Inc()
	}
}

// emit appends an AgentStatusUpdate log entry through the store, so
// getWorkflowStats and any live subscriber see the transition.
func (l *Loop) emit(s *store.TeamStore, ag *agent.Agent, t *task.Task, st status.Agent, metadata map[string]any, description string) {
	ag.Status = st
	meta := map[string]any{"status": st}
	for k, v := range metadata {
		meta[k] = v
	}
	s.AppendLog(wlog.New(s.Now(), status.LogAgentStatusUpdate, ag.ID, t.ID, nil, meta, description))
}

func buildMessages(ag *agent.Agent, prompt string) []llms.Message {
	messages := make([]llms.Message, 0, len(ag.History)+2)
	messages = append(messages, llms.Message{Role: llms.RoleSystem, Content: systemPrompt(ag)})
	for _, turn := range ag.History {
		messages = append(messages, llms.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llms.Message{Role: llms.RoleUser, Content: prompt})
	return messages
}

func systemPrompt(ag *agent.Agent) string {
	var b strings.Builder
	b.WriteString("Role: ")
	b.WriteString(ag.Role)
	b.WriteString("\nGoal: ")
	b.WriteString(ag.Goal)
	if ag.Background != "" {
		b.WriteString("\nBackground: ")
		b.WriteString(ag.Background)
	}
	if len(ag.Tools) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, tl := range ag.Tools {
			b.WriteString("- ")
			b.WriteString(tl.Name())
			b.WriteString(": ")
			b.WriteString(tl.Description())
			b.WriteString("\n")
		}
	}
	return b.String()
}

// buildPrompt interpolates inputs into the task description and
// appends aggregated context and any pending feedback, per
// workOnFeedback: a revision effectively reruns as feedback-augmented
// work on the same task.
func buildPrompt(t *task.Task, taskContext string, inputs map[string]string, pending []task.Feedback) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(t.InterpolatedDescription(inputs))
	if t.ExpectedOutput != "" {
		b.WriteString("\nExpected output: ")
		b.WriteString(t.ExpectedOutput)
	}
	if taskContext != "" {
		b.WriteString("\n\nContext from prior tasks:\n")
		b.WriteString(taskContext)
	}
	if len(pending) > 0 {
		b.WriteString("\n\nAddress this feedback on your prior result:\n")
		for _, f := range pending {
			b.WriteString("- ")
			b.WriteString(f.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}
