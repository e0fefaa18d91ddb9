package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcrew/flowcrew/agent"
	"github.com/flowcrew/flowcrew/llms"
	"github.com/flowcrew/flowcrew/status"
	"github.com/flowcrew/flowcrew/store"
	"github.com/flowcrew/flowcrew/task"
)

type scriptedProvider struct {
	mu      sync.Mutex
	answers []string
	idx     int
}

func (p *scriptedProvider) Invoke(ctx context.Context, messages []llms.Message, opts llms.Options) (llms.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx >= len(p.answers) {
		return llms.Response{Content: "DONE"}, nil
	}
	a := p.answers[p.idx]
	p.idx++
	return llms.Response{Content: a}, nil
}

func (p *scriptedProvider) ModelName() string { return "scripted" }
func (p *scriptedProvider) Close() error      { return nil }

func newSupervisor(answers ...string) *agent.Agent {
	return agent.New("supervisor", "supervisor", "You route work.", "Finish the workflow.", "",
		&scriptedProvider{answers: answers}, nil)
}

func TestManagerLLM_PicksTasksInSupervisorOrder(t *testing.T) {
	s := store.New("managed", 0)
	s.SetClock(tickClock())
	require.NoError(t, s.AddAgents([]*agent.Agent{newTestAgent("a1")}))

	a := task.New("A", "a1", "a")
	b := task.New("B", "a1", "b")
	b.IsDeliverable = true
	require.NoError(t, s.AddTasks([]*task.Task{a, b}))

	s.SetStrategy(NewManagerLLM(newSupervisor("B", "A"), instantRunner{}))
	require.NoError(t, s.Start(nil))

	require.Eventually(t, func() bool {
		return s.CurrentWorkflowStatus() == status.WorkflowFINISHED
	}, time.Second, time.Millisecond)

	assert.Equal(t, "B-result", s.GetCleanedState().WorkflowResult)
}

func TestManagerLLM_RetryBudgetExhausted(t *testing.T) {
	s := store.New("managed", 0)
	s.SetClock(tickClock())
	require.NoError(t, s.AddAgents([]*agent.Agent{newTestAgent("a1")}))
	require.NoError(t, s.AddTasks([]*task.Task{task.New("A", "a1", "a")}))

	s.SetStrategy(NewManagerLLM(newSupervisor("nonexistent", "nonexistent", "nonexistent"), instantRunner{}))
	require.NoError(t, s.Start(nil))

	require.Eventually(t, func() bool {
		return s.CurrentWorkflowStatus() == status.WorkflowERRORED
	}, time.Second, time.Millisecond)

	found := false
	for _, e := range s.GetCleanedState().WorkflowLogs {
		if code, ok := e.Metadata["error"].(string); ok && code == status.ErrManagerLoop {
			found = true
		}
	}
	assert.True(t, found)
}
