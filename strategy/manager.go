package strategy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flowcrew/flowcrew/agent"
	"github.com/flowcrew/flowcrew/llms"
	"github.com/flowcrew/flowcrew/queue"
	"github.com/flowcrew/flowcrew/status"
	"github.com/flowcrew/flowcrew/store"
	"github.com/flowcrew/flowcrew/task"
)

const managerMaxRetries = 3

// ManagerLLM delegates next-task selection to a supervisor agent
// instead of a fixed topology. At each decision point it lists every
// task's id, description, status, and result-so-far, and asks the
// supervisor to name the next task id (or DONE).
type ManagerLLM struct {
	supervisor *agent.Agent
	runner     TaskRunner

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	q           *queue.Queue
	unsubscribe func()
	deciding    bool
}

// NewManagerLLM constructs a manager-driven strategy. supervisor's LLM
// handle is used only for next-task decisions, never for running a
// task itself.
func NewManagerLLM(supervisor *agent.Agent, runner TaskRunner) *ManagerLLM {
	return &ManagerLLM{supervisor: supervisor, runner: runner}
}

var _ ExecutionStrategy = (*ManagerLLM)(nil)

func (m *ManagerLLM) GetConcurrencyForTaskQueue(s *store.TeamStore) int { return 1 }

func (m *ManagerLLM) StartExecution(s *store.TeamStore) error {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.q = queue.New(m.ctx, 1)
	m.mu.Unlock()

	m.unsubscribe = s.Subscribe(
		func(s *store.TeamStore) any { return snapshotStatuses(s.TasksSnapshot()) },
		func(s *store.TeamStore) { m.ExecuteFromChangedTasks(s, nil) },
	)

	m.ExecuteFromChangedTasks(s, nil)
	return nil
}

func (m *ManagerLLM) StopExecution(s *store.TeamStore) {
	m.mu.Lock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	cancel := m.cancel
	q := m.q
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if q != nil {
		_ = q.Drain()
	}
}

func (m *ManagerLLM) ResumeExecution(s *store.TeamStore) {
	tasks := s.TasksSnapshot()
	var ids []string
	for _, t := range tasks {
		if t.Status == status.TaskPAUSED {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	_ = s.UpdateStatusOfMultipleTasks(ids, status.TaskDOING)
	for _, id := range ids {
		live, ok := s.FindTask(id)
		if !ok {
			continue
		}
		ag, ok := s.FindAgent(live.AgentID)
		if !ok {
			continue
		}
		m.submit(s, live, ag)
	}
}

// ExecuteFromChangedTasks asks the supervisor for the next task
// whenever nothing is currently DOING. changedIDs is accepted for
// interface fidelity but unused: the supervisor always reasons from
// the full task list, not an incremental delta.
func (m *ManagerLLM) ExecuteFromChangedTasks(s *store.TeamStore, changedIDs []string) {
	m.mu.Lock()
	if m.deciding {
		m.mu.Unlock()
		return
	}
	tasks := s.TasksSnapshot()
	for _, t := range tasks {
		if t.Status == status.TaskDOING {
			m.mu.Unlock()
			return
		}
	}
	if allComplete(tasks) {
		m.mu.Unlock()
		return
	}
	m.deciding = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.deciding = false
		m.mu.Unlock()
	}()

	m.decide(s)
}

func (m *ManagerLLM) GetContextForTask(s *store.TeamStore, t *task.Task) string {
	tasks := s.TasksSnapshot()
	idx := indexByID(tasks)
	myIdx, known := idx[t.ID]
	if !known {
		myIdx = len(tasks)
	}
	var sb strings.Builder
	for _, other := range tasks {
		if other.ID == t.ID || !isComplete(other.Status) {
			continue
		}
		if idx[other.ID] >= myIdx {
			continue
		}
		sb.WriteString(contextBlock(other))
	}
	return sb.String()
}

func (m *ManagerLLM) decide(s *store.TeamStore) {
	for attempt := 0; attempt < managerMaxRetries; attempt++ {
		tasks := s.TasksSnapshot()
		prompt := buildManagerPrompt(tasks)

		resp, err := m.supervisor.LLM.Invoke(m.contextForDecision(), []llms.Message{
			{Role: llms.RoleSystem, Content: m.supervisor.Role + "\n" + m.supervisor.Goal},
			{Role: llms.RoleUser, Content: prompt},
		}, llms.Options{Model: m.supervisor.LLM.ModelName()})
		if err != nil {
			continue
		}

		decision := parseManagerDecision(resp.Content)
		if strings.EqualFold(decision, "DONE") {
			return
		}

		t, valid := validManagerTarget(tasks, decision)
		if !valid {
			continue
		}

		ag, ok := s.FindAgent(t.AgentID)
		if !ok {
			_ = s.UpdateTaskStatus(t.ID, status.TaskBLOCKED)
			return
		}
		live, ok := s.FindTask(t.ID)
		if !ok {
			return
		}
		_ = s.UpdateTaskStatus(t.ID, status.TaskDOING)
		m.submit(s, live, ag)
		return
	}
	_ = s.Fail(status.ErrManagerLoop, fmt.Sprintf("supervisor failed to pick a valid task in %d attempts", managerMaxRetries))
}

func (m *ManagerLLM) contextForDecision() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}

func (m *ManagerLLM) submit(s *store.TeamStore, t *task.Task, ag *agent.Agent) {
	ctxStr := m.GetContextForTask(s, t)
	m.mu.Lock()
	q := m.q
	m.mu.Unlock()
	if q == nil {
		return
	}
	taskID := t.ID
	_ = q.Submit(queue.Job{TaskID: taskID, Run: func(ctx context.Context) error {
		m.runner.RunTask(ctx, s, ag, t, ctxStr)
		return nil
	}})
}

func buildManagerPrompt(tasks []*task.Task) string {
	var sb strings.Builder
	sb.WriteString("Choose the next task to run. Reply with only its id, or DONE if every task is finished.\n")
	for _, t := range tasks {
		fmt.Fprintf(&sb, "- id=%s status=%s description=%q result=%q\n", t.ID, t.Status, t.Description, t.ResultString())
	}
	return sb.String()
}

// parseManagerDecision strips the quoting/backtick noise a chat model
// commonly wraps a short answer in.
func parseManagerDecision(content string) string {
	out := strings.TrimSpace(content)
	out = strings.Trim(out, "`\"'")
	if idx := strings.IndexAny(out, "\n\r"); idx >= 0 {
		out = out[:idx]
	}
	return strings.TrimSpace(out)
}

// validManagerTarget enforces the guard rail: the chosen id must exist,
// be non-terminal, and not be waiting on a human validation step the
// supervisor cannot satisfy itself.
func validManagerTarget(tasks []*task.Task, id string) (*task.Task, bool) {
	for _, t := range tasks {
		if t.ID != id {
			continue
		}
		if t.Status.IsTerminal() {
			return nil, false
		}
		if t.Status == status.TaskAWAITING_VALIDATION || t.Status == status.TaskBLOCKED {
			return nil, false
		}
		return t, true
	}
	return nil, false
}

func allComplete(tasks []*task.Task) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}
