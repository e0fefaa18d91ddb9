package store

import (
	"fmt"
	"sort"

	"github.com/flowcrew/flowcrew/agent"
	"github.com/flowcrew/flowcrew/status"
	"github.com/flowcrew/flowcrew/task"
	"github.com/flowcrew/flowcrew/wlog"
)

// MutationError reports a mutator that could not run because a
// precondition was violated; the store is left unchanged.
type MutationError struct {
	Code    string
	Message string
}

func (e *MutationError) Error() string { return e.Code + ": " + e.Message }

func invalidState(msg string) error { return &MutationError{Code: status.ErrInvalidState, Message: msg} }

// AddAgents registers agents. Only valid before Start.
func (s *TeamStore) AddAgents(agents []*agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return invalidState("cannot addAgents after start")
	}
	s.Agents = append(s.Agents, agents...)
	return nil
}

// AddTasks registers tasks. Only valid before Start.
func (s *TeamStore) AddTasks(tasks []*task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return invalidState("cannot addTasks after start")
	}
	s.Tasks = append(s.Tasks, tasks...)
	return nil
}

// Start validates the dependency graph, marks the workflow RUNNING, and
// invokes Strategy.StartExecution. It does not reset task statuses,
// results, logs or agent state left by an earlier run. A second
// call while RUNNING fails with ALREADY_RUNNING; a cyclic dependsOn
// graph fails with CYCLE_IN_DEPENDENCIES and the workflow moves to
// ERRORED without ever emitting a DOING transition.
func (s *TeamStore) Start(inputs map[string]string) error {
	s.mu.Lock()
	if s.WorkflowStatus == status.WorkflowRUNNING {
		s.mu.Unlock()
		return &MutationError{Code: status.ErrAlreadyRunning, Message: "workflow already running"}
	}
	if s.Strategy == nil {
		s.mu.Unlock()
		return invalidState("no strategy configured")
	}

	if cyclic := detectCycle(s.Tasks); cyclic {
		s.WorkflowStatus = status.WorkflowERRORED
		s.appendLogLocked(wlog.New(s.now(), status.LogWorkflowStatusUpdate, "", "", nil,
			map[string]any{"status": status.WorkflowERRORED, "error": status.ErrCycleInDeps},
			"dependency cycle detected"))
		s.mu.Unlock()
		return &MutationError{Code: status.ErrCycleInDeps, Message: "dependsOn graph contains a cycle"}
	}

	if inputs != nil {
		s.Inputs = inputs
	}
	s.started = true
	s.WorkflowStatus = status.WorkflowRUNNING
	s.appendLogLocked(wlog.New(s.now(), status.LogWorkflowStatusUpdate, "", "", nil,
		map[string]any{"status": status.WorkflowRUNNING}, "workflow started"))
	strategy := s.Strategy
	s.mu.Unlock()

	s.notify()
	return strategy.StartExecution(s)
}

// Pause transitions the workflow to PAUSED. In-flight iteration loops
// observe this at their next iteration boundary.
func (s *TeamStore) Pause() error {
	s.mu.Lock()
	if s.WorkflowStatus != status.WorkflowRUNNING {
		s.mu.Unlock()
		return invalidState("pause requires RUNNING workflow")
	}
	s.WorkflowStatus = status.WorkflowPAUSED
	s.appendLogLocked(wlog.New(s.now(), status.LogWorkflowStatusUpdate, "", "", nil,
		map[string]any{"status": status.WorkflowPAUSED}, "workflow paused"))
	s.mu.Unlock()
	s.notify()
	return nil
}

// Resume transitions the workflow back to RUNNING and rebuilds work
// items for every PAUSED task via Strategy.ResumeExecution.
func (s *TeamStore) Resume() error {
	s.mu.Lock()
	if s.WorkflowStatus != status.WorkflowPAUSED {
		s.mu.Unlock()
		return invalidState("resume requires PAUSED workflow")
	}
	s.WorkflowStatus = status.WorkflowRUNNING
	s.appendLogLocked(wlog.New(s.now(), status.LogWorkflowStatusUpdate, "", "", nil,
		map[string]any{"status": status.WorkflowRUNNING}, "workflow resumed"))
	strategy := s.Strategy
	s.mu.Unlock()

	s.notify()
	strategy.ResumeExecution(s)
	return nil
}

// Stop transitions the workflow to STOPPING, asks the strategy to
// cease dispatch and drain in-flight work, then marks STOPPED.
func (s *TeamStore) Stop() error {
	s.mu.Lock()
	if s.WorkflowStatus.IsTerminal() {
		s.mu.Unlock()
		return invalidState("workflow already in a terminal state")
	}
	s.WorkflowStatus = status.WorkflowSTOPPING
	s.appendLogLocked(wlog.New(s.now(), status.LogWorkflowStatusUpdate, "", "", nil,
		map[string]any{"status": status.WorkflowSTOPPING}, "workflow stopping"))
	strategy := s.Strategy
	s.mu.Unlock()

	s.notify()
	if strategy != nil {
		strategy.StopExecution(s)
	}

	s.mu.Lock()
	for _, t := range s.Tasks {
		if !t.Status.IsTerminal() {
			t.Status = status.TaskABORTED
		}
	}
	s.WorkflowStatus = status.WorkflowSTOPPED
	s.appendLogLocked(wlog.New(s.now(), status.LogWorkflowStatusUpdate, "", "", nil,
		map[string]any{"status": status.WorkflowSTOPPED}, "workflow stopped"))
	s.mu.Unlock()
	s.notify()
	return nil
}

// UpdateTaskStatus atomically updates one task's status and emits a
// log entry.
func (s *TeamStore) UpdateTaskStatus(id string, newStatus status.Task) error {
	return s.UpdateStatusOfMultipleTasks([]string{id}, newStatus)
}

// UpdateStatusOfMultipleTasks atomically updates several tasks to the
// same status in one commit, emitting one log entry per task, then
// evaluates the workflow's overall terminal status and notifies
// subscribers exactly once.
func (s *TeamStore) UpdateStatusOfMultipleTasks(ids []string, newStatus status.Task) error {
	s.mu.Lock()
	for _, id := range ids {
		if _, ok := s.findTaskLocked(id); !ok {
			s.mu.Unlock()
			return invalidState(fmt.Sprintf("unknown task id %q", id))
		}
	}
	changed := make([]string, 0, len(ids))
	for _, id := range ids {
		t, _ := s.findTaskLocked(id)
		t.Status = newStatus
		if a, ok := s.findAgentLocked(t.AgentID); ok {
			if newStatus == status.TaskDOING {
				a.MarkBusy(t.ID)
			} else {
				a.MarkIdle()
			}
		}
		if newStatus == status.TaskDONE && t.IsDeliverable {
			s.WorkflowResult = t.Result
		}
		s.appendLogLocked(wlog.New(s.now(), status.LogTaskStatusUpdate, t.AgentID, t.ID, t.Clone(),
			map[string]any{"status": newStatus}, fmt.Sprintf("task %s -> %s", t.ID, newStatus)))
		changed = append(changed, id)
	}
	s.recomputeWorkflowStatusLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// recomputeWorkflowStatusLocked derives FINISHED/BLOCKED from task
// state, per the error handling design's closing paragraph. It also
// runs from BLOCKED, not just RUNNING, so a REVISE ripple that blocks
// a task's transitive dependents and then completes the revised task
// again can recover the workflow to RUNNING (and eventually FINISHED)
// instead of leaving it wedged at BLOCKED. Callers must hold s.mu.
func (s *TeamStore) recomputeWorkflowStatusLocked() {
	if s.WorkflowStatus != status.WorkflowRUNNING && s.WorkflowStatus != status.WorkflowBLOCKED {
		return
	}
	if len(s.Tasks) == 0 {
		return
	}

	allTerminal := true
	anyDeliverable := false
	anyBlockedOrAwaiting := false
	anyRunnableLeft := false
	for _, t := range s.Tasks {
		switch t.Status {
		case status.TaskDONE, status.TaskVALIDATED, status.TaskABORTED:
			if t.IsDeliverable {
				anyDeliverable = true
			}
		default:
			allTerminal = false
		}
		if t.Status == status.TaskBLOCKED || t.Status == status.TaskAWAITING_VALIDATION {
			anyBlockedOrAwaiting = true
		}
		if t.Status == status.TaskTODO || t.Status == status.TaskDOING || t.Status == status.TaskREVISE {
			anyRunnableLeft = true
		}
	}

	if allTerminal && anyDeliverable {
		if s.WorkflowStatus != status.WorkflowFINISHED {
			s.WorkflowStatus = status.WorkflowFINISHED
			s.appendLogLocked(wlog.New(s.now(), status.LogWorkflowStatusUpdate, "", "", nil,
				map[string]any{"status": status.WorkflowFINISHED}, "workflow finished"))
		}
		return
	}
	switch {
	case !anyRunnableLeft && anyBlockedOrAwaiting:
		if s.WorkflowStatus != status.WorkflowBLOCKED {
			s.WorkflowStatus = status.WorkflowBLOCKED
			s.appendLogLocked(wlog.New(s.now(), status.LogWorkflowStatusUpdate, "", "", nil,
				map[string]any{"status": status.WorkflowBLOCKED}, "workflow blocked"))
		}
	case anyRunnableLeft && s.WorkflowStatus == status.WorkflowBLOCKED:
		s.WorkflowStatus = status.WorkflowRUNNING
		s.appendLogLocked(wlog.New(s.now(), status.LogWorkflowStatusUpdate, "", "", nil,
			map[string]any{"status": status.WorkflowRUNNING}, "workflow unblocked"))
	}
}

// ProvideFeedback appends a PENDING feedback entry and forces the task
// to REVISE. Valid in any non-terminal workflow state.
func (s *TeamStore) ProvideFeedback(taskID, content string) error {
	s.mu.Lock()
	if s.WorkflowStatus.IsTerminal() {
		s.mu.Unlock()
		return invalidState("cannot provide feedback on a terminal workflow")
	}
	t, ok := s.findTaskLocked(taskID)
	if !ok {
		s.mu.Unlock()
		return invalidState(fmt.Sprintf("unknown task id %q", taskID))
	}
	t.AppendFeedback(content, s.now())
	t.InvalidatePlaceholderCache()
	t.Status = status.TaskREVISE
	s.appendLogLocked(wlog.New(s.now(), status.LogTaskStatusUpdate, t.AgentID, t.ID, t.Clone(),
		map[string]any{"status": status.TaskREVISE}, fmt.Sprintf("feedback provided for %s", t.ID)))
	s.mu.Unlock()

	s.notify()
	return nil
}

// ValidateTask transitions an AWAITING_VALIDATION task to VALIDATED,
// triggering the same completion ripple as DONE.
func (s *TeamStore) ValidateTask(taskID string) error {
	s.mu.Lock()
	t, ok := s.findTaskLocked(taskID)
	if !ok {
		s.mu.Unlock()
		return invalidState(fmt.Sprintf("unknown task id %q", taskID))
	}
	if t.Status != status.TaskAWAITING_VALIDATION {
		s.mu.Unlock()
		return invalidState(fmt.Sprintf("task %q is not AWAITING_VALIDATION", taskID))
	}
	t.Status = status.TaskVALIDATED
	if t.IsDeliverable {
		s.WorkflowResult = t.Result
	}
	s.appendLogLocked(wlog.New(s.now(), status.LogTaskStatusUpdate, t.AgentID, t.ID, t.Clone(),
		map[string]any{"status": status.TaskVALIDATED}, fmt.Sprintf("task %s validated", t.ID)))
	s.recomputeWorkflowStatusLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// SetTaskResult stores result on taskID under lock, without touching
// status. The iteration loop calls this immediately before the
// UpdateTaskStatus transition that actually reports completion, so the
// result is visible to any subscriber reacting to that status change.
func (s *TeamStore) SetTaskResult(taskID string, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.findTaskLocked(taskID)
	if !ok {
		return invalidState(fmt.Sprintf("unknown task id %q", taskID))
	}
	t.Result = result
	return nil
}

// ConsumePendingFeedback returns taskID's PENDING feedback entries and
// marks them PROCESSED in the same locked section, per workOnFeedback:
// a revision loop consumes feedback exactly once, at the start of its
// first iteration.
func (s *TeamStore) ConsumePendingFeedback(taskID string) []task.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.findTaskLocked(taskID)
	if !ok {
		return nil
	}
	pending := append([]task.Feedback(nil), t.PendingFeedback()...)
	t.ProcessPendingFeedback()
	return pending
}

// Fail transitions a non-terminal workflow straight to ERRORED with
// the given error code, for strategies that hit a fatal guard rail
// (the manager-LLM retry budget, for instance) outside the ordinary
// task-status ripple.
func (s *TeamStore) Fail(code, msg string) error {
	s.mu.Lock()
	if s.WorkflowStatus.IsTerminal() {
		s.mu.Unlock()
		return invalidState("workflow already in a terminal state")
	}
	s.WorkflowStatus = status.WorkflowERRORED
	s.appendLogLocked(wlog.New(s.now(), status.LogWorkflowStatusUpdate, "", "", nil,
		map[string]any{"status": status.WorkflowERRORED, "error": code}, msg))
	s.mu.Unlock()
	s.notify()
	return nil
}

// detectCycle validates the dependsOn graph via DFS, per the design
// note to store adjacency lists (task ids) rather than pointers.
func detectCycle(tasks []*task.Task) bool {
	byID := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))

	var visit func(id string) bool
	visit = func(id string) bool {
		switch color[id] {
		case gray:
			return true
		case black:
			return false
		}
		color[id] = gray
		t := byID[id]
		if t != nil {
			deps := append([]string(nil), t.DependsOn...)
			sort.Strings(deps)
			for _, dep := range deps {
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white && visit(id) {
			return true
		}
	}
	return false
}
