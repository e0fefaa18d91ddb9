package strategy

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/flowcrew/flowcrew/agent"
	"github.com/flowcrew/flowcrew/queue"
	"github.com/flowcrew/flowcrew/status"
	"github.com/flowcrew/flowcrew/store"
	"github.com/flowcrew/flowcrew/task"
)

// Deterministic handles both topologies named in the design: a linear
// sequence when no task declares dependsOn, and a dependency DAG
// otherwise. Which one is active is auto-detected once, at
// StartExecution, from the task list.
type Deterministic struct {
	runner TaskRunner

	mu           sync.Mutex
	hierarchical bool
	ctx          context.Context
	cancel       context.CancelFunc
	q            *queue.Queue
	unsubscribe  func()
}

// NewDeterministic constructs a Deterministic strategy that drives
// runnable tasks through runner.
func NewDeterministic(runner TaskRunner) *Deterministic {
	return &Deterministic{runner: runner}
}

var _ ExecutionStrategy = (*Deterministic)(nil)

func (d *Deterministic) GetConcurrencyForTaskQueue(s *store.TeamStore) int {
	tasks := s.TasksSnapshot()
	if !anyHasDependsOn(tasks) {
		return 1
	}
	roots := 0
	for _, t := range tasks {
		if len(t.DependsOn) == 0 {
			roots++
		}
	}
	if roots < 1 {
		roots = 1
	}
	if max := s.MaxConcurrencyValue(); roots > max {
		return max
	}
	return roots
}

func (d *Deterministic) StartExecution(s *store.TeamStore) error {
	tasks := s.TasksSnapshot()

	d.mu.Lock()
	d.hierarchical = anyHasDependsOn(tasks)
	concurrency := d.GetConcurrencyForTaskQueue(s)
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.q = queue.New(d.ctx, concurrency)
	d.mu.Unlock()

	d.unsubscribe = s.Subscribe(
		func(s *store.TeamStore) any { return snapshotStatuses(s.TasksSnapshot()) },
		func(s *store.TeamStore) { d.ExecuteFromChangedTasks(s, nil) },
	)

	d.ExecuteFromChangedTasks(s, nil)
	return nil
}

func (d *Deterministic) StopExecution(s *store.TeamStore) {
	d.mu.Lock()
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	cancel := d.cancel
	q := d.q
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if q != nil {
		_ = q.Drain()
	}
}

func (d *Deterministic) ResumeExecution(s *store.TeamStore) {
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
		d.submit(s, live, ag)
	}
}

func (d *Deterministic) ExecuteFromChangedTasks(s *store.TeamStore, changedIDs []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hierarchical {
		d.dispatchHierarchical(s)
	} else {
		d.dispatchSequential(s)
	}
}

func (d *Deterministic) GetContextForTask(s *store.TeamStore, t *task.Task) string {
	tasks := s.TasksSnapshot()
	idx := indexByID(tasks)
	byID := taskByID(tasks)
	myIdx, known := idx[t.ID]
	if !known {
		myIdx = len(tasks)
	}

	var ancestors map[string]bool
	if d.hierarchical {
		anc := transitiveAncestors(t.ID, byID)
		ancestors = make(map[string]bool, len(anc))
		for _, a := range anc {
			ancestors[a] = true
		}
	}

	var sb strings.Builder
	for _, other := range tasks {
		if other.ID == t.ID || !isComplete(other.Status) {
			continue
		}
		if d.hierarchical {
			if !ancestors[other.ID] {
				continue
			}
		} else if idx[other.ID] >= myIdx {
			continue
		}
		sb.WriteString(contextBlock(other))
	}
	return sb.String()
}

// dispatchSequential runs at most one task at a time, in declaration
// order, restarting the tail on revision.
func (d *Deterministic) dispatchSequential(s *store.TeamStore) {
	tasks := s.TasksSnapshot()
	if len(tasks) == 0 {
		return
	}
	for _, t := range tasks {
		if t.Status == status.TaskDOING {
			return
		}
	}

	for i, t := range tasks {
		if t.Status != status.TaskREVISE {
			continue
		}
		var toReset []string
		for _, later := range tasks[i+1:] {
			toReset = append(toReset, later.ID)
		}
		if len(toReset) > 0 {
			_ = s.UpdateStatusOfMultipleTasks(toReset, status.TaskTODO)
		}
		d.dispatchByID(s, t.ID)
		return
	}

	for _, t := range tasks {
		if t.Status == status.TaskTODO {
			d.dispatchByID(s, t.ID)
			return
		}
	}
}

// dispatchHierarchical implements the runnable rule, the REVISE/BLOCKED
// ripple, and the tie-break-by-declaration-order over a DAG.
func (d *Deterministic) dispatchHierarchical(s *store.TeamStore) {
	tasks := s.TasksSnapshot()
	byID := taskByID(tasks)
	dependents := buildDependents(tasks)

	var toUnblock []string
	for _, t := range tasks {
		if t.Status == status.TaskBLOCKED && allDepsComplete(t, byID) {
			toUnblock = append(toUnblock, t.ID)
		}
	}
	if len(toUnblock) > 0 {
		_ = s.UpdateStatusOfMultipleTasks(toUnblock, status.TaskTODO)
		tasks = s.TasksSnapshot()
		byID = taskByID(tasks)
	}

	for _, t := range tasks {
		if t.Status != status.TaskREVISE {
			continue
		}
		var toBlock []string
		for _, depID := range transitiveDependents(t.ID, dependents) {
			dt := byID[depID]
			if dt != nil && dt.Status != status.TaskABORTED && dt.Status != status.TaskBLOCKED {
				toBlock = append(toBlock, depID)
			}
		}
		if len(toBlock) > 0 {
			_ = s.UpdateStatusOfMultipleTasks(toBlock, status.TaskBLOCKED)
		}
		d.dispatchByID(s, t.ID)
	}

	tasks = s.TasksSnapshot()
	byID = taskByID(tasks)
	idx := indexByID(tasks)

	inFlight := 0
	busyAgents := map[string]bool{}
	for _, t := range tasks {
		if t.Status == status.TaskDOING {
			inFlight++
			busyAgents[t.AgentID] = true
		}
	}
	capacity := s.MaxConcurrencyValue() - inFlight
	if capacity <= 0 {
		return
	}

	var runnable []*task.Task
	for _, t := range tasks {
		if t.Status == status.TaskTODO && allDepsComplete(t, byID) {
			runnable = append(runnable, t)
		}
	}
	sort.Slice(runnable, func(i, j int) bool { return idx[runnable[i].ID] < idx[runnable[j].ID] })

	for _, t := range runnable {
		if capacity <= 0 {
			break
		}
		origAgent, ok := s.FindAgent(t.AgentID)
		if !ok {
			_ = s.UpdateTaskStatus(t.ID, status.TaskBLOCKED)
			continue
		}
		ag := origAgent
		if busyAgents[t.AgentID] {
			if !t.AllowParallelExecution {
				continue
			}
			ag = origAgent.Clone()
		} else {
			busyAgents[t.AgentID] = true
		}
		live, ok := s.FindTask(t.ID)
		if !ok {
			continue
		}
		d.dispatch(s, live, ag)
		capacity--
	}
}

func (d *Deterministic) dispatchByID(s *store.TeamStore, taskID string) {
	live, ok := s.FindTask(taskID)
	if !ok {
		return
	}
	ag, ok := s.FindAgent(live.AgentID)
	if !ok {
		_ = s.UpdateTaskStatus(taskID, status.TaskBLOCKED)
		return
	}
	d.dispatch(s, live, ag)
}

// dispatch marks t DOING and submits its execution to the queue.
func (d *Deterministic) dispatch(s *store.TeamStore, t *task.Task, ag *agent.Agent) {
	_ = s.UpdateTaskStatus(t.ID, status.TaskDOING)
	d.submit(s, t, ag)
}

// submit enqueues t's execution without touching its status; used by
// dispatch (status already just set) and ResumeExecution (status was
// set in the same batch mutation as the whole resumed set).
func (d *Deterministic) submit(s *store.TeamStore, t *task.Task, ag *agent.Agent) {
	ctxStr := d.GetContextForTask(s, t)
	d.mu.Lock()
	q := d.q
	d.mu.Unlock()
	if q == nil {
		return
	}
	taskID := t.ID
	_ = q.Submit(queue.Job{TaskID: taskID, Run: func(ctx context.Context) error {
		d.runner.RunTask(ctx, s, ag, t, ctxStr)
		return nil
	}})
}

func allDepsComplete(t *task.Task, byID map[string]*task.Task) bool {
	for _, dep := range t.DependsOn {
		d := byID[dep]
		if d == nil || !isComplete(d.Status) {
			return false
		}
	}
	return true
}

func anyHasDependsOn(tasks []*task.Task) bool {
	for _, t := range tasks {
		if len(t.DependsOn) > 0 {
			return true
		}
	}
	return false
}

func snapshotStatuses(tasks []*task.Task) map[string]status.Task {
	out := make(map[string]status.Task, len(tasks))
	for _, t := range tasks {
		out[t.ID] = t.Status
	}
	return out
}
