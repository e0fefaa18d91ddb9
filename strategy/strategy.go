// Package strategy implements pluggable execution strategies: the
// scheduler that decides which tasks become runnable as the team
// store's task statuses change. Strategies never touch a Task or
// Agent field directly; every effect goes through the store's atomic
// mutators, per the design note that the store is the sole shared
// mutable structure.
package strategy

import (
	"context"

	"github.com/flowcrew/flowcrew/agent"
	"github.com/flowcrew/flowcrew/status"
	"github.com/flowcrew/flowcrew/store"
	"github.com/flowcrew/flowcrew/task"
)

// TaskRunner drives a single task to a terminal or paused status. It
// is the seam between a strategy (which decides *when*) and the agent
// iteration loop (which decides *how*); implemented by reactloop.Loop.
// RunTask is expected to report its outcome purely by calling the
// store's mutators (UpdateTaskStatus, and so on) — it has no return
// value because the queue treats every job as fire-and-forget.
type TaskRunner interface {
	RunTask(ctx context.Context, s *store.TeamStore, ag *agent.Agent, t *task.Task, taskContext string)
}

// ExecutionStrategy is the full capability set of a scheduler, per the
// design note's "capability set, not inheritance" decision.
// store.Strategy is the narrow slice the store itself calls; the
// remaining methods are used internally and by tests.
type ExecutionStrategy interface {
	store.Strategy
	GetConcurrencyForTaskQueue(s *store.TeamStore) int
	ExecuteFromChangedTasks(s *store.TeamStore, changedIDs []string)
	GetContextForTask(s *store.TeamStore, t *task.Task) string
}

func isComplete(s status.Task) bool {
	return s == status.TaskDONE || s == status.TaskVALIDATED
}

// buildDependents returns, for every task id, the ids of tasks that
// declare it directly in their own dependsOn list.
func buildDependents(tasks []*task.Task) map[string][]string {
	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}
	return dependents
}

// transitiveDependents walks dependents from id outward, breadth
// first, returning every task transitively depending on id.
func transitiveDependents(id string, dependents map[string][]string) []string {
	seen := map[string]bool{}
	queue := append([]string(nil), dependents[id]...)
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		queue = append(queue, dependents[cur]...)
	}
	return out
}

// transitiveAncestors walks dependsOn inward from id, returning every
// task id is transitively dependent on.
func transitiveAncestors(id string, byID map[string]*task.Task) []string {
	seen := map[string]bool{}
	var out []string
	var visit func(string)
	visit = func(cur string) {
		t, ok := byID[cur]
		if !ok {
			return
		}
		for _, dep := range t.DependsOn {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			visit(dep)
		}
	}
	visit(id)
	return out
}

func taskByID(tasks []*task.Task) map[string]*task.Task {
	byID := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	return byID
}

// indexByID maps task id to its declaration-order index, used for
// every tie-break in this package.
func indexByID(tasks []*task.Task) map[string]int {
	idx := make(map[string]int, len(tasks))
	for i, t := range tasks {
		idx[t.ID] = i
	}
	return idx
}

// contextBlock renders one prior task's contribution to another
// task's aggregated context.
func contextBlock(t *task.Task) string {
	return "Task: " + t.Description + "\nResult: " + t.ResultString() + "\n"
}
