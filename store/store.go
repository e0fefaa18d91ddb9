// Package store implements the reactive team store: the single source
// of truth for a team's agents, tasks, logs, inputs, and workflow
// status, with selector-scoped subscriptions so that status
// transitions react into further scheduling decisions.
package store

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/flowcrew/flowcrew/agent"
	"github.com/flowcrew/flowcrew/status"
	"github.com/flowcrew/flowcrew/task"
	"github.com/flowcrew/flowcrew/wlog"
)

// Strategy is the capability set an execution strategy must expose to
// be driven by the store's Start/Stop/Resume mutators. Strategies
// receive the store explicitly on every call (the state-threaded
// shape, see DESIGN.md) rather than closing over it, and subscribe to
// task-status changes themselves via Subscribe during StartExecution.
type Strategy interface {
	StartExecution(s *TeamStore) error
	StopExecution(s *TeamStore)
	ResumeExecution(s *TeamStore)
}

// Subscription is a live selector/reaction pair registered with the
// store. Selectors are pure; if one panics, the subscription is
// isolated (logged, other subscribers unaffected) rather than crashing
// the mutation that triggered it.
type Subscription struct {
	id       int
	selector func(*TeamStore) any
	reaction func(*TeamStore)
	last     any
	hasLast  bool
}

// TeamStore is the world: the sole shared mutable structure. All
// mutations go through its exported mutator methods.
type TeamStore struct {
	mu sync.Mutex

	Name   string
	Agents []*agent.Agent
	Tasks  []*task.Task
	Logs   []wlog.Entry

	Inputs                 map[string]string
	Env                    map[string]string
	WorkflowInternalMemory map[string]any

	WorkflowStatus status.Workflow
	WorkflowResult any

	Strategy       Strategy
	Queue          any
	MaxConcurrency int

	// LogLevel mirrors the ambient slog level the team was configured
	// with; it is surfaced verbatim in GetCleanedState so a persisted
	// snapshot records the verbosity a run was observed at.
	LogLevel string

	started bool
	subs    []*Subscription
	nextSub int

	now func() time.Time
}

// New constructs an empty store. maxConcurrency defaults to 5 when 0.
func New(name string, maxConcurrency int) *TeamStore {
	if maxConcurrency == 0 {
		maxConcurrency = 5
	}
	return &TeamStore{
		Name:                   name,
		Inputs:                 map[string]string{},
		Env:                    map[string]string{},
		WorkflowInternalMemory: map[string]any{},
		WorkflowStatus:         status.WorkflowINITIAL,
		MaxConcurrency:         maxConcurrency,
		now:                    time.Now,
	}
}

// SetClock overrides the store's time source; used by tests that need
// deterministic, strictly increasing timestamps.
func (s *TeamStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetStrategy assigns the execution strategy driven by Start/Stop/
// Resume. Must be called before Start.
func (s *TeamStore) SetStrategy(strategy Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Strategy = strategy
}

// SetLogLevel records the ambient log level a run was configured with,
// surfaced later through GetCleanedState.
func (s *TeamStore) SetLogLevel(level string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LogLevel = level
}

// Subscribe registers selector/reaction with the store. The reaction
// fires synchronously, on the goroutine that committed the mutation,
// the first time selector's projection differs from its previous
// value (or immediately, on first evaluation, if selector was never
// evaluated before). Returns an unsubscribe function.
func (s *TeamStore) Subscribe(selector func(*TeamStore) any, reaction func(*TeamStore)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	sub := &Subscription{id: id, selector: selector, reaction: reaction}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, existing := range s.subs {
			if existing.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

// notify evaluates every subscription's selector against the
// post-commit state and fires reactions whose projection changed.
// Callers must hold no lock; notify takes and releases s.mu itself
// per-subscription and runs neither selector nor reaction under it, so
// both may safely call back into the store.
func (s *TeamStore) notify() {
	s.mu.Lock()
	subsCopy := append([]*Subscription(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subsCopy {
		s.evalOne(sub)
	}
}

func (s *TeamStore) evalOne(sub *Subscription) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.appendLogLocked(wlog.New(s.now(), status.LogWorkflowStatusUpdate, "", "", nil,
				map[string]any{"error": fmt.Sprintf("subscription selector panicked: %v", r)},
				"subscription selector error"))
			s.mu.Unlock()
		}
	}()

	value := sub.selector(s)
	s.mu.Lock()
	changed := !sub.hasLast || !reflect.DeepEqual(value, sub.last)
	sub.last = value
	sub.hasLast = true
	s.mu.Unlock()

	if changed {
		sub.reaction(s)
	}
}

// appendLogLocked appends entry, assuming s.mu is already held.
// workflowLogs is append-only and strictly non-decreasing in
// timestamp: entries are always stamped from the same monotonic clock
// and appended under the same lock that orders every other mutation.
func (s *TeamStore) appendLogLocked(entry wlog.Entry) {
	s.Logs = append(s.Logs, entry)
}

// FindTask returns the task with the given id, if present.
func (s *TeamStore) FindTask(id string) (*task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findTaskLocked(id)
}

func (s *TeamStore) findTaskLocked(id string) (*task.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// FindAgent returns the agent with the given id, if present.
func (s *TeamStore) FindAgent(id string) (*agent.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findAgentLocked(id)
}

func (s *TeamStore) findAgentLocked(id string) (*agent.Agent, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// TasksSnapshot returns a defensive, point-in-time copy of every task.
// Strategies use this rather than reading s.Tasks directly, since the
// store is the only structure allowed to mutate a task in place.
func (s *TeamStore) TasksSnapshot() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Task, len(s.Tasks))
	for i, t := range s.Tasks {
		out[i] = t.Clone()
	}
	return out
}

// IsAgentBusy reports whether agentID is currently DOING some task
// other than exceptTaskID.
func (s *TeamStore) IsAgentBusy(agentID, exceptTaskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.findAgentLocked(agentID)
	if !ok {
		return false
	}
	return a.IsBusy(exceptTaskID)
}

// MaxConcurrencyValue returns the configured concurrency ceiling.
func (s *TeamStore) MaxConcurrencyValue() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MaxConcurrency
}

// CurrentWorkflowStatus returns the workflow status. Iteration loops
// poll this at their iteration boundaries to observe pause/stop.
func (s *TeamStore) CurrentWorkflowStatus() status.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.WorkflowStatus
}

// InputsSnapshot returns a defensive copy of the interpolation inputs.
func (s *TeamStore) InputsSnapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.Inputs))
	for k, v := range s.Inputs {
		out[k] = v
	}
	return out
}

// AppendLog appends a log entry under the store's lock and notifies
// subscribers. Used by collaborators (the iteration loop) that need to
// record AgentStatusUpdate entries without going through a task-status
// mutator.
func (s *TeamStore) AppendLog(entry wlog.Entry) {
	s.mu.Lock()
	entry.Timestamp = s.now()
	s.appendLogLocked(entry)
	s.mu.Unlock()
	s.notify()
}

// Now returns the current time from the store's clock.
func (s *TeamStore) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}
