// Package agent defines the Agent data model: identity, role prompt
// material, an opaque LLM handle, an ordered tool set, and the private
// interaction state driven by the reactloop package.
package agent

import (
	"github.com/flowcrew/flowcrew/llms"
	"github.com/flowcrew/flowcrew/status"
	"github.com/flowcrew/flowcrew/tools"
)

// Turn is one entry of an agent's running chat history.
type Turn struct {
	Role    llms.Role
	Content string
}

// Agent is an LLM-backed worker. Zero value is not usable; construct
// with New. An agent instance handles at most one task concurrently;
// Clone produces a fresh value-copy for a second, concurrent task.
type Agent struct {
	ID         string
	Name       string
	Role       string
	Goal       string
	Background string

	LLM   llms.Provider
	Tools []tools.Tool

	Status status.Agent

	History            []Turn
	CurrentIterations  int
	MaxIterations      int
	ForceFinalAnswer   int

	// busyOnTaskID tracks which task this agent instance is currently
	// DOING, so the strategy can detect when it must clone rather than
	// reuse the agent for a second concurrently runnable task.
	busyOnTaskID string
}

const defaultMaxIterations = 10

// New constructs an Agent with the default iteration budget.
func New(id, name, role, goal, background string, llm llms.Provider, toolset []tools.Tool) *Agent {
	return &Agent{
		ID:               id,
		Name:             name,
		Role:             role,
		Goal:             goal,
		Background:       background,
		LLM:              llm,
		Tools:            toolset,
		Status:           status.AgentINITIAL,
		MaxIterations:    defaultMaxIterations,
		ForceFinalAnswer: defaultMaxIterations - 1,
	}
}

// FindTool looks up a tool by exact, case-sensitive name, per the tool
// dispatch rule in the iteration loop.
func (a *Agent) FindTool(name string) (tools.Tool, bool) {
	for _, t := range a.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// IsBusy reports whether the agent instance is currently DOING a task
// other than taskID.
func (a *Agent) IsBusy(taskID string) bool {
	return a.busyOnTaskID != "" && a.busyOnTaskID != taskID
}

// MarkBusy records that this agent instance is now driving taskID.
func (a *Agent) MarkBusy(taskID string) { a.busyOnTaskID = taskID }

// MarkIdle clears the busy marker once a task leaves DOING.
func (a *Agent) MarkIdle() { a.busyOnTaskID = "" }

// CurrentTaskID returns the task this agent instance is marked busy on
// (MarkBusy), empty before any task and after MarkIdle. The iteration loop uses this to tell
// a fresh task apart from a paused task being resumed: only the
// latter should keep History and CurrentIterations.
func (a *Agent) CurrentTaskID() string { return a.busyOnTaskID }

// Reset clears chat history and the iteration counter, used when an
// agent instance is handed a new task after finishing (or abandoning)
// a previous one.
func (a *Agent) Reset() {
	a.History = nil
	a.CurrentIterations = 0
}

// Clone produces a value-copy with a fresh chat history and iteration
// counter; the LLM handle and tool list are shared, since both are
// stateless. Used when the same agent must run two tasks in parallel
// (allowParallelExecution).
func (a *Agent) Clone() *Agent {
	c := *a
	c.History = nil
	c.CurrentIterations = 0
	c.busyOnTaskID = ""
	return &c
}

// Snapshot returns a copy of the agent whose History and Tools slices
// are copied too; ID and LLM are carried over unchanged.
// GetCleanedState does not use it.
func (a *Agent) Snapshot() *Agent {
	c := *a
	c.History = append([]Turn(nil), a.History...)
	c.Tools = append([]tools.Tool(nil), a.Tools...)
	return &c
}
