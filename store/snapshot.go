package store

import (
	"time"

	"github.com/flowcrew/flowcrew/status"
	"github.com/flowcrew/flowcrew/task"
	"github.com/flowcrew/flowcrew/wlog"
)

// Redacted is the sentinel that replaces ids, secrets, and
// time-dependent values in a CleanedState; GetCleanedState lists which
// fields it covers and which it passes through.
const Redacted = "[REDACTED]"

// CleanedAgent is a redacted, read-only projection of an agent for
// external consumption: no LLM handle, no tool list, no in-flight
// busy marker, and an ID that always holds Redacted.
type CleanedAgent struct {
	ID     string
	Name   string
	Role   string
	Status status.Agent
}

// CleanedTask is a redacted, read-only projection of a task.
type CleanedTask struct {
	ID              string
	Name            string
	Description     string
	AgentID         string
	DependsOn       []string
	IsDeliverable   bool
	Status          status.Task
	FeedbackHistory []task.Feedback
	Result          any
}

// CleanedLogEntry is a redacted projection of a wlog.Entry: id and
// timestamp are string fields here (rather than wlog.Entry's time.Time)
// precisely so they can carry Redacted instead of a real value.
type CleanedLogEntry struct {
	ID          string
	Timestamp   string
	Kind        status.LogKind
	AgentID     string
	TaskID      string
	Snapshot    any
	Metadata    map[string]any
	Description string
}

// CleanedState is the externally visible snapshot returned by
// GetCleanedState, matching the top-level field list of the persisted
// workflow state contract exactly: no internal memory, no LLM handles,
// no strategy or queue handles, and ids, secrets, and time-dependent
// fields replaced with Redacted as GetCleanedState describes.
type CleanedState struct {
	WorkflowStatus  status.Workflow
	WorkflowResult  any
	Name            string
	Agents          []CleanedAgent
	Tasks           []CleanedTask
	WorkflowLogs    []CleanedLogEntry
	Inputs          map[string]string
	Env             map[string]string
	WorkflowContext map[string]any
	LogLevel        string
}

// GetCleanedState returns a redacted snapshot safe to hand to an
// external caller (API response, UI, persisted blob). WorkflowInternalMemory
// is exposed as WorkflowContext, since it holds only derived scratch
// state, not credentials. Agent, task and log-entry ids, task and log
// AgentIDs, log TaskIDs, every Env value, log timestamps, and
// time-dependent metadata values (see redactMetadata) are replaced with
// Redacted, so a persisted snapshot cannot be used to reconstruct
// per-task state by id. Passed through unredacted: the task ids in
// CleanedTask.DependsOn, the timestamps in CleanedTask.FeedbackHistory,
// and each log entry's Snapshot, a copy of the task taken at emission
// time that keeps its real id, agent id and feedback timestamps.
func (s *TeamStore) GetCleanedState() CleanedState {
	s.mu.Lock()
	defer s.mu.Unlock()

	agents := make([]CleanedAgent, 0, len(s.Agents))
	for _, a := range s.Agents {
		agents = append(agents, CleanedAgent{ID: Redacted, Name: a.Name, Role: a.Role, Status: a.Status})
	}

	tasks := make([]CleanedTask, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		tasks = append(tasks, CleanedTask{
			ID:              Redacted,
			Name:            t.Name,
			Description:     t.Description,
			AgentID:         Redacted,
			DependsOn:       append([]string(nil), t.DependsOn...),
			IsDeliverable:   t.IsDeliverable,
			Status:          t.Status,
			FeedbackHistory: append([]task.Feedback(nil), t.FeedbackHistory...),
			Result:          t.Result,
		})
	}

	logs := make([]CleanedLogEntry, 0, len(s.Logs))
	for _, e := range s.Logs {
		logs = append(logs, CleanedLogEntry{
			ID:          Redacted,
			Timestamp:   Redacted,
			Kind:        e.Kind,
			AgentID:     Redacted,
			TaskID:      Redacted,
			Snapshot:    e.Snapshot,
			Metadata:    redactMetadata(e.Metadata),
			Description: e.Description,
		})
	}

	inputs := make(map[string]string, len(s.Inputs))
	for k, v := range s.Inputs {
		inputs[k] = v
	}

	env := make(map[string]string, len(s.Env))
	for k := range s.Env {
		env[k] = Redacted
	}

	ctx := make(map[string]any, len(s.WorkflowInternalMemory))
	for k, v := range s.WorkflowInternalMemory {
		ctx[k] = v
	}

	return CleanedState{
		WorkflowStatus:  s.WorkflowStatus,
		WorkflowResult:  s.WorkflowResult,
		Name:            s.Name,
		Agents:          agents,
		Tasks:           tasks,
		WorkflowLogs:    logs,
		Inputs:          inputs,
		Env:             env,
		WorkflowContext: ctx,
		LogLevel:        s.LogLevel,
	}
}

// redactMetadata copies md, replacing any time.Time or time.Duration
// value, and any value keyed under a well-known time-dependent name,
// with Redacted. Every other key (in particular "status", which the
// reactloop and strategy log entries rely on) passes through
// untouched.
func redactMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		switch v.(type) {
		case time.Time, time.Duration:
			out[k] = Redacted
			continue
		}
		switch k {
		case "timestamp", "duration", "startTime", "endTime":
			out[k] = Redacted
		default:
			out[k] = v
		}
	}
	return out
}

// GetWorkflowStats folds the workflow log into aggregate statistics.
// The fold is a pure function of Logs (see wlog.FoldStats), so no
// incremental counters need to be kept in sync by the mutators above.
func (s *TeamStore) GetWorkflowStats() wlog.Stats {
	s.mu.Lock()
	logs := append([]wlog.Entry(nil), s.Logs...)
	s.mu.Unlock()
	return wlog.FoldStats(logs)
}
