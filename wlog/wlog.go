// Package wlog implements the append-only workflow log: an immutable
// record of every status transition or observation emitted while a
// team runs, plus a pure fold over that record for workflow stats.
package wlog

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowcrew/flowcrew/status"
)

// Entry is one immutable workflow log record. Entries are never
// mutated or removed once appended; only new entries are added.
type Entry struct {
	ID          string
	Timestamp   time.Time
	Kind        status.LogKind
	AgentID     string
	TaskID      string
	Snapshot    any
	Metadata    map[string]any
	Description string
}

// Usage accumulates token counts observed for a single model.
type Usage struct {
	Model        string
	CallCount    int
	InputTokens  int
	OutputTokens int
}

// Stats is the folded projection of a run's logs produced by
// getWorkflowStats.
type Stats struct {
	Duration       time.Duration
	PerModelUsage  map[string]*Usage
	TotalTokens    int
	CallCount      int
	ErrorCount     int
	ParsingErrors  int
	IterationCount int
}

// New constructs a log entry stamped with the current time and a fresh
// id. now is injected so callers can guarantee log monotonicity under
// a single serializing writer (the store).
func New(now time.Time, kind status.LogKind, agentID, taskID string, snapshot any, metadata map[string]any, description string) Entry {
	return Entry{
		ID:          uuid.NewString(),
		Timestamp:   now,
		Kind:        kind,
		AgentID:     agentID,
		TaskID:      taskID,
		Snapshot:    snapshot,
		Metadata:    metadata,
		Description: description,
	}
}

// FoldStats reconstructs workflow statistics by folding over the log
// slice between the latest WorkflowStatusUpdate to RUNNING and the end
// of the slice. Context derivation and stats are both pure folds over
// logs by design (see DESIGN.md) rather than incrementally cached
// state, so that revision ripples never leave stale aggregates behind.
func FoldStats(entries []Entry) Stats {
	start := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Kind == status.LogWorkflowStatusUpdate {
			if s, ok := e.Metadata["status"].(status.Workflow); ok && s == status.WorkflowRUNNING {
				start = i
				break
			}
			if s, ok := e.Metadata["status"].(string); ok && s == string(status.WorkflowRUNNING) {
				start = i
				break
			}
		}
	}

	stats := Stats{PerModelUsage: map[string]*Usage{}}
	if len(entries) == 0 {
		return stats
	}

	window := entries[start:]
	stats.Duration = window[len(window)-1].Timestamp.Sub(window[0].Timestamp)

	for _, e := range window {
		switch e.Kind {
		case status.LogAgentStatusUpdate:
			switch e.Metadata["status"] {
			case status.AgentITERATION_END:
				stats.IterationCount++
			case status.AgentTHINKING_ERROR, status.AgentUSING_TOOL_ERROR:
				stats.ErrorCount++
			case status.AgentISSUES_PARSING_LLM_OUTPUT:
				stats.ParsingErrors++
			case status.AgentTHINKING_END:
				stats.CallCount++
				model, _ := e.Metadata["model"].(string)
				if model == "" {
					model = "unknown"
				}
				u := stats.PerModelUsage[model]
				if u == nil {
					u = &Usage{Model: model}
					stats.PerModelUsage[model] = u
				}
				u.CallCount++
				if in, ok := e.Metadata["inputTokens"].(int); ok {
					u.InputTokens += in
					stats.TotalTokens += in
				}
				if out, ok := e.Metadata["outputTokens"].(int); ok {
					u.OutputTokens += out
					stats.TotalTokens += out
				}
			}
		}
	}
	return stats
}
