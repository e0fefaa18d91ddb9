// Package task defines the Task data model: a unit of work owned by a
// single agent, optionally dependent on other tasks, carrying its own
// feedback history and result.
package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flowcrew/flowcrew/status"
)

// Feedback is a single, immutable human-in-the-loop feedback record.
// Only its Status may change after it is appended (PENDING → PROCESSED).
type Feedback struct {
	Content   string
	Status    status.Feedback
	Timestamp time.Time
}

// Task is a unit of work. Zero value is not usable; construct with New.
type Task struct {
	ID                         string
	Name                       string
	ReferenceID                string
	Description                string
	ExpectedOutput             string
	AgentID                    string
	DependsOn                  []string
	AllowParallelExecution     bool
	IsDeliverable              bool
	ExternalValidationRequired bool
	Status                     status.Task
	FeedbackHistory            []Feedback
	Result                     any

	interpolated      string
	interpolatedCache bool
}

// New constructs a Task in its initial TODO status.
func New(id, agentID, description string) *Task {
	return &Task{
		ID:          id,
		AgentID:     agentID,
		Description: description,
		Status:      status.TaskTODO,
	}
}

// InterpolatedDescription substitutes {name} placeholders from inputs
// into the description. Missing placeholders are left literal, and the
// caller is expected to log the warning named in the external
// interface contract. The result is cached: interpolation is a pure
// function of Description and a given inputs map, and re-running it on
// every context assembly would be wasted work.
func (t *Task) InterpolatedDescription(inputs map[string]string) string {
	if t.interpolatedCache {
		return t.interpolated
	}
	out := t.Description
	for name, value := range inputs {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	t.interpolated = out
	t.interpolatedCache = true
	return out
}

// InvalidatePlaceholderCache clears the interpolation cache, used when
// a task is reset for revision and its inputs may have changed.
func (t *Task) InvalidatePlaceholderCache() {
	t.interpolatedCache = false
	t.interpolated = ""
}

// MissingPlaceholders reports which {name} placeholders in Description
// have no corresponding entry in inputs.
func (t *Task) MissingPlaceholders(inputs map[string]string) []string {
	var missing []string
	rest := t.Description
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			break
		}
		name := rest[start+1 : start+end]
		if _, ok := inputs[name]; !ok {
			missing = append(missing, name)
		}
		rest = rest[start+end+1:]
	}
	return missing
}

// ResultString serializes Result the way context assembly requires:
// strings pass through unchanged, everything else is canonical JSON.
func (t *Task) ResultString() string {
	if t.Result == nil {
		return ""
	}
	if s, ok := t.Result.(string); ok {
		return s
	}
	b, err := json.Marshal(t.Result)
	if err != nil {
		return fmt.Sprintf("%v", t.Result)
	}
	return string(b)
}

// AppendFeedback appends a new PENDING feedback entry. Feedback entries
// are immutable once appended; only ProcessPendingFeedback may change
// their Status field.
func (t *Task) AppendFeedback(content string, now time.Time) {
	t.FeedbackHistory = append(t.FeedbackHistory, Feedback{
		Content:   content,
		Status:    status.FeedbackPENDING,
		Timestamp: now,
	})
}

// PendingFeedback returns every feedback entry still PENDING.
func (t *Task) PendingFeedback() []Feedback {
	var pending []Feedback
	for _, f := range t.FeedbackHistory {
		if f.Status == status.FeedbackPENDING {
			pending = append(pending, f)
		}
	}
	return pending
}

// ProcessPendingFeedback marks every currently PENDING entry PROCESSED.
// It is the only mutation ever applied to an already-appended entry.
func (t *Task) ProcessPendingFeedback() {
	for i := range t.FeedbackHistory {
		if t.FeedbackHistory[i].Status == status.FeedbackPENDING {
			t.FeedbackHistory[i].Status = status.FeedbackPROCESSED
		}
	}
}

// Clone returns a value-copy of the task suitable for redacted
// snapshotting; slices are copied so mutating the clone never affects
// the original.
func (t *Task) Clone() *Task {
	c := *t
	c.DependsOn = append([]string(nil), t.DependsOn...)
	c.FeedbackHistory = append([]Feedback(nil), t.FeedbackHistory...)
	return &c
}
