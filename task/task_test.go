package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowcrew/flowcrew/status"
)

func TestNew_StartsInTODO(t *testing.T) {
	tsk := New("t1", "agent-1", "do the thing")
	assert.Equal(t, status.TaskTODO, tsk.Status)
	assert.Equal(t, "agent-1", tsk.AgentID)
}

func TestInterpolatedDescription_SubstitutesAndCaches(t *testing.T) {
	tsk := New("t1", "a1", "hello {name}, today is {day}")
	out := tsk.InterpolatedDescription(map[string]string{"name": "Ada", "day": "Monday"})
	assert.Equal(t, "hello Ada, today is Monday", out)

	// mutate the source description; cached value should not change until invalidated
	tsk.Description = "irrelevant"
	assert.Equal(t, out, tsk.InterpolatedDescription(map[string]string{"name": "Ada", "day": "Monday"}))

	tsk.InvalidatePlaceholderCache()
	assert.Equal(t, "irrelevant", tsk.InterpolatedDescription(nil))
}

func TestMissingPlaceholders(t *testing.T) {
	tsk := New("t1", "a1", "hello {name}, {missing}")
	missing := tsk.MissingPlaceholders(map[string]string{"name": "Ada"})
	assert.Equal(t, []string{"missing"}, missing)
}

func TestResultString_StringPassesThroughOthersMarshal(t *testing.T) {
	tsk := New("t1", "a1", "d")
	tsk.Result = "plain string"
	assert.Equal(t, "plain string", tsk.ResultString())

	tsk.Result = map[string]int{"n": 1}
	assert.Equal(t, `{"n":1}`, tsk.ResultString())

	tsk.Result = nil
	assert.Equal(t, "", tsk.ResultString())
}

func TestFeedback_AppendConsumeProcess(t *testing.T) {
	tsk := New("t1", "a1", "d")
	now := time.Now()
	tsk.AppendFeedback("please redo", now)

	pending := tsk.PendingFeedback()
	assert.Len(t, pending, 1)
	assert.Equal(t, status.FeedbackPENDING, pending[0].Status)

	tsk.ProcessPendingFeedback()
	assert.Empty(t, tsk.PendingFeedback())
	assert.Equal(t, status.FeedbackPROCESSED, tsk.FeedbackHistory[0].Status)
}

func TestClone_IsIndependentOfOriginal(t *testing.T) {
	tsk := New("t1", "a1", "d")
	tsk.DependsOn = []string{"t0"}
	tsk.AppendFeedback("f1", time.Now())

	clone := tsk.Clone()
	clone.DependsOn[0] = "changed"
	clone.FeedbackHistory[0].Content = "changed"

	assert.Equal(t, "t0", tsk.DependsOn[0])
	assert.Equal(t, "f1", tsk.FeedbackHistory[0].Content)
}
