package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcrew/flowcrew/llms"
	"github.com/flowcrew/flowcrew/status"
	"github.com/flowcrew/flowcrew/tools"
)

type stubProvider struct{}

func (stubProvider) Invoke(ctx context.Context, messages []llms.Message, opts llms.Options) (llms.Response, error) {
	return llms.Response{}, nil
}
func (stubProvider) ModelName() string { return "stub" }
func (stubProvider) Close() error      { return nil }

type stubTool struct{ name string }

func (s stubTool) Name() string             { return s.name }
func (s stubTool) Description() string      { return "stub tool" }
func (s stubTool) InputSchema() tools.Schema { return tools.Schema{Type: "object"} }
func (s stubTool) Invoke(ctx context.Context, args map[string]any) (tools.Result, error) {
	return tools.Result{Content: "ok"}, nil
}

func TestNew_DefaultsAndInitialStatus(t *testing.T) {
	ag := New("a1", "Ada", "researcher", "find things", "", stubProvider{}, nil)
	assert.Equal(t, status.AgentINITIAL, ag.Status)
	assert.Equal(t, 10, ag.MaxIterations)
	assert.Equal(t, 9, ag.ForceFinalAnswer)
}

func TestFindTool(t *testing.T) {
	ag := New("a1", "Ada", "researcher", "goal", "", stubProvider{}, []tools.Tool{stubTool{name: "search"}})
	tool, ok := ag.FindTool("search")
	require.True(t, ok)
	assert.Equal(t, "search", tool.Name())

	_, ok = ag.FindTool("missing")
	assert.False(t, ok)
}

func TestBusyLifecycle(t *testing.T) {
	ag := New("a1", "Ada", "researcher", "goal", "", stubProvider{}, nil)
	assert.False(t, ag.IsBusy("t1"))

	ag.MarkBusy("t1")
	assert.True(t, ag.IsBusy("t2"))
	assert.False(t, ag.IsBusy("t1"))
	assert.Equal(t, "t1", ag.CurrentTaskID())

	ag.MarkIdle()
	assert.False(t, ag.IsBusy("t2"))
	assert.Equal(t, "", ag.CurrentTaskID())
}

func TestReset_ClearsHistoryAndIterations(t *testing.T) {
	ag := New("a1", "Ada", "researcher", "goal", "", stubProvider{}, nil)
	ag.History = []Turn{{Role: llms.RoleUser, Content: "hi"}}
	ag.CurrentIterations = 3

	ag.Reset()
	assert.Empty(t, ag.History)
	assert.Zero(t, ag.CurrentIterations)
}

func TestClone_SharesLLMAndToolsButFreshHistory(t *testing.T) {
	tool := stubTool{name: "search"}
	ag := New("a1", "Ada", "researcher", "goal", "", stubProvider{}, []tools.Tool{tool})
	ag.MarkBusy("t1")
	ag.History = []Turn{{Role: llms.RoleUser, Content: "hi"}}

	clone := ag.Clone()
	assert.Equal(t, ag.LLM, clone.LLM)
	assert.Equal(t, ag.Tools, clone.Tools)
	assert.Empty(t, clone.History)
	assert.False(t, clone.IsBusy("anything"))
	assert.Equal(t, ag.ID, clone.ID)
}
