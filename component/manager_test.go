package component

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcrew/flowcrew/authz"
	"github.com/flowcrew/flowcrew/config"
	"github.com/flowcrew/flowcrew/distlock"
	"github.com/flowcrew/flowcrew/tools"
)

func testConfig() *config.TeamConfig {
	cfg := &config.TeamConfig{
		Name: "t",
		Agents: map[string]config.AgentConfig{
			"writer": {
				Role:  "writer",
				Goal:  "write",
				LLM:   config.LLMProviderConfig{Provider: "anthropic", Model: "claude-3"},
				Tools: []string{"execute_command"},
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestNew_WiresLLMPerAgent(t *testing.T) {
	src := tools.NewLocalSource("s")
	require.NoError(t, src.Register(tools.NewCommandTool(tools.CommandToolConfig{})))

	mgr, err := New(testConfig(), src, nil)
	require.NoError(t, err)

	provider, ok := mgr.LLMForAgent("writer")
	require.True(t, ok)
	assert.Equal(t, "claude-3", provider.ModelName())
}

func TestNew_UnknownProviderFails(t *testing.T) {
	cfg := testConfig()
	a := cfg.Agents["writer"]
	a.LLM.Provider = "made-up"
	cfg.Agents["writer"] = a

	_, err := New(cfg, nil, nil)
	assert.Error(t, err)
}

func TestToolsForAgent_ResolvesConfiguredNames(t *testing.T) {
	src := tools.NewLocalSource("s")
	require.NoError(t, src.Register(tools.NewCommandTool(tools.CommandToolConfig{})))

	mgr, err := New(testConfig(), src, nil)
	require.NoError(t, err)

	resolved, err := mgr.ToolsForAgent("writer")
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
	assert.Equal(t, "execute_command", resolved[0].Name())
}

func TestToolsForAgent_UnknownAgent(t *testing.T) {
	mgr, err := New(testConfig(), nil, nil)
	require.NoError(t, err)

	_, err = mgr.ToolsForAgent("missing")
	assert.Error(t, err)
}

func TestNew_WiresLoggerMetricsAndTracer(t *testing.T) {
	mgr, err := New(testConfig(), nil, nil)
	require.NoError(t, err)

	assert.NotNil(t, mgr.Logger)
	require.NotNil(t, mgr.Metrics)
	assert.NotNil(t, mgr.Metrics.IterationsTotal)
	assert.NotNil(t, mgr.Tracer)
}

func TestNew_KeepsCallerProvidedLogger(t *testing.T) {
	custom := slog.Default()
	mgr, err := New(testConfig(), nil, custom)
	require.NoError(t, err)
	assert.Equal(t, custom, mgr.Logger)
}

func TestWithers_AttachCollaborators(t *testing.T) {
	mgr, err := New(testConfig(), nil, nil)
	require.NoError(t, err)

	locker := distlock.NoopLocker{}
	mgr.WithLocker(locker).WithVerifier(nil).WithPersistence(nil)
	assert.Equal(t, locker, mgr.Locker)
	var wantVerifier authz.Verifier
	assert.Equal(t, wantVerifier, mgr.Verifier)
}
