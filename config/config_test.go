package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
name: research-team
agents:
  writer:
    role: writer
    goal: write the report
    llm:
      provider: anthropic
      model: claude-3
  reviewer:
    role: reviewer
    goal: review the report
    llm:
      provider: openai
      model: gpt-4o
tasks:
  - id: draft
    description: draft the report
    agent: writer
  - id: review
    description: review {draft}
    agent: reviewer
    depends_on: [draft]
    is_deliverable: true
`

func TestLoadConfigFromString_ValidTeam(t *testing.T) {
	cfg, err := LoadConfigFromString(validYAML)
	require.NoError(t, err)

	assert.Equal(t, "research-team", cfg.Name)
	assert.Equal(t, defaultMaxConcurrency, cfg.MaxConcurrency)
	assert.Equal(t, StrategyDeterministic, cfg.Strategy.Kind)
	assert.Len(t, cfg.Agents, 2)
	assert.Len(t, cfg.Tasks, 2)

	writer := cfg.Agents["writer"]
	assert.Equal(t, defaultMaxIterations, writer.MaxIterations)
	assert.Equal(t, defaultMaxIterations-1, writer.ForceFinalAnswer)
	assert.Equal(t, defaultTimeoutSeconds, writer.LLM.TimeoutSeconds)
}

func TestLoadConfigFromString_ExpandsEnvVars(t *testing.T) {
	require.NoError(t, os.Setenv("FLOWCREW_TEST_KEY", "secret-value"))
	defer os.Unsetenv("FLOWCREW_TEST_KEY")

	yaml := `
name: t
agents:
  a:
    role: r
    goal: g
    llm:
      provider: anthropic
      model: claude-3
      api_key: ${FLOWCREW_TEST_KEY}
tasks:
  - id: t1
    description: d
    agent: a
`
	cfg, err := LoadConfigFromString(yaml)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", cfg.Agents["a"].LLM.APIKey)
}

func TestValidate_RejectsUnknownAgentReference(t *testing.T) {
	yaml := `
name: t
agents:
  a:
    role: r
    goal: g
    llm:
      provider: anthropic
      model: claude-3
tasks:
  - id: t1
    description: d
    agent: unknown
`
	_, err := LoadConfigFromString(yaml)
	assert.Error(t, err)
}

func TestValidate_RejectsUnknownDependency(t *testing.T) {
	yaml := `
name: t
agents:
  a:
    role: r
    goal: g
    llm:
      provider: anthropic
      model: claude-3
tasks:
  - id: t1
    description: d
    agent: a
    depends_on: [nope]
`
	_, err := LoadConfigFromString(yaml)
	assert.Error(t, err)
}

func TestValidate_ManagerLLMRequiresSupervisor(t *testing.T) {
	yaml := `
name: t
strategy:
  kind: manager_llm
agents:
  a:
    role: r
    goal: g
    llm:
      provider: anthropic
      model: claude-3
tasks:
  - id: t1
    description: d
    agent: a
`
	_, err := LoadConfigFromString(yaml)
	assert.Error(t, err)
}

func TestValidate_RejectsUnknownLLMProvider(t *testing.T) {
	yaml := `
name: t
agents:
  a:
    role: r
    goal: g
    llm:
      provider: made-up
      model: x
tasks:
  - id: t1
    description: d
    agent: a
`
	_, err := LoadConfigFromString(yaml)
	assert.Error(t, err)
}

func TestGetAgentGetTaskListAgentsListTasks(t *testing.T) {
	cfg, err := LoadConfigFromString(validYAML)
	require.NoError(t, err)

	agent, ok := cfg.GetAgent("writer")
	require.True(t, ok)
	assert.Equal(t, "writer", agent.Role)

	_, ok = cfg.GetAgent("missing")
	assert.False(t, ok)

	task, ok := cfg.GetTask("review")
	require.True(t, ok)
	assert.True(t, task.IsDeliverable)

	assert.ElementsMatch(t, []string{"writer", "reviewer"}, cfg.ListAgents())
	assert.Equal(t, []string{"draft", "review"}, cfg.ListTasks())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}
