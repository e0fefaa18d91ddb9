// Package config provides configuration types and utilities for the
// team orchestration engine.
package config

import "fmt"

// TeamConfig is the top-level declarative description of a team: its
// agents, its tasks, and the execution strategy that schedules them.
type TeamConfig struct {
	Version        string                 `yaml:"version,omitempty"`
	Name           string                 `yaml:"name"`
	Description    string                 `yaml:"description,omitempty"`
	MaxConcurrency int                    `yaml:"max_concurrency,omitempty"`
	Strategy       StrategyConfig         `yaml:"strategy,omitempty"`
	Agents         map[string]AgentConfig `yaml:"agents"`
	Tasks          []TaskConfig           `yaml:"tasks"`
	Inputs         map[string]string      `yaml:"inputs,omitempty"`
	// LogLevel selects the ambient slog level ("debug", "info", "warn",
	// "error"); unrecognized or empty values fall back to warn.
	LogLevel string `yaml:"log_level,omitempty"`
}

// StrategyConfig selects and parameterizes an execution strategy.
type StrategyConfig struct {
	// Kind is "deterministic" (default) or "manager_llm".
	Kind string `yaml:"kind,omitempty"`
	// Supervisor names the agent driving decisions under manager_llm.
	Supervisor string `yaml:"supervisor,omitempty"`
}

const (
	StrategyDeterministic = "deterministic"
	StrategyManagerLLM    = "manager_llm"
)

// AgentConfig declares one agent's identity, prompt material, LLM
// binding, and tool set.
type AgentConfig struct {
	Name             string            `yaml:"name,omitempty"`
	Role             string            `yaml:"role"`
	Goal             string            `yaml:"goal"`
	Background       string            `yaml:"background,omitempty"`
	LLM              LLMProviderConfig `yaml:"llm"`
	Tools            []string          `yaml:"tools,omitempty"`
	MaxIterations    int               `yaml:"max_iterations,omitempty"`
	ForceFinalAnswer int               `yaml:"force_final_answer,omitempty"`
}

// LLMProviderConfig binds an agent to a concrete LLM adapter.
type LLMProviderConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key,omitempty"`
	BaseURL        string  `yaml:"base_url,omitempty"`
	Temperature    float64 `yaml:"temperature,omitempty"`
	MaxTokens      int     `yaml:"max_tokens,omitempty"`
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"`
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// TaskConfig declares one unit of work and its place in the graph.
type TaskConfig struct {
	ID                         string   `yaml:"id"`
	Name                       string   `yaml:"name,omitempty"`
	ReferenceID                string   `yaml:"reference_id,omitempty"`
	Description                string   `yaml:"description"`
	ExpectedOutput             string   `yaml:"expected_output,omitempty"`
	Agent                      string   `yaml:"agent"`
	DependsOn                  []string `yaml:"depends_on,omitempty"`
	AllowParallelExecution     bool     `yaml:"allow_parallel_execution,omitempty"`
	IsDeliverable              bool     `yaml:"is_deliverable,omitempty"`
	ExternalValidationRequired bool     `yaml:"external_validation_required,omitempty"`
}

const (
	defaultMaxConcurrency = 5
	defaultMaxIterations  = 10
	defaultTimeoutSeconds = 60
)

// SetDefaults fills in every unset field with its documented default.
func (c *TeamConfig) SetDefaults() {
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Strategy.Kind == "" {
		c.Strategy.Kind = StrategyDeterministic
	}
	if c.Inputs == nil {
		c.Inputs = map[string]string{}
	}
	for name, a := range c.Agents {
		a.SetDefaults()
		c.Agents[name] = a
	}
}

// SetDefaults fills in an agent's unset iteration and LLM tuning.
func (a *AgentConfig) SetDefaults() {
	if a.MaxIterations == 0 {
		a.MaxIterations = defaultMaxIterations
	}
	if a.ForceFinalAnswer == 0 {
		a.ForceFinalAnswer = a.MaxIterations - 1
	}
	if a.LLM.TimeoutSeconds == 0 {
		a.LLM.TimeoutSeconds = defaultTimeoutSeconds
	}
}

// Validate checks structural well-formedness: every task names a
// declared agent, every dependsOn edge names a declared task, and the
// manager_llm strategy names a declared supervisor. It does not detect
// dependency cycles; store.Start does that at run time against the
// live task list.
func (c *TeamConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name is required")
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("config: at least one agent is required")
	}
	if len(c.Tasks) == 0 {
		return fmt.Errorf("config: at least one task is required")
	}

	for name, a := range c.Agents {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("config: agent %q: %w", name, err)
		}
	}

	taskIDs := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.ID == "" {
			return fmt.Errorf("config: task with empty id")
		}
		if taskIDs[t.ID] {
			return fmt.Errorf("config: duplicate task id %q", t.ID)
		}
		taskIDs[t.ID] = true
	}
	for _, t := range c.Tasks {
		if err := t.Validate(c.Agents); err != nil {
			return fmt.Errorf("config: task %q: %w", t.ID, err)
		}
		for _, dep := range t.DependsOn {
			if !taskIDs[dep] {
				return fmt.Errorf("config: task %q depends on unknown task %q", t.ID, dep)
			}
		}
	}

	switch c.Strategy.Kind {
	case "", StrategyDeterministic:
	case StrategyManagerLLM:
		if c.Strategy.Supervisor == "" {
			return fmt.Errorf("config: strategy manager_llm requires a supervisor agent")
		}
		if _, ok := c.Agents[c.Strategy.Supervisor]; !ok {
			return fmt.Errorf("config: strategy supervisor %q is not a declared agent", c.Strategy.Supervisor)
		}
	default:
		return fmt.Errorf("config: unknown strategy kind %q", c.Strategy.Kind)
	}

	return nil
}

// Validate checks that an agent names a role, a goal, and an LLM
// provider.
func (a *AgentConfig) Validate() error {
	if a.Role == "" {
		return fmt.Errorf("role is required")
	}
	if a.Goal == "" {
		return fmt.Errorf("goal is required")
	}
	return a.LLM.Validate()
}

// Validate checks that an LLM binding names a known provider and model.
func (l *LLMProviderConfig) Validate() error {
	switch l.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown llm provider %q", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	return nil
}

// Validate checks that a task names a description and a declared agent.
func (t *TaskConfig) Validate(agents map[string]AgentConfig) error {
	if t.Description == "" {
		return fmt.Errorf("description is required")
	}
	if t.Agent == "" {
		return fmt.Errorf("agent is required")
	}
	if _, ok := agents[t.Agent]; !ok {
		return fmt.Errorf("agent %q is not declared", t.Agent)
	}
	return nil
}
