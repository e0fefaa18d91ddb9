// Package component wires together the collaborators a team needs
// beyond the store itself: LLM providers, tools, durable persistence,
// a distributed run lock, and request authorization. Team assembles
// one Manager from a config.TeamConfig and hands its pieces to the
// packages that need them.
package component

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowcrew/flowcrew/authz"
	"github.com/flowcrew/flowcrew/config"
	"github.com/flowcrew/flowcrew/distlock"
	"github.com/flowcrew/flowcrew/llms"
	"github.com/flowcrew/flowcrew/persistence"
	"github.com/flowcrew/flowcrew/telemetry"
	"github.com/flowcrew/flowcrew/tools"
)

// Manager holds every component a team was configured to use. Fields
// left unconfigured take safe no-op defaults (NoopLocker, nil
// persistence.Store, nil authz.Verifier) so a minimal TeamConfig still
// runs.
type Manager struct {
	Config *config.TeamConfig

	LLMs  *llms.Registry
	Tools *tools.Registry

	Persistence persistence.Store
	Locker      distlock.Locker
	Verifier    authz.Verifier
	Logger      *slog.Logger

	// Metrics and Tracer are the emit points reactloop reports through;
	// neither ever feeds back into a scheduling decision.
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
}

// New builds a Manager from cfg: one LLM provider per agent's llm
// binding, registered as "<agent>-llm" with no deduplication, and
// toolSource's tools added to the tool registry, against which
// ToolsForAgent later resolves each agent's named tools. Persistence, locking, and
// authorization are left at their no-op defaults; callers that need
// them call WithPersistence/WithLocker/WithVerifier afterward.
func New(cfg *config.TeamConfig, toolSource tools.Source, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = telemetry.NewLogger(telemetry.ParseLevel(cfg.LogLevel), os.Stdout)
	}

	tracerProvider, err := telemetry.NewTracerProvider(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("component: build tracer provider: %w", err)
	}

	m := &Manager{
		Config:  cfg,
		LLMs:    llms.NewRegistry(),
		Tools:   tools.NewRegistry(),
		Locker:  distlock.NoopLocker{},
		Logger:  logger,
		Metrics: telemetry.NewMetrics(prometheus.NewRegistry()),
		Tracer:  tracerProvider.Tracer("github.com/flowcrew/flowcrew/reactloop"),
	}

	if toolSource != nil {
		if err := m.Tools.AddSource(context.Background(), toolSource); err != nil {
			return nil, fmt.Errorf("component: add tool source: %w", err)
		}
	}

	for name, agentCfg := range cfg.Agents {
		llmName := name + "-llm"
		if _, err := m.LLMs.CreateFromConfig(llmName, llms.ProviderConfig{
			Type:        agentCfg.LLM.Provider,
			Model:       agentCfg.LLM.Model,
			APIKey:      agentCfg.LLM.APIKey,
			Temperature: agentCfg.LLM.Temperature,
			MaxTokens:   agentCfg.LLM.MaxTokens,
		}); err != nil {
			return nil, fmt.Errorf("component: agent %q: %w", name, err)
		}
	}

	return m, nil
}

// WithPersistence attaches a durable snapshot store.
func (m *Manager) WithPersistence(store persistence.Store) *Manager {
	m.Persistence = store
	return m
}

// WithLocker replaces the default no-op distributed run lock.
func (m *Manager) WithLocker(locker distlock.Locker) *Manager {
	m.Locker = locker
	return m
}

// WithVerifier attaches bearer-token authorization for feedback and
// validation mutators.
func (m *Manager) WithVerifier(verifier authz.Verifier) *Manager {
	m.Verifier = verifier
	return m
}

// LLMForAgent returns the provider built for the named agent.
func (m *Manager) LLMForAgent(agentName string) (llms.Provider, bool) {
	return m.LLMs.Get(agentName + "-llm")
}

// ToolsForAgent resolves an agent's configured tool names against the
// registry, in the order the agent config lists them.
func (m *Manager) ToolsForAgent(agentName string) ([]tools.Tool, error) {
	agentCfg, ok := m.Config.Agents[agentName]
	if !ok {
		return nil, fmt.Errorf("component: unknown agent %q", agentName)
	}
	return m.Tools.Resolve(agentCfg.Tools)
}
