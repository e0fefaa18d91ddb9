// Package team is the lifecycle façade tying configuration, wired
// components, the reactive store, and an execution strategy together
// into one runnable unit. Callers construct a Team from a
// config.TeamConfig and drive it through Start/Pause/Resume/Stop; every
// state-reading or state-changing operation delegates to the
// underlying store.TeamStore, which remains the sole shared mutable
// structure.
package team

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowcrew/flowcrew/agent"
	"github.com/flowcrew/flowcrew/authz"
	"github.com/flowcrew/flowcrew/component"
	"github.com/flowcrew/flowcrew/config"
	"github.com/flowcrew/flowcrew/reactloop"
	"github.com/flowcrew/flowcrew/store"
	"github.com/flowcrew/flowcrew/strategy"
	"github.com/flowcrew/flowcrew/task"
	"github.com/flowcrew/flowcrew/tools"
	"github.com/flowcrew/flowcrew/wlog"
)

// Error reports a failure at the team lifecycle level: construction,
// wiring, or an authorization/persistence failure that isn't a
// store.MutationError.
type Error struct {
	Component string
	Operation string
	Message   string
	Err       error
	Timestamp time.Time
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("team: %s.%s: %s: %v", e.Component, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("team: %s.%s: %s", e.Component, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs an Error stamped with the current time.
func NewError(component, operation, message string, err error) *Error {
	return &Error{Component: component, Operation: operation, Message: message, Err: err, Timestamp: time.Now()}
}

// Team assembles one config.TeamConfig into a runnable store, wiring
// every declared agent to its LLM provider and tool set and every
// declared task into the store's task list, then attaches the
// configured execution strategy.
type Team struct {
	Config  *config.TeamConfig
	Manager *component.Manager
	Store   *store.TeamStore

	// RequiredRole gates ProvideFeedback and ValidateTask when Manager
	// has a configured authz.Verifier. Its zero value allows any caller
	// that presents a valid token (or, if Manager.Verifier is nil, any
	// caller at all).
	RequiredRole authz.RequiredRole
}

// New validates cfg, builds a component.Manager from it, constructs
// every agent and task, wires the configured execution strategy, and
// returns a Team ready for Start.
func New(cfg *config.TeamConfig, toolSource tools.Source, logger *slog.Logger) (*Team, error) {
	if cfg == nil {
		return nil, NewError("Team", "New", "config cannot be nil", nil)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, NewError("Team", "New", "invalid config", err)
	}

	mgr, err := component.New(cfg, toolSource, logger)
	if err != nil {
		return nil, NewError("Team", "New", "failed to wire components", err)
	}

	st := store.New(cfg.Name, cfg.MaxConcurrency)
	st.SetLogLevel(cfg.LogLevel)

	agents := make([]*agent.Agent, 0, len(cfg.Agents))
	for name, agentCfg := range cfg.Agents {
		llmProvider, ok := mgr.LLMForAgent(name)
		if !ok {
			return nil, NewError("Team", "New", fmt.Sprintf("no LLM provider wired for agent %q", name), nil)
		}
		toolset, err := mgr.ToolsForAgent(name)
		if err != nil {
			return nil, NewError("Team", "New", fmt.Sprintf("failed to resolve tools for agent %q", name), err)
		}

		displayName := agentCfg.Name
		if displayName == "" {
			displayName = name
		}
		ag := agent.New(name, displayName, agentCfg.Role, agentCfg.Goal, agentCfg.Background, llmProvider, toolset)
		ag.MaxIterations = agentCfg.MaxIterations
		ag.ForceFinalAnswer = agentCfg.ForceFinalAnswer
		agents = append(agents, ag)
	}
	if err := st.AddAgents(agents); err != nil {
		return nil, NewError("Team", "New", "failed to register agents", err)
	}

	tasks := make([]*task.Task, 0, len(cfg.Tasks))
	for _, taskCfg := range cfg.Tasks {
		t := task.New(taskCfg.ID, taskCfg.Agent, taskCfg.Description)
		t.Name = taskCfg.Name
		t.ReferenceID = taskCfg.ReferenceID
		t.ExpectedOutput = taskCfg.ExpectedOutput
		t.DependsOn = append([]string(nil), taskCfg.DependsOn...)
		t.AllowParallelExecution = taskCfg.AllowParallelExecution
		t.IsDeliverable = taskCfg.IsDeliverable
		t.ExternalValidationRequired = taskCfg.ExternalValidationRequired
		tasks = append(tasks, t)
	}
	if err := st.AddTasks(tasks); err != nil {
		return nil, NewError("Team", "New", "failed to register tasks", err)
	}

	runner := reactloop.New()
	runner.Metrics = mgr.Metrics
	runner.Tracer = mgr.Tracer
	runner.EstimateUsage = reactloop.DefaultEstimateUsage
	var strat store.Strategy
	switch cfg.Strategy.Kind {
	case config.StrategyManagerLLM:
		supervisor, ok := st.FindAgent(cfg.Strategy.Supervisor)
		if !ok {
			return nil, NewError("Team", "New", fmt.Sprintf("supervisor agent %q not found", cfg.Strategy.Supervisor), nil)
		}
		strat = strategy.NewManagerLLM(supervisor, runner)
	default:
		strat = strategy.NewDeterministic(runner)
	}
	st.SetStrategy(strat)

	return &Team{Config: cfg, Manager: mgr, Store: st}, nil
}

// Start acquires the distributed run lock (a no-op unless Manager was
// given a real Locker), then starts the underlying store. When the
// caller doesn't supply inputs, Start first checks Manager's
// persistence store for a snapshot left by an interrupted run and, if
// one exists, resumes with its Inputs rather than starting cold. Every
// id in a persisted snapshot is redacted (see store.GetCleanedState),
// so a snapshot cannot rebuild per-task or per-agent state; resume is
// therefore limited to Inputs, the one field getCleanedState never
// touches.
func (t *Team) Start(ctx context.Context, inputs map[string]string) error {
	if _, err := t.Manager.Locker.Acquire(ctx, t.Config.Name); err != nil {
		return NewError("Team", "Start", "failed to acquire run lock", err)
	}
	if inputs == nil {
		snapshot, found, err := t.LoadSnapshot(ctx)
		if err != nil {
			t.Manager.Logger.Error("failed to load snapshot for resume", "team", t.Config.Name, "error", err)
		} else if found {
			t.Manager.Logger.Info("resuming from persisted snapshot", "team", t.Config.Name)
			inputs = snapshot.Inputs
		}
	}
	if err := t.Store.Start(inputs); err != nil {
		return NewError("Team", "Start", "failed to start workflow", err)
	}
	t.persistSnapshot(ctx)
	return nil
}

// Pause pauses the running workflow.
func (t *Team) Pause() error {
	if err := t.Store.Pause(); err != nil {
		return NewError("Team", "Pause", "failed to pause workflow", err)
	}
	return nil
}

// Resume resumes a paused workflow.
func (t *Team) Resume() error {
	if err := t.Store.Resume(); err != nil {
		return NewError("Team", "Resume", "failed to resume workflow", err)
	}
	return nil
}

// Stop stops the workflow and persists a final snapshot.
func (t *Team) Stop(ctx context.Context) error {
	if err := t.Store.Stop(); err != nil {
		return NewError("Team", "Stop", "failed to stop workflow", err)
	}
	t.persistSnapshot(ctx)
	return nil
}

// ProvideFeedback checks token against RequiredRole (when Manager has
// a Verifier configured) before forwarding to the store.
func (t *Team) ProvideFeedback(ctx context.Context, token, taskID, content string) error {
	if err := t.authorize(ctx, token); err != nil {
		return err
	}
	if err := t.Store.ProvideFeedback(taskID, content); err != nil {
		return NewError("Team", "ProvideFeedback", "failed to record feedback", err)
	}
	t.persistSnapshot(ctx)
	return nil
}

// ValidateTask checks token against RequiredRole (when Manager has a
// Verifier configured) before forwarding to the store.
func (t *Team) ValidateTask(ctx context.Context, token, taskID string) error {
	if err := t.authorize(ctx, token); err != nil {
		return err
	}
	if err := t.Store.ValidateTask(taskID); err != nil {
		return NewError("Team", "ValidateTask", "failed to validate task", err)
	}
	t.persistSnapshot(ctx)
	return nil
}

func (t *Team) authorize(ctx context.Context, token string) error {
	if t.Manager.Verifier == nil {
		return nil
	}
	claims, err := t.Manager.Verifier.Verify(ctx, token)
	if err != nil {
		return NewError("Team", "authorize", "invalid token", err)
	}
	if !t.RequiredRole.Allows(claims) {
		return NewError("Team", "authorize", "caller is not entitled to act on this team", nil)
	}
	return nil
}

// GetCleanedState returns a redacted snapshot of the team's current
// state, safe to hand to an external caller.
func (t *Team) GetCleanedState() store.CleanedState {
	return t.Store.GetCleanedState()
}

// GetWorkflowStats folds the workflow log into aggregate statistics.
func (t *Team) GetWorkflowStats() wlog.Stats {
	return t.Store.GetWorkflowStats()
}

// persistSnapshot saves the current cleaned state through Manager's
// persistence store, if one is configured. Persistence failures are
// logged, not returned: a snapshot write failing must never block the
// workflow transition that triggered it.
func (t *Team) persistSnapshot(ctx context.Context) {
	if t.Manager.Persistence == nil {
		return
	}
	snapshot, err := json.Marshal(t.GetCleanedState())
	if err != nil {
		t.Manager.Logger.Error("failed to marshal snapshot", "team", t.Config.Name, "error", err)
		return
	}
	if err := t.Manager.Persistence.Save(ctx, t.Config.Name, snapshot); err != nil {
		t.Manager.Logger.Error("failed to persist snapshot", "team", t.Config.Name, "error", err)
	}
}

// LoadSnapshot returns the most recently persisted cleaned state for
// this team, if Manager has a persistence store configured and a
// snapshot has been saved.
func (t *Team) LoadSnapshot(ctx context.Context) (store.CleanedState, bool, error) {
	if t.Manager.Persistence == nil {
		return store.CleanedState{}, false, nil
	}
	raw, found, err := t.Manager.Persistence.LoadLatest(ctx, t.Config.Name)
	if err != nil {
		return store.CleanedState{}, false, NewError("Team", "LoadSnapshot", "failed to load snapshot", err)
	}
	if !found {
		return store.CleanedState{}, false, nil
	}
	var snapshot store.CleanedState
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return store.CleanedState{}, false, NewError("Team", "LoadSnapshot", "failed to decode snapshot", err)
	}
	return snapshot, true, nil
}
