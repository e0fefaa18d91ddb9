// Package flowcrew implements a multi-agent workflow orchestration
// engine: a reactive team store, pluggable execution strategies, and
// a bounded ReAct agent iteration loop.
//
// A team is a set of agents and tasks held in a single reactive store
// (package store). Tasks move through a fixed status lexicon as an
// execution strategy (package strategy) recomputes the runnable set on
// every store change and dispatches ready tasks onto a bounded
// execution queue (package queue). Each dispatched task drives an
// agent through a bounded think-act-observe loop (package reactloop)
// until it produces a final answer, exhausts its iteration budget, or
// is paused, resumed, or aborted.
//
// # Packages
//
//   - store: the reactive team store and its atomic mutators
//   - task, agent: the data model
//   - strategy: Deterministic (sequential and dependency-graph) and
//     ManagerLLM execution strategies
//   - reactloop: the agent iteration loop
//   - queue: the bounded, first-in first-out execution queue
//   - config: YAML team configuration, environment overlay, hot reload
//   - llms: the opaque LLM provider contract and its adapters
//   - tools: the tool contract and its function, MCP, and plugin sources
//   - persistence: dialect-aware snapshot storage
//   - distlock: a distributed run lock for single-leader execution
//   - authz: JWKS-backed bearer token verification for human feedback
//   - telemetry: structured logging, metrics, and trace emit points
//   - team: the lifecycle facade tying the above together
package flowcrew
