// Package config provides configuration types and utilities for the
// team orchestration engine.
// This file contains the main configuration entry point: loading a
// TeamConfig from YAML, expanding environment variables, and applying
// defaults and validation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads a TeamConfig from a YAML file, expands environment
// variables, fills in defaults, and validates the result.
func LoadConfig(filePath string) (*TeamConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filePath, err)
	}
	cfg, err := LoadConfigFromString(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", filePath, err)
	}
	return cfg, nil
}

// LoadConfigFromString loads a TeamConfig from a YAML string, expands
// environment variables, fills in defaults, and validates the result.
func LoadConfigFromString(yamlContent string) (*TeamConfig, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	expanded := ExpandEnvVarsInData(raw)

	// Round-trip through yaml.Marshal so ExpandEnvVarsInData's generic
	// map[string]interface{} tree unmarshals cleanly into TeamConfig's
	// typed fields via the normal yaml tags.
	normalized, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}

	var cfg TeamConfig
	if err := yaml.Unmarshal(normalized, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// GetAgent returns an agent configuration by name.
func (c *TeamConfig) GetAgent(name string) (*AgentConfig, bool) {
	a, exists := c.Agents[name]
	return &a, exists
}

// GetTask returns a task configuration by id.
func (c *TeamConfig) GetTask(id string) (*TaskConfig, bool) {
	for _, t := range c.Tasks {
		if t.ID == id {
			return &t, true
		}
	}
	return nil, false
}

// ListAgents returns the names of all declared agents.
func (c *TeamConfig) ListAgents() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	return names
}

// ListTasks returns the ids of all declared tasks, in declaration order.
func (c *TeamConfig) ListTasks() []string {
	ids := make([]string, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
