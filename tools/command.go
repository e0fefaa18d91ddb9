package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandToolConfig configures the sandboxing rules for CommandTool.
type CommandToolConfig struct {
	AllowedCommands  []string
	WorkingDirectory string
	MaxExecutionTime time.Duration
	EnableSandboxing bool
}

// CommandTool runs a shell command through an allow-list of base
// commands, bounded by a timeout. It is the tool an agent reaches for
// when a task's work is best expressed as an external process rather
// than an in-process function.
type CommandTool struct {
	cfg CommandToolConfig
}

// NewCommandTool builds a CommandTool, filling in secure defaults for
// anything left unset.
func NewCommandTool(cfg CommandToolConfig) *CommandTool {
	if len(cfg.AllowedCommands) == 0 {
		cfg.AllowedCommands = []string{
			"cat", "head", "tail", "ls", "find", "grep", "wc", "pwd",
			"git", "go", "curl", "echo", "date",
		}
	}
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = "./"
	}
	if cfg.MaxExecutionTime == 0 {
		cfg.MaxExecutionTime = 30 * time.Second
	}
	cfg.EnableSandboxing = true
	return &CommandTool{cfg: cfg}
}

func (t *CommandTool) Name() string        { return "execute_command" }
func (t *CommandTool) Description() string { return "Execute a shell command and capture its output" }

func (t *CommandTool) InputSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]any{
			"command":     map[string]any{"type": "string", "description": "shell command to run"},
			"working_dir": map[string]any{"type": "string", "description": "working directory, optional"},
		},
		Required: []string{"command"},
	}
}

// Invoke validates the command against the allow-list, runs it under
// MaxExecutionTime, and returns its combined stdout/stderr.
func (t *CommandTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return Result{}, fmt.Errorf("tools: command parameter is required")
	}
	workingDir, _ := args["working_dir"].(string)
	if workingDir == "" {
		workingDir = t.cfg.WorkingDirectory
	}

	if err := t.validateCommand(command); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.MaxExecutionTime)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workingDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{Content: string(output)}, fmt.Errorf("tools: command %q: %w", command, err)
	}
	return Result{Content: string(output)}, nil
}

func (t *CommandTool) validateCommand(command string) error {
	if !t.cfg.EnableSandboxing {
		return nil
	}
	base := extractBaseCommand(command)
	for _, allowed := range t.cfg.AllowedCommands {
		if base == allowed {
			return nil
		}
	}
	return fmt.Errorf("tools: command not allowed: %s", base)
}

func extractBaseCommand(command string) string {
	parts := strings.FieldsFunc(command, func(r rune) bool {
		return r == '|' || r == '>' || r == '<' || r == ';'
	})
	if len(parts) == 0 {
		return ""
	}
	fields := strings.Fields(strings.TrimSpace(parts[0]))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
