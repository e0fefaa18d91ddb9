package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SearchReplaceConfig bounds SearchReplaceTool's blast radius.
type SearchReplaceConfig struct {
	MaxReplacements  int
	CreateBackup     bool
	WorkingDirectory string
}

// SearchReplaceTool replaces exact text within a single file, refusing
// an ambiguous match unless the caller opts into replace_all.
type SearchReplaceTool struct {
	cfg SearchReplaceConfig
}

func NewSearchReplaceTool(cfg SearchReplaceConfig) *SearchReplaceTool {
	if cfg.MaxReplacements == 0 {
		cfg.MaxReplacements = 100
	}
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = "./"
	}
	return &SearchReplaceTool{cfg: cfg}
}

func (t *SearchReplaceTool) Name() string { return "search_replace" }
func (t *SearchReplaceTool) Description() string {
	return "Replace exact text in a file, preserving formatting"
}

func (t *SearchReplaceTool) InputSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]any{
			"path":        map[string]any{"type": "string"},
			"old_string":  map[string]any{"type": "string"},
			"new_string":  map[string]any{"type": "string"},
			"replace_all": map[string]any{"type": "boolean"},
		},
		Required: []string{"path", "old_string", "new_string"},
	}
}

func (t *SearchReplaceTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	path, _ := args["path"].(string)
	oldString, _ := args["old_string"].(string)
	newString, hasNew := args["new_string"].(string)
	if path == "" || oldString == "" || !hasNew {
		return Result{}, fmt.Errorf("tools: path, old_string, and new_string are required")
	}
	replaceAll, _ := args["replace_all"].(bool)

	if err := t.validatePath(path); err != nil {
		return Result{}, err
	}
	fullPath := filepath.Join(t.cfg.WorkingDirectory, path)

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return Result{}, fmt.Errorf("tools: read %q: %w", fullPath, err)
	}
	original := string(content)

	count := strings.Count(original, oldString)
	if count == 0 {
		return Result{}, fmt.Errorf("tools: old_string not found in %s", path)
	}
	if !replaceAll && count > 1 {
		return Result{}, fmt.Errorf("tools: old_string appears %d times in %s, use replace_all", count, path)
	}
	if count > t.cfg.MaxReplacements {
		return Result{}, fmt.Errorf("tools: %d replacements exceeds max %d", count, t.cfg.MaxReplacements)
	}

	var newContent string
	replaced := 1
	if replaceAll {
		newContent = strings.ReplaceAll(original, oldString, newString)
		replaced = count
	} else {
		newContent = strings.Replace(original, oldString, newString, 1)
	}

	if t.cfg.CreateBackup {
		if err := os.WriteFile(fullPath+".bak", content, 0644); err != nil {
			return Result{}, fmt.Errorf("tools: write backup for %q: %w", fullPath, err)
		}
	}
	if err := os.WriteFile(fullPath, []byte(newContent), 0644); err != nil {
		return Result{}, fmt.Errorf("tools: write %q: %w", fullPath, err)
	}

	return Result{Content: fmt.Sprintf("replaced %d occurrence(s) in %s", replaced, path)}, nil
}

func (t *SearchReplaceTool) validatePath(path string) error {
	if filepath.IsAbs(path) {
		return fmt.Errorf("tools: absolute paths not allowed")
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("tools: directory traversal not allowed")
	}
	fullPath := filepath.Join(t.cfg.WorkingDirectory, path)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("tools: file does not exist: %s", path)
	}
	return nil
}
