package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileWriterConfig bounds what FileWriterTool is allowed to touch.
type FileWriterConfig struct {
	MaxFileSize       int
	AllowedExtensions []string
	WorkingDirectory  string
	BackupOnOverwrite bool
}

// FileWriterTool creates or overwrites a file under WorkingDirectory,
// optionally keeping a .bak copy of whatever it replaces.
type FileWriterTool struct {
	cfg FileWriterConfig
}

func NewFileWriterTool(cfg FileWriterConfig) *FileWriterTool {
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 1 << 20
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".go", ".yaml", ".md", ".json", ".txt"}
	}
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = "./"
	}
	return &FileWriterTool{cfg: cfg}
}

func (t *FileWriterTool) Name() string        { return "write_file" }
func (t *FileWriterTool) Description() string { return "Create or overwrite a file with content" }

func (t *FileWriterTool) InputSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]any{
			"path":    map[string]any{"type": "string", "description": "file path relative to the working directory"},
			"content": map[string]any{"type": "string", "description": "content to write"},
			"backup":  map[string]any{"type": "boolean", "description": "keep a .bak copy of an existing file"},
		},
		Required: []string{"path", "content"},
	}
}

func (t *FileWriterTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return Result{}, fmt.Errorf("tools: path parameter is required")
	}
	content, ok := args["content"].(string)
	if !ok {
		return Result{}, fmt.Errorf("tools: content parameter is required")
	}
	backup := t.cfg.BackupOnOverwrite
	if b, ok := args["backup"].(bool); ok {
		backup = b
	}

	if err := t.validatePath(path); err != nil {
		return Result{}, err
	}
	if len(content) > t.cfg.MaxFileSize {
		return Result{}, fmt.Errorf("tools: content too large: %d bytes (max %d)", len(content), t.cfg.MaxFileSize)
	}

	fullPath := filepath.Join(t.cfg.WorkingDirectory, path)
	fileExisted := false
	if _, err := os.Stat(fullPath); err == nil {
		fileExisted = true
		if backup {
			data, err := os.ReadFile(fullPath)
			if err != nil {
				return Result{}, fmt.Errorf("tools: read %q for backup: %w", fullPath, err)
			}
			if err := os.WriteFile(fullPath+".bak", data, 0644); err != nil {
				return Result{}, fmt.Errorf("tools: write backup for %q: %w", fullPath, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return Result{}, fmt.Errorf("tools: create directory for %q: %w", fullPath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		return Result{}, fmt.Errorf("tools: write %q: %w", fullPath, err)
	}

	action := "created"
	if fileExisted {
		action = "overwritten"
	}
	return Result{Content: fmt.Sprintf("file %s: %s (%d bytes)", action, path, len(content))}, nil
}

func (t *FileWriterTool) validatePath(path string) error {
	if filepath.IsAbs(path) {
		return fmt.Errorf("tools: absolute paths not allowed")
	}
	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return fmt.Errorf("tools: directory traversal not allowed")
	}

	absPath, err := filepath.Abs(filepath.Join(t.cfg.WorkingDirectory, cleaned))
	if err != nil {
		return fmt.Errorf("tools: invalid path: %w", err)
	}
	absWorkDir, err := filepath.Abs(t.cfg.WorkingDirectory)
	if err != nil {
		return fmt.Errorf("tools: invalid working directory: %w", err)
	}
	if !strings.HasPrefix(absPath, absWorkDir) {
		return fmt.Errorf("tools: path escapes working directory")
	}

	if len(t.cfg.AllowedExtensions) > 0 {
		ext := filepath.Ext(path)
		for _, allowed := range t.cfg.AllowedExtensions {
			if ext == allowed {
				return nil
			}
		}
		return fmt.Errorf("tools: extension %q not allowed", ext)
	}
	return nil
}
