package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SearchToolConfig bounds a filesystem content search.
type SearchToolConfig struct {
	WorkingDirectory string
	DefaultLimit     int
	MaxLimit         int
}

// SearchMatch is one line matching a search query.
type SearchMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// SearchTool performs a plain substring search across text files under
// WorkingDirectory, the filesystem-backed counterpart to a vector
// document store for repos too small to warrant one.
type SearchTool struct {
	cfg SearchToolConfig
}

func NewSearchTool(cfg SearchToolConfig) *SearchTool {
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = "./"
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit == 0 {
		cfg.MaxLimit = 100
	}
	return &SearchTool{cfg: cfg}
}

func (t *SearchTool) Name() string        { return "search" }
func (t *SearchTool) Description() string { return "Search file contents under the working directory for a substring" }

func (t *SearchTool) InputSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]any{
			"query": map[string]any{"type": "string", "description": "substring to search for"},
			"limit": map[string]any{"type": "integer", "description": "max matches to return"},
		},
		Required: []string{"query"},
	}
}

func (t *SearchTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return Result{}, fmt.Errorf("tools: query parameter is required")
	}
	limit := t.cfg.DefaultLimit
	if l, ok := args["limit"].(float64); ok && int(l) > 0 {
		limit = int(l)
	}
	if limit > t.cfg.MaxLimit {
		limit = t.cfg.MaxLimit
	}

	var matches []SearchMatch
	err := filepath.WalkDir(t.cfg.WorkingDirectory, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= limit {
			return nil
		}
		matches = append(matches, searchFile(path, query, limit-len(matches))...)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("tools: search %q: %w", t.cfg.WorkingDirectory, err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Path < matches[j].Path })

	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s:%d: %s\n", m.Path, m.Line, m.Text)
	}
	return Result{Content: b.String(), Output: matches}, nil
}

func searchFile(path, query string, limit int) []SearchMatch {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []SearchMatch
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() && len(out) < limit {
		line++
		text := scanner.Text()
		if strings.Contains(text, query) {
			out = append(out, SearchMatch{Path: path, Line: line, Text: strings.TrimSpace(text)})
		}
	}
	return out
}
