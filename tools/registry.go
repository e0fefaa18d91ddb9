package tools

import (
	"context"
	"fmt"

	"github.com/flowcrew/flowcrew/registry"
)

// toolEntry pairs a discovered Tool with the Source it came from, so a
// caller can tell which source to blame when a tool call fails.
type toolEntry struct {
	tool   Tool
	source string
}

// Registry aggregates tools from multiple Sources (local, MCP, plugin)
// behind a single lookup surface, resolving name collisions on a
// first-registered-wins basis and reporting them.
type Registry struct {
	sources []Source
	tools   *registry.Registry[toolEntry]
}

func NewRegistry() *Registry {
	return &Registry{tools: registry.New[toolEntry]()}
}

// AddSource discovers tools from source and merges them in. A tool
// name already present from an earlier source is kept and the
// collision is reported rather than silently overwritten.
func (r *Registry) AddSource(ctx context.Context, source Source) error {
	if err := source.DiscoverTools(ctx); err != nil {
		return fmt.Errorf("tools: discover from source %q: %w", source.Name(), err)
	}
	r.sources = append(r.sources, source)

	for _, tool := range source.ListTools() {
		if _, exists := r.tools.Get(tool.Name()); exists {
			return fmt.Errorf("tools: name collision: %q already registered before source %q", tool.Name(), source.Name())
		}
		r.tools.Register(tool.Name(), toolEntry{tool: tool, source: source.Name()})
	}
	return nil
}

func (r *Registry) GetTool(name string) (Tool, bool) {
	entry, ok := r.tools.Get(name)
	if !ok {
		return nil, false
	}
	return entry.tool, true
}

// ListTools returns every tool the registry currently knows about, in
// sorted name order.
func (r *Registry) ListTools() []Tool {
	names := r.tools.List()
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		entry, _ := r.tools.Get(name)
		out = append(out, entry.tool)
	}
	return out
}

// Resolve looks up each named tool, returning an error naming the
// first one not found. Used to build an agent's tool set from the
// string names in its configuration.
func (r *Registry) Resolve(names []string) ([]Tool, error) {
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		tool, ok := r.GetTool(name)
		if !ok {
			return nil, fmt.Errorf("tools: unknown tool %q", name)
		}
		out = append(out, tool)
	}
	return out, nil
}
