package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPConfig configures a stdio-transport MCP tool source.
type MCPConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	// Filter limits which server-advertised tools are exposed, when set.
	Filter []string
}

// MCPSource discovers and invokes tools exposed by a Model Context
// Protocol server over stdio, connecting lazily on the first
// DiscoverTools call.
type MCPSource struct {
	cfg       MCPConfig
	filterSet map[string]bool

	mu      sync.Mutex
	client  *client.Client
	tools   map[string]Tool
}

func NewMCPSource(cfg MCPConfig) *MCPSource {
	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}
	return &MCPSource{cfg: cfg, filterSet: filterSet, tools: map[string]Tool{}}
}

func (s *MCPSource) Name() string { return s.cfg.Name }
func (s *MCPSource) Type() string { return "mcp" }

// DiscoverTools connects to the configured MCP server, if not already
// connected, and populates the tool list from its ListTools response.
func (s *MCPSource) DiscoverTools(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	env := make([]string, 0, len(s.cfg.Env))
	for k, v := range s.cfg.Env {
		env = append(env, k+"="+v)
	}

	mcpClient, err := client.NewStdioMCPClient(s.cfg.Command, env, s.cfg.Args...)
	if err != nil {
		return fmt.Errorf("tools: create MCP client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("tools: start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "flowcrew", Version: "0.1.0-alpha"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("tools: initialize MCP session: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("tools: list MCP tools: %w", err)
	}

	for _, mt := range listResp.Tools {
		if s.filterSet != nil && !s.filterSet[mt.Name] {
			continue
		}
		s.tools[mt.Name] = &mcpTool{
			source: s,
			name:   mt.Name,
			desc:   mt.Description,
			schema: convertMCPSchema(mt.InputSchema),
		}
	}

	s.client = mcpClient
	return nil
}

func (s *MCPSource) ListTools() []Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	return out
}

func (s *MCPSource) GetTool(name string) (Tool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tools[name]
	return t, ok
}

type mcpTool struct {
	source *MCPSource
	name   string
	desc   string
	schema Schema
}

func (t *mcpTool) Name() string        { return t.name }
func (t *mcpTool) Description() string { return t.desc }
func (t *mcpTool) InputSchema() Schema { return t.schema }

func (t *mcpTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	t.source.mu.Lock()
	mcpClient := t.source.client
	t.source.mu.Unlock()
	if mcpClient == nil {
		return Result{}, fmt.Errorf("tools: MCP source %q not connected", t.source.Name())
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("tools: MCP call %q: %w", t.name, err)
	}

	var text string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return Result{Content: text, Output: resp}, nil
}

func convertMCPSchema(s mcp.ToolInputSchema) Schema {
	props := make(map[string]any, len(s.Properties))
	for k, v := range s.Properties {
		props[k] = v
	}
	return Schema{
		Type:                 "object",
		Properties:           props,
		Required:             s.Required,
		AdditionalProperties: false,
	}
}
