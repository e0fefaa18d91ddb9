package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

var pluginHandshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "FLOWCREW_PLUGIN",
	MagicCookieValue: "flowcrew_tool_plugin_v1",
}

// toolProviderRPC is the interface a tool plugin process implements,
// dispensed over hashicorp/go-plugin's net/rpc transport. It exists
// only to run out-of-process tools, not vector-store or LLM plugins.
type toolProviderRPC interface {
	ListTools() ([]ToolInfo, error)
	Invoke(name string, argsJSON string) (string, error)
}

// ToolInfo is the wire shape a tool plugin advertises for one tool.
type ToolInfo struct {
	Name        string
	Description string
	Schema      Schema
}

type toolProviderPlugin struct {
	Impl toolProviderRPC
}

func (p *toolProviderPlugin) Server(*goplugin.MuxBroker) (any, error) {
	return &toolProviderRPCServer{impl: p.Impl}, nil
}

func (p *toolProviderPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &toolProviderRPCClient{client: c}, nil
}

type toolProviderRPCServer struct{ impl toolProviderRPC }

func (s *toolProviderRPCServer) ListTools(_ any, resp *[]ToolInfo) error {
	tools, err := s.impl.ListTools()
	*resp = tools
	return err
}

type invokeArgs struct {
	Name     string
	ArgsJSON string
}

func (s *toolProviderRPCServer) Invoke(args invokeArgs, resp *string) error {
	out, err := s.impl.Invoke(args.Name, args.ArgsJSON)
	*resp = out
	return err
}

type toolProviderRPCClient struct{ client *rpc.Client }

func (c *toolProviderRPCClient) ListTools() ([]ToolInfo, error) {
	var resp []ToolInfo
	err := c.client.Call("Plugin.ListTools", new(any), &resp)
	return resp, err
}

func (c *toolProviderRPCClient) Invoke(name string, argsJSON string) (string, error) {
	var resp string
	err := c.client.Call("Plugin.Invoke", invokeArgs{Name: name, ArgsJSON: argsJSON}, &resp)
	return resp, err
}

// PluginConfig configures an out-of-process tool plugin.
type PluginConfig struct {
	Name string
	Path string
	Args []string
}

// PluginSource loads tools from an out-of-process binary over
// hashicorp/go-plugin, for tools too heavyweight or untrusted to link
// into the orchestrator process.
type PluginSource struct {
	cfg    PluginConfig
	client *goplugin.Client
	rpcAPI toolProviderRPC
	tools  map[string]Tool
}

func NewPluginSource(cfg PluginConfig) *PluginSource {
	return &PluginSource{cfg: cfg, tools: map[string]Tool{}}
}

func (s *PluginSource) Name() string { return s.cfg.Name }
func (s *PluginSource) Type() string { return "plugin" }

// DiscoverTools launches the plugin process, if not already running,
// and populates the tool list from its ListTools response.
func (s *PluginSource) DiscoverTools(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	s.client = goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: pluginHandshake,
		Plugins: map[string]goplugin.Plugin{
			"tool": &toolProviderPlugin{},
		},
		Cmd: exec.Command(s.cfg.Path, s.cfg.Args...),
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:  "flowcrew-plugin-" + s.cfg.Name,
			Level: hclog.Warn,
		}),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := s.client.Client()
	if err != nil {
		s.client.Kill()
		return fmt.Errorf("tools: connect to plugin %q: %w", s.cfg.Name, err)
	}

	raw, err := rpcClient.Dispense("tool")
	if err != nil {
		s.client.Kill()
		return fmt.Errorf("tools: dispense plugin %q: %w", s.cfg.Name, err)
	}

	api, ok := raw.(toolProviderRPC)
	if !ok {
		s.client.Kill()
		return fmt.Errorf("tools: plugin %q does not implement the tool provider interface", s.cfg.Name)
	}
	s.rpcAPI = api

	infos, err := api.ListTools()
	if err != nil {
		s.client.Kill()
		return fmt.Errorf("tools: list tools from plugin %q: %w", s.cfg.Name, err)
	}
	for _, info := range infos {
		s.tools[info.Name] = &pluginTool{source: s, info: info}
	}
	return nil
}

func (s *PluginSource) ListTools() []Tool {
	out := make([]Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	return out
}

func (s *PluginSource) GetTool(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Close terminates the plugin process.
func (s *PluginSource) Close() {
	if s.client != nil {
		s.client.Kill()
	}
}

type pluginTool struct {
	source *PluginSource
	info   ToolInfo
}

func (t *pluginTool) Name() string        { return t.info.Name }
func (t *pluginTool) Description() string { return t.info.Description }
func (t *pluginTool) InputSchema() Schema { return t.info.Schema }

func (t *pluginTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return Result{}, fmt.Errorf("tools: marshal args for plugin tool %q: %w", t.info.Name, err)
	}
	out, err := t.source.rpcAPI.Invoke(t.info.Name, string(argsJSON))
	if err != nil {
		return Result{}, fmt.Errorf("tools: invoke plugin tool %q: %w", t.info.Name, err)
	}
	return Result{Content: out}, nil
}
