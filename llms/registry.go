package llms

import (
	"fmt"

	"github.com/flowcrew/flowcrew/registry"
)

// ProviderConfig is the declarative shape of one LLM provider.
// component.New fills it field by field from an agent's
// config.LLMProviderConfig (its llm: block); llms does not import config.
type ProviderConfig struct {
	Type        string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// Registry manages named Provider instances for a team.
type Registry struct {
	*registry.Registry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{Registry: registry.New[Provider]()}
}

// CreateFromConfig constructs a provider for cfg.Type, registers it
// under name, and returns it.
func (r *Registry) CreateFromConfig(name string, cfg ProviderConfig) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("llms: provider name cannot be empty")
	}

	var provider Provider
	switch cfg.Type {
	case "anthropic":
		provider = NewAnthropicProvider(cfg.APIKey, cfg.Model)
	case "openai":
		provider = NewOpenAIProvider(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("llms: unsupported provider type %q", cfg.Type)
	}

	r.Register(name, provider)
	return provider, nil
}
