package llm

import (
	"fmt"
	"os"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ProviderConfig describes how to construct a model client. The provider is
// swappable without touching any other pipeline component.
type ProviderConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// Registry lazily constructs and caches LLM clients by provider config.
type Registry struct {
	mu        sync.Mutex
	instances map[string]llms.LLM
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]llms.LLM)}
}

// GetModel returns an initialized LLM instance for the given config, reusing
// a cached client when one exists.
func (r *Registry) GetModel(cfg ProviderConfig) (llms.LLM, error) {
	key := cfg.Provider + "/" + cfg.Model

	r.mu.Lock()
	defer r.mu.Unlock()

	if model, exists := r.instances[key]; exists {
		return model, nil
	}

	model, err := r.initializeModel(cfg)
	if err != nil {
		return nil, err
	}
	r.instances[key] = model
	return model, nil
}

// initializeModel creates a new LLM instance based on provider type
func (r *Registry) initializeModel(cfg ProviderConfig) (llms.LLM, error) {
	switch cfg.Provider {
	case "openai", "":
		return r.initializeOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
}

// initializeOpenAI creates an OpenAI-compatible LLM instance. BaseURL allows
// pointing at any OpenAI-compatible endpoint.
func (r *Registry) initializeOpenAI(cfg ProviderConfig) (llms.LLM, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI model: %w", err)
	}
	return model, nil
}
