package llm

import (
	"fmt"
	"strings"
)

// Config controls client construction.
type Config struct {
	Provider       string
	BaseURL        string
	Model          string
	APIKey         string
	AnthropicKey   string
	EmbeddingModel string
	EmbeddingDim   int
}

// NewClient builds the completion client and embedder for the configured
// provider. The embedder always has a working implementation: providers
// without an embeddings API fall back to the hash embedder.
func NewClient(cfg Config) (Client, Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "auto":
		if strings.TrimSpace(cfg.BaseURL) != "" {
			c := newOpenAICompatible(cfg)
			return c, c, nil
		}
		if strings.TrimSpace(cfg.AnthropicKey) != "" {
			return NewAnthropicClient(cfg.AnthropicKey, cfg.Model), NewHashEmbedder(cfg.EmbeddingDim), nil
		}
		return NewMockClient(), NewHashEmbedder(cfg.EmbeddingDim), nil
	case "vllm", "openai":
		if strings.TrimSpace(cfg.BaseURL) == "" && provider == "vllm" {
			return nil, nil, fmt.Errorf("LLM_BASE_URL is required for vllm mode")
		}
		c := newOpenAICompatible(cfg)
		return c, c, nil
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicKey) == "" {
			return nil, nil, fmt.Errorf("ANTHROPIC_API_KEY is required for anthropic mode")
		}
		return NewAnthropicClient(cfg.AnthropicKey, cfg.Model), NewHashEmbedder(cfg.EmbeddingDim), nil
	case "mock":
		return NewMockClient(), NewHashEmbedder(cfg.EmbeddingDim), nil
	default:
		return nil, nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}

func newOpenAICompatible(cfg Config) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		EmbeddingModel: cfg.EmbeddingModel,
	})
}
