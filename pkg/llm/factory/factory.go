package factory

import (
	"fmt"

	"magic-collection-be/pkg/llm"
	"magic-collection-be/pkg/llm/ollama"
)

func NewLLMProvider(providerType string, cfg ollama.Config) (llm.StreamingProvider, error) {
	switch providerType {
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
