package provider

import (
	"context"

	"github.com/leafwise/leafwise/config"
	openai_provider "github.com/leafwise/leafwise/provider/openai"
)

// LLM is the interface all language model implementations must satisfy.
type LLM interface {
	// Generate produces a completion for the prompt. Options may override
	// temperature and max_tokens.
	Generate(ctx context.Context, prompt string, options map[string]interface{}) (string, error)

	// Embed generates vector embeddings for the provided inputs.
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// NewLLM creates an LLM client from configuration. The OpenAI client speaks
// the OpenAI-compatible chat/embeddings API, so base_url can point at any
// compatible gateway.
func NewLLM(cfg config.LLMConfig) (LLM, error) {
	return openai_provider.NewClient(cfg.APIKey, cfg.BaseURL, cfg.ChatModel, cfg.EmbeddingModel, cfg.Temperature, cfg.MaxTokens, cfg.Timeout)
}
