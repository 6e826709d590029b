package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/graphsync/internal/config"
)

// NewClient builds the completion client named by cfg.Provider. An empty provider means no
// LLM is configured and returns a nil client.
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLMClient, error) {
	return newClient(ctx, cfg, "")
}

func newClient(ctx context.Context, cfg config.LLMConfig, system string) (LLMClient, error) {
	opts := Options{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		System:  system,
	}

	switch provider := strings.ToLower(cfg.Provider); provider {
	case "":
		return nil, nil
	case "openai":
		return NewOpenAIClient(opts), nil
	case "ollama":
		return NewOpenAIClient(ollamaOptions(opts)), nil
	case "claude", "anthropic":
		return NewClaudeClient(opts), nil
	case "gemini":
		c, err := NewGeminiClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}

// NewReranker wraps the configured LLM as a cross-ranker, or returns nil when none is set.
func NewReranker(ctx context.Context, cfg config.LLMConfig) (RerankerClient, error) {
	client, err := newClient(ctx, cfg, rankerSystemPrompt)
	if err != nil || client == nil {
		return nil, err
	}
	return NewSimpleLLMReranker(client), nil
}
