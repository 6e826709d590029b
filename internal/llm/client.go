// Package llm wraps the completion providers behind one interface and builds the
// cross-ranker used by the cohere search strategy on top of it.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RerankerClient orders documents by relevance to a query and returns their indices.
type RerankerClient interface {
	Rank(ctx context.Context, query string, documents []string) ([]int, error)
}

// Options configures a completion client. Zero values fall back to each provider's defaults.
type Options struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	// System is sent as the provider's system instruction when set.
	System string
}

const defaultMaxTokens = 256

func (o Options) maxTokens() int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return defaultMaxTokens
}
