package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
)

const defaultClaudeModel = anthropic.ModelClaude3Haiku20240307

type ClaudeClient struct {
	client *anthropic.Client
	opts   Options
}

func NewClaudeClient(opts Options) *ClaudeClient {
	var clientOpts []anthropic.ClientOption
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(opts.BaseURL))
	}
	if opts.Model == "" {
		opts.Model = string(defaultClaudeModel)
	}
	return &ClaudeClient{client: anthropic.NewClient(opts.APIKey, clientOpts...), opts: opts}
}

func (c *ClaudeClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.opts.Model),
		System:    c.opts.System,
		MaxTokens: c.opts.maxTokens(),
		Messages:  []anthropic.Message{anthropic.NewUserTextMessage(prompt)},
	})
	if err != nil {
		return "", fmt.Errorf("claude messages (%s): %w", c.opts.Model, err)
	}

	var b strings.Builder
	for _, part := range resp.Content {
		if part.Text != nil {
			b.WriteString(*part.Text)
		}
	}
	if text := strings.TrimSpace(b.String()); text != "" {
		return text, nil
	}
	return "", ErrEmptyResponse
}
