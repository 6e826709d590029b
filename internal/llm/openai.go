package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIClient talks to the OpenAI chat API or any server that speaks it (Ollama, vLLM).
type OpenAIClient struct {
	client *openai.Client
	opts   Options
}

func NewOpenAIClient(opts Options) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultOpenAIModel
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), opts: opts}
}

// ollamaOptions points the OpenAI client at Ollama's compatible /v1 API.
func ollamaOptions(opts Options) Options {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	if !strings.HasSuffix(opts.BaseURL, "/v1") {
		opts.BaseURL = strings.TrimRight(opts.BaseURL, "/") + "/v1"
	}
	if opts.APIKey == "" {
		opts.APIKey = "ollama"
	}
	return opts
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if c.opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.opts.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Temperature: 0,
		MaxTokens:   c.opts.maxTokens(),
		Messages:    messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion (%s): %w", c.opts.Model, err)
	}
	for _, choice := range resp.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text, nil
		}
	}
	return "", ErrEmptyResponse
}
