package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	clientOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.BaseURL))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if opts.Model == "" {
		opts.Model = defaultGeminiModel
	}

	model := client.GenerativeModel(opts.Model)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(int32(opts.maxTokens()))
	if opts.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(opts.System)}}
	}
	return &GeminiClient{client: client, model: model, name: opts.Model}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate (%s): %w", c.name, err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	if text := strings.TrimSpace(b.String()); text != "" {
		return text, nil
	}
	return "", ErrEmptyResponse
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}
