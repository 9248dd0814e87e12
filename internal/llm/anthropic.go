package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider is an Anthropic Messages API provider.
type AnthropicProvider struct {
	Model  string
	apiKey string
	client *anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider. The client is
// constructed lazily so an unset key only fails at call time.
func NewAnthropicProvider(model, apiKeyEnv string) *AnthropicProvider {
	p := &AnthropicProvider{Model: model, apiKey: os.Getenv(apiKeyEnv)}
	if p.apiKey != "" {
		client := anthropic.NewClient(option.WithAPIKey(p.apiKey))
		p.client = &client
	}
	return p
}

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool {
	return a.apiKey != ""
}

// Generate sends a prompt to the Anthropic Messages API and returns the
// concatenated text blocks of the response.
func (a *AnthropicProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if a.client == nil {
		return "", fmt.Errorf("Anthropic API key not configured")
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in Anthropic response")
	}
	return text, nil
}
