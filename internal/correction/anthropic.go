package correction

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider corrects transcripts via the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey string
	model  anthropic.Model
}

// NewAnthropicProvider creates a new correction provider.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey: apiKey,
		model:  anthropic.ModelClaudeSonnet4_5_20250929,
	}
}

// ID returns the breaker key for this provider.
func (p *AnthropicProvider) ID() string {
	return "anthropic"
}

// CorrectText sends the raw transcript for a correction pass.
func (p *AnthropicProvider) CorrectText(ctx context.Context, text string) (string, error) {
	if p.apiKey == "" {
		return "", errors.New("API key required: set ANTHROPIC_API_KEY or use --anthropic-api-key")
	}

	client := anthropic.NewClient(option.WithAPIKey(p.apiKey))

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: CorrectionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to correct transcript via Anthropic API: %w", err)
	}

	if len(resp.Content) == 0 {
		return "", errors.New("empty response from Anthropic API")
	}

	textBlock, ok := resp.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return "", errors.New("unexpected response type from Anthropic API")
	}

	return textBlock.Text, nil
}
