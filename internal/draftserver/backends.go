package draftserver

import (
	"context"
	"fmt"
	"strings"

	"replydraft/internal/config"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"google.golang.org/genai"
)

// AnthropicCompleter calls the Anthropic Messages API.
type AnthropicCompleter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicCompleter creates a completer for model.
func NewAnthropicCompleter(apiKey, model string, opts ...option.RequestOption) *AnthropicCompleter {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(2)}, opts...)
	return &AnthropicCompleter{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("anthropic: response had no text content")
	}
	return b.String(), nil
}

// GeminiCompleter calls the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter creates a completer for model.
func NewGeminiCompleter(ctx context.Context, apiKey, model string) (*GeminiCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiCompleter{client: client, model: model}, nil
}

// Complete implements Completer. maxTokens is left to the model default.
func (g *GeminiCompleter) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini: response had no text content")
	}
	return b.String(), nil
}

// NewCompleter picks the backend named by cfg.Provider.
func NewCompleter(ctx context.Context, cfg config.ServerConfig) (Completer, error) {
	switch cfg.Provider {
	case "anthropic":
		model := cfg.Model
		if model == "" {
			model = "claude-sonnet-4-20250514"
		}
		return NewAnthropicCompleter(cfg.APIKey, model), nil
	case "gemini":
		model := cfg.Model
		if model == "" || strings.HasPrefix(model, "claude") {
			model = "gemini-2.5-flash"
		}
		return NewGeminiCompleter(ctx, cfg.APIKey, model)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
