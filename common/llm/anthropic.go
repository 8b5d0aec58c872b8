package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	client anthropic.Client
	model  string
}

// newAnthropicClient creates a Client using the Anthropic API. Anthropic has
// no embedding endpoint, so Embed always fails with ErrEmbeddingUnsupported;
// pair this provider with an OpenAI-compatible embedder.
func newAnthropicClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250514"
	}

	return &anthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *anthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	userPrompt := req.UserPrompt
	if req.Schema != nil {
		// No structured-output mode; ask for schema conformance in the prompt
		// and let the caller's tolerant parser handle the rest.
		userPrompt = fmt.Sprintf("%s\n\nRespond with JSON conforming to the %q schema only, no surrounding prose.", userPrompt, req.SchemaName)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(userPrompt),
				},
			},
		},
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.SystemPrompt},
		}
	}

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic message: %w", err)
	}

	slog.DebugContext(ctx, "completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)

	result := &Response{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			result.Content += block.Text
		}
	}

	return result, nil
}

func (c *anthropicClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, ErrEmbeddingUnsupported
}

func (c *anthropicClient) Model() string {
	return c.model
}
