package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds LLM client configuration.
type Config struct {
	Provider       string // "openai" or "anthropic"
	APIKey         string // Required: API key for the provider
	BaseURL        string // Optional: custom endpoint (Azure OpenAI, Ollama's OpenAI-compatible API)
	Model          string // Completion model name
	EmbeddingModel string // Embedding model name (openai provider only)
}

// Client is the model capability boundary: a prompt-in/text-out completion
// call and a batch embedding call. Concrete providers are interchangeable;
// both operations may fail transiently and callers retry by policy.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
}

// Request contains one completion call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic

	// SchemaName/Schema request structured JSON output on providers that
	// support it. Leave Schema nil for plain text completion.
	SchemaName string
	Schema     any
}

// Response contains the completion text and token accounting.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// ErrEmbeddingUnsupported is returned by providers without an embedding API.
var ErrEmbeddingUnsupported = errors.New("provider does not support embeddings")

// New creates a Client for the configured provider. Defaults to OpenAI when
// no provider is specified.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// GenerateSchema generates a JSON schema for a response type.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// Temp returns a pointer to a temperature value for Request.Temperature.
func Temp(t float64) *float64 {
	return &t
}

// IsRetryable classifies a provider error: rate limits, server errors and
// network failures are retryable; client errors and context cancellation
// are not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	if errors.Is(err, ErrEmbeddingUnsupported) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			slog.WarnContext(ctx, "llm rate limited, will retry",
				"status_code", apiErr.StatusCode)
			return true
		case apiErr.StatusCode >= 500:
			slog.WarnContext(ctx, "llm server error, will retry",
				"status_code", apiErr.StatusCode)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable",
				"status_code", apiErr.StatusCode,
				"error_type", apiErr.Type,
				"error_code", apiErr.Code)
			return false
		}
	}

	// Network errors (no API response) are generally retryable
	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}
