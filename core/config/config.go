package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env       string
	OTel      OTelConfig
	Chunking  ChunkingConfig
	Retrieval RetrievalConfig
	Pipeline  PipelineConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Blend     BlendConfig
	Metrics   MetricsConfig
	Cache     CacheConfig
	Typesense TypesenseConfig
	DB        DBConfig
	Output    OutputConfig
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type ChunkingConfig struct {
	Size    int // window size in lines
	Overlap int // overlapping lines between consecutive windows
}

type RetrievalConfig struct {
	K int // chunks retrieved per finding; 0 disables retrieval context
}

type PipelineConfig struct {
	Concurrency    int           // bounded worker pool size for provider calls
	MaxAttempts    int           // retry budget per provider call
	RequestTimeout time.Duration // per-call timeout, exceeded = provider failure
	BatchSize      int           // findings per prompt; 1 = one prompt per finding
	RepairAttempts int           // re-prompts when the model misses or invents ids
	ShuffleSeed    int64         // fixed seed for finding order shuffling
}

type LLMConfig struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string
	BaseURL   string // Optional: Azure OpenAI or Ollama OpenAI-compatible endpoint
	Model     string
	MaxTokens int
}

type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type BlendConfig struct {
	// Function names the score-combining policy; "linear" is the only
	// built-in. Kept in configuration because the blend policy is expected
	// to evolve.
	Function string
	Weight   float64 // linear: weight*model_score + (1-weight)*change_proneness
}

type MetricsConfig struct {
	Git bool // mine git history for churn/ownership signals
}

type CacheConfig struct {
	RedisURL string // optional embedding cache
}

type TypesenseConfig struct {
	URL        string
	APIKey     string
	Collection string
}

type DBConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

type OutputConfig struct {
	Dir string
}

// Load loads configuration from environment variables.
// In development it reads .env first so local runs need no exported vars.
func Load() (Config, error) {
	if getEnv("PRIORITIZER_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env: getEnv("PRIORITIZER_ENV", "development"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "td-prioritizer"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Chunking: ChunkingConfig{
			Size:    getEnvInt("CHUNK_SIZE", 40),
			Overlap: getEnvInt("CHUNK_OVERLAP", 8),
		},
		Retrieval: RetrievalConfig{
			K: getEnvInt("RETRIEVAL_K", 5),
		},
		Pipeline: PipelineConfig{
			Concurrency:    getEnvInt("CONCURRENCY", 4),
			MaxAttempts:    getEnvInt("MAX_ATTEMPTS", 3),
			RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 120)) * time.Second,
			BatchSize:      getEnvInt("BATCH_SIZE", 1),
			RepairAttempts: getEnvInt("REPAIR_ATTEMPTS", 2),
			ShuffleSeed:    int64(getEnvInt("SHUFFLE_SEED", 42)),
		},
		LLM: LLMConfig{
			Provider:  getEnv("LLM_PROVIDER", "openai"),
			APIKey:    getEnv("LLM_API_KEY", ""),
			BaseURL:   getEnv("LLM_BASE_URL", ""),
			Model:     getEnv("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvInt("LLM_MAX_TOKENS", 8192),
		},
		Embedding: EmbeddingConfig{
			APIKey:  getEnv("EMBEDDING_API_KEY", getEnv("LLM_API_KEY", "")),
			BaseURL: getEnv("EMBEDDING_BASE_URL", ""),
			Model:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Blend: BlendConfig{
			Function: getEnv("BLEND_FUNCTION", "linear"),
			Weight:   getEnvFloat("BLEND_WEIGHT", 0.7),
		},
		Metrics: MetricsConfig{
			Git: getEnvBool("GIT_METRICS", true),
		},
		Cache: CacheConfig{
			RedisURL: getEnv("REDIS_URL", ""),
		},
		Typesense: TypesenseConfig{
			URL:        getEnv("TYPESENSE_URL", ""),
			APIKey:     getEnv("TYPESENSE_API_KEY", ""),
			Collection: getEnv("TYPESENSE_COLLECTION", "td_chunks"),
		},
		DB: DBConfig{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 4),
			MinConns: getEnvInt32("DB_MIN_CONNS", 1),
		},
		Output: OutputConfig{
			Dir: getEnv("OUTPUT_DIR", "out"),
		},
	}

	if cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf("LLM_API_KEY is required")
	}
	if cfg.Chunking.Size <= 0 {
		return Config{}, fmt.Errorf("CHUNK_SIZE must be positive, got %d", cfg.Chunking.Size)
	}
	if cfg.Chunking.Overlap < 0 || cfg.Chunking.Overlap >= cfg.Chunking.Size {
		return Config{}, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", cfg.Chunking.Overlap)
	}
	if cfg.Retrieval.K < 0 {
		return Config{}, fmt.Errorf("RETRIEVAL_K must be non-negative, got %d", cfg.Retrieval.K)
	}
	if cfg.Blend.Weight < 0 || cfg.Blend.Weight > 1 {
		return Config{}, fmt.Errorf("BLEND_WEIGHT must be in [0,1], got %v", cfg.Blend.Weight)
	}
	if cfg.Pipeline.Concurrency <= 0 {
		return Config{}, fmt.Errorf("CONCURRENCY must be positive, got %d", cfg.Pipeline.Concurrency)
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c CacheConfig) Enabled() bool {
	return c.RedisURL != ""
}

func (c TypesenseConfig) Enabled() bool {
	return c.URL != "" && c.APIKey != ""
}

func (c DBConfig) Enabled() bool {
	return c.DSN != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
