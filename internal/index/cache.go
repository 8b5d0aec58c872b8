package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingCache avoids re-embedding unchanged chunk text across runs.
// Misses are never an error: a broken cache degrades to re-embedding.
type EmbeddingCache interface {
	Get(ctx context.Context, model, text string) ([]float64, bool)
	Put(ctx context.Context, model, text string, vector []float64)
}

const cacheTTL = 30 * 24 * time.Hour

// RedisCache stores embeddings keyed by model and content hash.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, model, text string) ([]float64, bool) {
	raw, err := c.client.Get(ctx, cacheKey(model, text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.WarnContext(ctx, "embedding cache read failed", "error", err)
		}
		return nil, false
	}

	var vector []float64
	if err := json.Unmarshal(raw, &vector); err != nil {
		slog.WarnContext(ctx, "embedding cache entry corrupt, ignoring", "error", err)
		return nil, false
	}
	return vector, true
}

func (c *RedisCache) Put(ctx context.Context, model, text string, vector []float64) {
	raw, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(model, text), raw, cacheTTL).Err(); err != nil {
		slog.WarnContext(ctx, "embedding cache write failed", "error", err)
	}
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "tdp:emb:" + model + ":" + hex.EncodeToString(sum[:])
}
