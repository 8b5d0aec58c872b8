package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/SINTEF-9012/TDPrioritization/common/llm"
	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// embedBatchSize bounds texts per embedding request; providers cap both
// batch size and total tokens per call.
const embedBatchSize = 32

// Builder embeds chunks through the external embedding capability and loads
// them into an Index. Embedding calls run under a bounded worker pool and are
// retried with exponential backoff before surfacing ProviderError.
type Builder struct {
	embedder    llm.Client
	cache       EmbeddingCache // nil disables caching
	concurrency int
	maxAttempts int
	timeout     time.Duration
}

type BuilderConfig struct {
	Concurrency int
	MaxAttempts int
	Timeout     time.Duration
}

func NewBuilder(embedder llm.Client, cache EmbeddingCache, cfg BuilderConfig) *Builder {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Builder{
		embedder:    embedder,
		cache:       cache,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		timeout:     cfg.Timeout,
	}
}

// Build embeds all chunks and adds them to idx in their original order, so
// the index's insertion-order tie-breaking matches chunking order. An
// embedding failure aborts the build: no report can be produced without a
// usable index.
func (b *Builder) Build(ctx context.Context, idx Index, chunks []domain.Chunk) error {
	start := time.Now()

	// Blank files chunk to empty text, which embedding providers reject
	// with a client error. They carry nothing to retrieve either way.
	embedded := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		embedded = append(embedded, c)
	}

	var remaining []int // indexes of chunks that missed the cache
	if b.cache != nil {
		for i := range embedded {
			if vec, ok := b.cache.Get(ctx, b.embedder.Model(), embedded[i].Text); ok {
				embedded[i].Embedding = vec
				continue
			}
			remaining = append(remaining, i)
		}
		slog.DebugContext(ctx, "embedding cache checked",
			"chunks", len(embedded),
			"hits", len(embedded)-len(remaining))
	} else {
		remaining = make([]int, len(embedded))
		for i := range remaining {
			remaining[i] = i
		}
	}

	if err := b.embedBatches(ctx, embedded, remaining); err != nil {
		return err
	}

	if err := idx.Add(ctx, embedded); err != nil {
		return fmt.Errorf("adding chunks to index: %w", err)
	}

	slog.InfoContext(ctx, "index built",
		"chunks", len(embedded),
		"skipped_empty", len(chunks)-len(embedded),
		"embedded", len(remaining),
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

// EmbedQuery embeds a single retrieval query under the same retry policy.
func (b *Builder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vectors, err := b.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (b *Builder) embedBatches(ctx context.Context, chunks []domain.Chunk, remaining []int) error {
	if len(remaining) == 0 {
		return nil
	}

	var batches [][]int
	for start := 0; start < len(remaining); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(remaining) {
			end = len(remaining)
		}
		batches = append(batches, remaining[start:end])
	}

	sem := make(chan struct{}, b.concurrency)
	errCh := make(chan error, len(batches))
	var wg sync.WaitGroup

	for _, batch := range batches {
		wg.Add(1)
		go func(batch []int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			texts := make([]string, len(batch))
			for i, idx := range batch {
				texts[i] = chunks[idx].Text
			}

			vectors, err := b.embedWithRetry(ctx, texts)
			if err != nil {
				errCh <- err
				return
			}

			for i, idx := range batch {
				chunks[idx].Embedding = vectors[i]
				if b.cache != nil {
					b.cache.Put(ctx, b.embedder.Model(), chunks[idx].Text, vectors[i])
				}
			}
		}(batch)
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	return nil
}

func (b *Builder) embedWithRetry(ctx context.Context, texts []string) ([][]float64, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < b.maxAttempts; attempt++ {
		if attempt > 0 {
			slog.WarnContext(ctx, "retrying embedding",
				"attempt", attempt+1,
				"max_attempts", b.maxAttempts,
				"texts", len(texts),
				"error", lastErr)
			time.Sleep(time.Duration(1<<attempt) * time.Second)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if b.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		}
		vectors, err := b.embedder.Embed(callCtx, texts)
		if cancel != nil {
			cancel()
		}
		attempts = attempt + 1
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The parent context is alive, so a deadline error is the per-call
		// timeout: a provider failure, retried like any other.
		if !errors.Is(err, context.DeadlineExceeded) && !llm.IsRetryable(ctx, err) {
			break
		}
	}

	return nil, &domain.ProviderError{Op: "embed", Attempts: attempts, Err: lastErr}
}
