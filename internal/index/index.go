// Package index embeds chunks and maintains a queryable similarity index.
// The index is built once per run and read-only afterwards; no incremental
// update semantics exist because the detector's cache marker already limits
// re-runs.
package index

import (
	"context"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// Index is a similarity index over embedded chunks. Implementations must
// return results by non-increasing similarity with ties broken by insertion
// order, and must be safe for concurrent reads after Add calls stop.
type Index interface {
	Add(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, vector []float64, k int) ([]domain.ScoredChunk, error)
	Len() int
}
