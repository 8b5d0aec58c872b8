package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// Memory is the default in-memory cosine-similarity index, rebuilt from
// scratch each run.
type Memory struct {
	chunks []domain.Chunk
	norms  []float64
	dim    int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Add(_ context.Context, chunks []domain.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s:%d has no embedding", c.SourceFile, c.StartLine)
		}
		if m.dim == 0 {
			m.dim = len(c.Embedding)
		} else if len(c.Embedding) != m.dim {
			return fmt.Errorf("embedding dimensionality mismatch: index has %d, chunk %s:%d has %d",
				m.dim, c.SourceFile, c.StartLine, len(c.Embedding))
		}
		m.chunks = append(m.chunks, c)
		m.norms = append(m.norms, norm(c.Embedding))
	}
	return nil
}

func (m *Memory) Search(_ context.Context, vector []float64, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 || len(m.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("query dimensionality %d does not match index %d", len(vector), m.dim)
	}

	queryNorm := norm(vector)
	scored := make([]domain.ScoredChunk, len(m.chunks))
	order := make([]int, len(m.chunks))
	for i, c := range m.chunks {
		scored[i] = domain.ScoredChunk{Chunk: c, Score: cosine(vector, queryNorm, c.Embedding, m.norms[i])}
		order[i] = i
	}

	// Stable sort keeps insertion order among equal scores.
	sort.SliceStable(order, func(a, b int) bool {
		return scored[order[a]].Score > scored[order[b]].Score
	})

	if k > len(order) {
		k = len(order)
	}
	results := make([]domain.ScoredChunk, k)
	for i := 0; i < k; i++ {
		results[i] = scored[order[i]]
	}
	return results, nil
}

func (m *Memory) Len() int {
	return len(m.chunks)
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func cosine(a []float64, aNorm float64, b []float64, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (aNorm * bNorm)
}
