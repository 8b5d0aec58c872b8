// Package retrieve selects the chunks most relevant to a finding from the
// similarity index.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
	"github.com/SINTEF-9012/TDPrioritization/internal/index"
)

// QueryEmbedder embeds retrieval query text. Satisfied by index.Builder.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

type Retriever struct {
	index    index.Index
	embedder QueryEmbedder
	k        int
}

func New(idx index.Index, embedder QueryEmbedder, k int) *Retriever {
	return &Retriever{index: idx, embedder: embedder, k: k}
}

// Retrieve returns the k chunks most similar to the finding. The query is the
// finding's message plus its own code span; chunks covering that same span are
// excluded so retrieved context adds information beyond the finding itself.
// k=0 degrades to an empty result.
func (r *Retriever) Retrieve(ctx context.Context, finding domain.Finding, ownSpan string) (domain.RetrievalResult, error) {
	result := domain.RetrievalResult{FindingID: finding.ID}
	if r.k <= 0 || r.index.Len() == 0 {
		return result, nil
	}

	vector, err := r.embedder.EmbedQuery(ctx, queryText(finding, ownSpan))
	if err != nil {
		return result, fmt.Errorf("embedding retrieval query: %w", err)
	}

	// Over-fetch to leave room for own-span exclusion. Heavy chunk overlap
	// can put many hits on the finding's own line, so grow the fetch until
	// k chunks survive exclusion or the index runs out of candidates.
	fetch := r.k + 3
	for {
		hits, err := r.index.Search(ctx, vector, fetch)
		if err != nil {
			return result, fmt.Errorf("querying index: %w", err)
		}

		result.Chunks = result.Chunks[:0]
		for _, hit := range hits {
			if len(result.Chunks) == r.k {
				break
			}
			if hit.Chunk.SourceFile == finding.FilePath && hit.Chunk.Covers(finding.Lines) {
				continue
			}
			result.Chunks = append(result.Chunks, hit)
		}

		if len(result.Chunks) == r.k || len(hits) < fetch {
			break
		}
		fetch *= 2
	}

	slog.DebugContext(ctx, "context retrieved",
		"finding_id", finding.ID,
		"requested", r.k,
		"returned", len(result.Chunks))

	return result, nil
}

func queryText(finding domain.Finding, ownSpan string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s in %s", finding.Category, finding.FilePath)
	if finding.Message != "" {
		sb.WriteString("\n")
		sb.WriteString(finding.Message)
	}
	if ownSpan != "" {
		sb.WriteString("\n")
		sb.WriteString(ownSpan)
	}
	return sb.String()
}
