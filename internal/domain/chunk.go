package domain

// Chunk is a bounded span of source text prepared for embedding.
// Chunks are produced once per file per run and never mutated.
type Chunk struct {
	SourceFile string    `json:"source_file"`
	StartLine  int       `json:"start_line"`
	EndLine    int       `json:"end_line"`
	Text       string    `json:"text"`
	Embedding  []float64 `json:"-"`
}

// Covers reports whether the chunk's span contains the given line range.
func (c Chunk) Covers(r LineRange) bool {
	return c.StartLine <= r.Start && r.End <= c.EndLine
}

// Overlaps reports whether the chunk's span intersects the given line range.
func (c Chunk) Overlaps(r LineRange) bool {
	return c.StartLine <= r.End && r.Start <= c.EndLine
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult is the retrieved context for one finding, ordered by
// non-increasing similarity. Transient: recomputed per run, never persisted.
type RetrievalResult struct {
	FindingID int64         `json:"finding_id"`
	Chunks    []ScoredChunk `json:"chunks"`
}
