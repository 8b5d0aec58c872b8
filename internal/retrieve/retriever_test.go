package retrieve_test

import (
	"context"
	"errors"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
	"github.com/SINTEF-9012/TDPrioritization/internal/index"
	"github.com/SINTEF-9012/TDPrioritization/internal/retrieve"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fixedEmbedder returns the same query vector regardless of text.
type fixedEmbedder struct {
	vector []float64
	err    error
}

func (f *fixedEmbedder) EmbedQuery(context.Context, string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func chunk(file string, start, end int, vector []float64) domain.Chunk {
	return domain.Chunk{
		SourceFile: file,
		StartLine:  start,
		EndLine:    end,
		Text:       "text",
		Embedding:  vector,
	}
}

var _ = Describe("Retriever", func() {
	var (
		ctx context.Context
		idx *index.Memory
	)

	finding := domain.Finding{
		ID:       7,
		FilePath: "src/app.py",
		Lines:    domain.LineRange{Start: 12, End: 12},
		Category: "Long Method",
		Message:  "method too long",
	}

	BeforeEach(func() {
		ctx = context.Background()
		idx = index.NewMemory()
	})

	It("returns at most k chunks ordered by similarity", func() {
		Expect(idx.Add(ctx, []domain.Chunk{
			chunk("other.py", 1, 40, []float64{1, 0, 0}),
			chunk("other.py", 33, 72, []float64{0.8, 0.2, 0}),
			chunk("third.py", 1, 40, []float64{0, 1, 0}),
		})).To(Succeed())
		r := retrieve.New(idx, &fixedEmbedder{vector: []float64{1, 0, 0}}, 2)

		result, err := r.Retrieve(ctx, finding, "span")

		Expect(err).NotTo(HaveOccurred())
		Expect(result.FindingID).To(Equal(int64(7)))
		Expect(result.Chunks).To(HaveLen(2))
		Expect(result.Chunks[0].Chunk.SourceFile).To(Equal("other.py"))
		Expect(result.Chunks[0].Score).To(BeNumerically(">=", result.Chunks[1].Score))
	})

	It("excludes chunks covering the finding's own span", func() {
		Expect(idx.Add(ctx, []domain.Chunk{
			chunk("src/app.py", 1, 40, []float64{1, 0, 0}), // covers line 12
			chunk("src/app.py", 80, 120, []float64{0.9, 0.1, 0}),
			chunk("other.py", 1, 40, []float64{0.5, 0.5, 0}),
		})).To(Succeed())
		r := retrieve.New(idx, &fixedEmbedder{vector: []float64{1, 0, 0}}, 2)

		result, err := r.Retrieve(ctx, finding, "span")

		Expect(err).NotTo(HaveOccurred())
		for _, hit := range result.Chunks {
			covers := hit.Chunk.SourceFile == finding.FilePath &&
				hit.Chunk.StartLine <= finding.Lines.Start &&
				finding.Lines.End <= hit.Chunk.EndLine
			Expect(covers).To(BeFalse(), "own span chunk must be excluded")
		}
		Expect(result.Chunks).To(HaveLen(2))
	})

	It("fills k even when overlapping own-span chunks dominate the top hits", func() {
		// Small stride puts many windows on the finding's line; they all
		// outrank the useful candidates.
		var chunks []domain.Chunk
		for start := 1; start <= 11; start += 2 {
			chunks = append(chunks, chunk("src/app.py", start, start+39, []float64{1, 0, 0}))
		}
		chunks = append(chunks,
			chunk("other.py", 1, 40, []float64{0.6, 0.4, 0}),
			chunk("third.py", 1, 40, []float64{0.5, 0.5, 0}),
		)
		Expect(idx.Add(ctx, chunks)).To(Succeed())
		r := retrieve.New(idx, &fixedEmbedder{vector: []float64{1, 0, 0}}, 2)

		result, err := r.Retrieve(ctx, finding, "span")

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Chunks).To(HaveLen(2))
		Expect(result.Chunks[0].Chunk.SourceFile).To(Equal("other.py"))
		Expect(result.Chunks[1].Chunk.SourceFile).To(Equal("third.py"))
	})

	It("degrades to an empty result when k is zero", func() {
		Expect(idx.Add(ctx, []domain.Chunk{
			chunk("other.py", 1, 40, []float64{1, 0, 0}),
		})).To(Succeed())
		embedder := &fixedEmbedder{err: errors.New("must not be called")}
		r := retrieve.New(idx, embedder, 0)

		result, err := r.Retrieve(ctx, finding, "span")

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Chunks).To(BeEmpty())
	})

	It("returns an empty result for an empty index", func() {
		r := retrieve.New(idx, &fixedEmbedder{vector: []float64{1, 0, 0}}, 3)

		result, err := r.Retrieve(ctx, finding, "span")

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Chunks).To(BeEmpty())
	})

	It("propagates query embedding failures", func() {
		Expect(idx.Add(ctx, []domain.Chunk{
			chunk("other.py", 1, 40, []float64{1, 0, 0}),
		})).To(Succeed())
		r := retrieve.New(idx, &fixedEmbedder{err: errors.New("provider down")}, 3)

		_, err := r.Retrieve(ctx, finding, "span")

		Expect(err).To(HaveOccurred())
	})
})
