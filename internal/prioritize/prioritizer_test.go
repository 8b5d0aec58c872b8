package prioritize_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SINTEF-9012/TDPrioritization/common/llm"
	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
	"github.com/SINTEF-9012/TDPrioritization/internal/prioritize"
	"github.com/SINTEF-9012/TDPrioritization/internal/prompt"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type completion struct {
	content string
	err     error
}

// scriptedClient replays queued completions and records the prompts it saw.
type scriptedClient struct {
	mu      sync.Mutex
	script  []completion
	prompts []string
}

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, req.UserPrompt)
	if len(c.script) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := c.script[0]
	c.script = c.script[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &llm.Response{Content: next.content}, nil
}

func (c *scriptedClient) Embed(context.Context, []string) ([][]float64, error) {
	return nil, llm.ErrEmbeddingUnsupported
}

func (c *scriptedClient) Model() string { return "mock-model" }

func (c *scriptedClient) seenPrompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

func batchOf(ids ...int64) []prompt.FindingContext {
	batch := make([]prompt.FindingContext, len(ids))
	for i, id := range ids {
		batch[i] = prompt.FindingContext{Finding: domain.Finding{
			ID:       id,
			FilePath: fmt.Sprintf("src/f%d.py", id),
			Category: "Long Method",
			Severity: domain.SeverityMedium,
		}}
	}
	return batch
}

func judgmentJSON(idScores map[int64]float64) string {
	out := `{"judgments": [`
	first := true
	for id, score := range idScores {
		if !first {
			out += ","
		}
		first = false
		out += fmt.Sprintf(`{"id": %d, "score": %g, "rationale": "r%d"}`, id, score, id)
	}
	return out + "]}"
}

var _ = Describe("Prioritizer", func() {
	var ctx context.Context

	cfg := prioritize.Config{
		Concurrency:    2,
		MaxAttempts:    1,
		RepairAttempts: 1,
		MaxTokens:      1024,
	}

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("judges every finding of a batch", func() {
		client := &scriptedClient{script: []completion{
			{content: judgmentJSON(map[int64]float64{1: 0.9, 2: 0.3})},
		}}
		p := prioritize.New(client, prompt.NewBuilder(), cfg)

		result, err := p.Prioritize(ctx, [][]prompt.FindingContext{batchOf(1, 2)}, "")

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Failures).To(BeEmpty())
		Expect(result.Judgments).To(HaveLen(2))
		Expect(result.Judgments[1].Score).To(Equal(0.9))
		Expect(result.Judgments[2].Score).To(Equal(0.3))
		Expect(result.Judgments[1].Model).To(Equal("mock-model"))
	})

	It("matches judgments by echoed id, not position", func() {
		// Model returns the batch in reverse order.
		client := &scriptedClient{script: []completion{
			{content: `{"judgments": [{"id": 2, "score": 0.2, "rationale": "b"}, {"id": 1, "score": 0.8, "rationale": "a"}]}`},
		}}
		p := prioritize.New(client, prompt.NewBuilder(), cfg)

		result, err := p.Prioritize(ctx, [][]prompt.FindingContext{batchOf(1, 2)}, "")

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Judgments[1].Score).To(Equal(0.8))
		Expect(result.Judgments[2].Score).To(Equal(0.2))
	})

	It("clamps scores into [0,1]", func() {
		client := &scriptedClient{script: []completion{
			{content: `{"judgments": [{"id": 1, "score": 1.7, "rationale": "x"}, {"id": 2, "score": -0.4, "rationale": "y"}]}`},
		}}
		p := prioritize.New(client, prompt.NewBuilder(), cfg)

		result, err := p.Prioritize(ctx, [][]prompt.FindingContext{batchOf(1, 2)}, "")

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Judgments[1].Score).To(Equal(1.0))
		Expect(result.Judgments[2].Score).To(Equal(0.0))
	})

	It("records completion failures without affecting other batches", func() {
		client := &scriptedClient{script: []completion{
			{err: errors.New("provider down")},
			{content: judgmentJSON(map[int64]float64{2: 0.6})},
		}}
		p := prioritize.New(client, prompt.NewBuilder(), prioritize.Config{
			Concurrency: 1, MaxAttempts: 1, MaxTokens: 1024,
		})

		result, err := p.Prioritize(ctx, [][]prompt.FindingContext{batchOf(1), batchOf(2)}, "")

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Judgments).To(HaveLen(1))
		Expect(result.Judgments[2].Score).To(Equal(0.6))
		Expect(result.Failures).To(HaveLen(1))
		Expect(result.Failures[0].FindingID).To(Equal(int64(1)))
		Expect(result.Failures[0].Stage).To(Equal("completion"))
		Expect(result.Failures[0].Reason).To(ContainSubstring("provider down"))
	})

	It("records parse failures with the stage attached", func() {
		client := &scriptedClient{script: []completion{
			{content: "I refuse to answer in the requested format."},
		}}
		p := prioritize.New(client, prompt.NewBuilder(), prioritize.Config{
			Concurrency: 1, MaxAttempts: 1, RepairAttempts: 0, MaxTokens: 1024,
		})

		result, err := p.Prioritize(ctx, [][]prompt.FindingContext{batchOf(1, 2)}, "")

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Judgments).To(BeEmpty())
		Expect(result.Failures).To(HaveLen(2))
		for _, f := range result.Failures {
			Expect(f.Stage).To(Equal("parse"))
		}
	})

	Context("repair", func() {
		It("re-prompts with the violations when ids are missing", func() {
			client := &scriptedClient{script: []completion{
				{content: judgmentJSON(map[int64]float64{1: 0.9})}, // id 2 missing
				{content: judgmentJSON(map[int64]float64{1: 0.9, 2: 0.4})},
			}}
			p := prioritize.New(client, prompt.NewBuilder(), cfg)

			result, err := p.Prioritize(ctx, [][]prompt.FindingContext{batchOf(1, 2)}, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Failures).To(BeEmpty())
			Expect(result.Judgments).To(HaveLen(2))

			prompts := client.seenPrompts()
			Expect(prompts).To(HaveLen(2))
			Expect(prompts[1]).To(ContainSubstring("previous response was invalid"))
			Expect(prompts[1]).To(ContainSubstring("missing judgments for finding ids 2"))
		})

		It("keeps validated judgments and fails the rest after the repair budget", func() {
			incomplete := judgmentJSON(map[int64]float64{1: 0.9})
			client := &scriptedClient{script: []completion{
				{content: incomplete},
				{content: incomplete}, // repair still incomplete
			}}
			p := prioritize.New(client, prompt.NewBuilder(), cfg)

			result, err := p.Prioritize(ctx, [][]prompt.FindingContext{batchOf(1, 2)}, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Judgments).To(HaveLen(1))
			Expect(result.Judgments[1].Score).To(Equal(0.9))
			Expect(result.Failures).To(HaveLen(1))
			Expect(result.Failures[0].FindingID).To(Equal(int64(2)))
			Expect(result.Failures[0].Stage).To(Equal("review"))
			Expect(result.Failures[0].Reason).To(ContainSubstring("missing judgments for finding ids 2"))
		})

		It("reports the review violations in the failure reason", func() {
			duplicated := `{"judgments": [{"id": 1, "score": 0.9, "rationale": "a"}, {"id": 1, "score": 0.8, "rationale": "a again"}, {"id": 2, "score": 0.4, "rationale": "b"}]}`
			client := &scriptedClient{script: []completion{
				{content: duplicated},
				{content: duplicated}, // repair repeats the duplicate
			}}
			p := prioritize.New(client, prompt.NewBuilder(), cfg)

			result, err := p.Prioritize(ctx, [][]prompt.FindingContext{batchOf(1, 2)}, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Judgments).To(HaveLen(1))
			Expect(result.Judgments[2].Score).To(Equal(0.4))
			Expect(result.Failures).To(HaveLen(1))
			Expect(result.Failures[0].FindingID).To(Equal(int64(1)))
			Expect(result.Failures[0].Reason).To(ContainSubstring("duplicate judgments for finding ids 1"))
		})

		It("drops invented ids rather than reporting them", func() {
			client := &scriptedClient{script: []completion{
				{content: `{"judgments": [{"id": 1, "score": 0.9, "rationale": "a"}, {"id": 2, "score": 0.4, "rationale": "b"}, {"id": 99, "score": 1.0, "rationale": "ghost"}]}`},
				{content: judgmentJSON(map[int64]float64{1: 0.9, 2: 0.4})},
			}}
			p := prioritize.New(client, prompt.NewBuilder(), cfg)

			result, err := p.Prioritize(ctx, [][]prompt.FindingContext{batchOf(1, 2)}, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Judgments).To(HaveLen(2))
			Expect(result.Judgments).NotTo(HaveKey(int64(99)))
		})
	})

	It("aborts on context cancellation", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		client := &scriptedClient{}
		p := prioritize.New(client, prompt.NewBuilder(), cfg)

		_, err := p.Prioritize(cancelled, [][]prompt.FindingContext{batchOf(1)}, "")

		Expect(err).To(MatchError(context.Canceled))
	})
})
