package llm_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/SINTEF-9012/TDPrioritization/common/llm"
	"github.com/openai/openai-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("New", func() {
	It("requires an API key", func() {
		client, err := llm.New(llm.Config{Provider: llm.ProviderOpenAI})

		Expect(err).To(HaveOccurred())
		Expect(client).To(BeNil())
	})

	It("rejects unknown providers", func() {
		_, err := llm.New(llm.Config{Provider: "bard", APIKey: "k"})

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("bard"))
	})

	It("defaults to the openai provider", func() {
		client, err := llm.New(llm.Config{APIKey: "k", Model: "gpt-4o-mini"})

		Expect(err).NotTo(HaveOccurred())
		Expect(client.Model()).To(Equal("gpt-4o-mini"))
	})

	It("creates an anthropic client without embedding support", func() {
		client, err := llm.New(llm.Config{Provider: llm.ProviderAnthropic, APIKey: "k"})

		Expect(err).NotTo(HaveOccurred())
		_, err = client.Embed(context.Background(), []string{"text"})
		Expect(errors.Is(err, llm.ErrEmbeddingUnsupported)).To(BeTrue())
	})
})

var _ = Describe("IsRetryable", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	apiErr := func(status int) error {
		return fmt.Errorf("request failed: %w", &openai.Error{StatusCode: status})
	}

	It("retries rate limits", func() {
		Expect(llm.IsRetryable(ctx, apiErr(429))).To(BeTrue())
	})

	It("retries server errors", func() {
		Expect(llm.IsRetryable(ctx, apiErr(500))).To(BeTrue())
		Expect(llm.IsRetryable(ctx, apiErr(503))).To(BeTrue())
	})

	It("does not retry client errors", func() {
		Expect(llm.IsRetryable(ctx, apiErr(400))).To(BeFalse())
		Expect(llm.IsRetryable(ctx, apiErr(401))).To(BeFalse())
	})

	It("retries bare network errors", func() {
		Expect(llm.IsRetryable(ctx, errors.New("connection reset by peer"))).To(BeTrue())
	})

	It("does not retry context cancellation", func() {
		Expect(llm.IsRetryable(ctx, context.Canceled)).To(BeFalse())
		Expect(llm.IsRetryable(ctx, fmt.Errorf("call: %w", context.DeadlineExceeded))).To(BeFalse())
	})

	It("does not retry unsupported embeddings", func() {
		Expect(llm.IsRetryable(ctx, llm.ErrEmbeddingUnsupported)).To(BeFalse())
	})

	It("does not retry nil", func() {
		Expect(llm.IsRetryable(ctx, nil)).To(BeFalse())
	})
})

var _ = Describe("GenerateSchema", func() {
	type judgment struct {
		ID    int64   `json:"id"`
		Score float64 `json:"score"`
	}
	type envelope struct {
		Judgments []judgment `json:"judgments"`
	}

	It("reflects a closed schema for structured output", func() {
		schema := llm.GenerateSchema[envelope]()

		Expect(schema).NotTo(BeNil())
	})
})

var _ = Describe("Temp", func() {
	It("returns a pointer usable in requests", func() {
		req := llm.Request{Temperature: llm.Temp(0)}

		Expect(req.Temperature).NotTo(BeNil())
		Expect(*req.Temperature).To(Equal(0.0))
	})
})
