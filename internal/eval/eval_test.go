package eval_test

import (
	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
	"github.com/SINTEF-9012/TDPrioritization/internal/eval"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("KendallTau", func() {
	It("is 1 for identical rankings", func() {
		tau, err := eval.KendallTau([]int64{1, 2, 3, 4}, []int64{1, 2, 3, 4})

		Expect(err).NotTo(HaveOccurred())
		Expect(tau).To(Equal(1.0))
	})

	It("is -1 for fully reversed rankings", func() {
		tau, err := eval.KendallTau([]int64{1, 2, 3, 4}, []int64{4, 3, 2, 1})

		Expect(err).NotTo(HaveOccurred())
		Expect(tau).To(Equal(-1.0))
	})

	It("matches the hand-computed value for one swap", func() {
		// Swapping one adjacent pair in a 4-item list flips 1 of 6 pairs.
		tau, err := eval.KendallTau([]int64{1, 2, 3, 4}, []int64{1, 3, 2, 4})

		Expect(err).NotTo(HaveOccurred())
		Expect(tau).To(BeNumerically("~", 4.0/6.0, 1e-9))
	})

	It("rejects mismatched id sets", func() {
		_, err := eval.KendallTau([]int64{1, 2}, []int64{1, 3})

		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("SpearmanRho", func() {
	It("is 1 for identical rankings", func() {
		rho, err := eval.SpearmanRho([]int64{1, 2, 3}, []int64{1, 2, 3})

		Expect(err).NotTo(HaveOccurred())
		Expect(rho).To(Equal(1.0))
	})

	It("is -1 for fully reversed rankings", func() {
		rho, err := eval.SpearmanRho([]int64{1, 2, 3, 4, 5}, []int64{5, 4, 3, 2, 1})

		Expect(err).NotTo(HaveOccurred())
		Expect(rho).To(BeNumerically("~", -1.0, 1e-9))
	})

	It("rejects rankings of different length", func() {
		_, err := eval.SpearmanRho([]int64{1, 2, 3}, []int64{1, 2})

		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("NDCG", func() {
	relevance := map[int64]float64{1: 3, 2: 2, 3: 1}

	It("is 1 for the ideal ordering", func() {
		Expect(eval.NDCG([]int64{1, 2, 3}, relevance, 3)).To(BeNumerically("~", 1.0, 1e-9))
	})

	It("penalizes placing relevant items late", func() {
		worst := eval.NDCG([]int64{3, 2, 1}, relevance, 3)

		Expect(worst).To(BeNumerically("<", 1.0))
		Expect(worst).To(BeNumerically(">", 0.0))
	})

	It("uses exponential gain, punishing top-item misplacement hard", func() {
		topSwap := eval.NDCG([]int64{2, 1, 3}, relevance, 3)
		tailSwap := eval.NDCG([]int64{1, 3, 2}, relevance, 3)

		Expect(topSwap).To(BeNumerically("<", tailSwap))
	})
})

var _ = Describe("RBO", func() {
	It("is near 1 for identical rankings", func() {
		rbo := eval.RBO([]int64{1, 2, 3, 4}, []int64{1, 2, 3, 4}, 0.9)

		Expect(rbo).To(BeNumerically(">", 0.3))
		Expect(rbo).To(BeNumerically("<=", 1.0))
	})

	It("scores disjoint rankings 0", func() {
		Expect(eval.RBO([]int64{1, 2}, []int64{3, 4}, 0.9)).To(Equal(0.0))
	})

	It("weights agreement at the top more than at the tail", func() {
		topAgree := eval.RBO([]int64{1, 2, 3, 4}, []int64{1, 2, 4, 3}, 0.9)
		tailAgree := eval.RBO([]int64{1, 2, 3, 4}, []int64{2, 1, 3, 4}, 0.9)

		Expect(topAgree).To(BeNumerically(">", tailAgree))
	})
})

var _ = Describe("Compare", func() {
	report := &domain.PriorityReport{
		Rankings: []domain.RankedFinding{
			{Rank: 1, Finding: domain.Finding{ID: 2}},
			{Rank: 2, Finding: domain.Finding{ID: 1}},
			{Rank: 3, Finding: domain.Finding{ID: 3}},
		},
	}

	It("scores a report against a reference ordering", func() {
		scores, err := eval.Compare(report, []int64{2, 1, 3})

		Expect(err).NotTo(HaveOccurred())
		Expect(scores.KendallTau).To(Equal(1.0))
		Expect(scores.SpearmanRho).To(Equal(1.0))
		Expect(scores.NDCG).To(BeNumerically("~", 1.0, 1e-9))
	})

	It("fails when the reference names unknown ids", func() {
		_, err := eval.Compare(report, []int64{2, 1, 9})

		Expect(err).To(HaveOccurred())
	})
})
