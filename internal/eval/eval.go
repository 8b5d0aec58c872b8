// Package eval scores a produced ranking against a reference ordering.
// Used when a ground-truth priority list exists for the project, typically
// from expert annotation.
package eval

import (
	"fmt"
	"math"
	"sort"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// Scores bundles the rank-agreement metrics for one comparison.
type Scores struct {
	KendallTau  float64 `json:"kendall_tau"`
	SpearmanRho float64 `json:"spearman_rho"`
	NDCG        float64 `json:"ndcg"`
	RBO         float64 `json:"rbo"`
}

// rboP weights how top-heavy the rank-biased overlap is; 0.9 puts roughly
// 86% of the weight on the first ten ranks.
const rboP = 0.9

// Compare scores a report's ordering against a reference id ordering. The
// reference must contain exactly the ids the report ranked.
func Compare(report *domain.PriorityReport, reference []int64) (Scores, error) {
	system := make([]int64, len(report.Rankings))
	for i, r := range report.Rankings {
		system[i] = r.Finding.ID
	}

	tau, err := KendallTau(system, reference)
	if err != nil {
		return Scores{}, err
	}
	rho, err := SpearmanRho(system, reference)
	if err != nil {
		return Scores{}, err
	}

	// Relevance for nDCG: an id's reference position converted to a
	// graded score, top of the reference list most relevant.
	relevance := make(map[int64]float64, len(reference))
	for i, id := range reference {
		relevance[id] = float64(len(reference) - i)
	}

	return Scores{
		KendallTau:  tau,
		SpearmanRho: rho,
		NDCG:        NDCG(system, relevance, len(system)),
		RBO:         RBO(system, reference, rboP),
	}, nil
}

// KendallTau is the tau-a rank correlation between two orderings of the
// same id set, in [-1, 1].
func KendallTau(a, b []int64) (float64, error) {
	ranksA, ranksB, err := alignRanks(a, b)
	if err != nil {
		return 0, err
	}
	n := len(ranksA)
	if n < 2 {
		return 1, nil
	}

	concordant, discordant := 0, 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			da := ranksA[i] - ranksA[j]
			db := ranksB[i] - ranksB[j]
			switch {
			case da*db > 0:
				concordant++
			case da*db < 0:
				discordant++
			}
		}
	}
	pairs := n * (n - 1) / 2
	return float64(concordant-discordant) / float64(pairs), nil
}

// SpearmanRho is the rank correlation 1 - 6*sum(d^2)/(n(n^2-1)), in [-1, 1].
func SpearmanRho(a, b []int64) (float64, error) {
	ranksA, ranksB, err := alignRanks(a, b)
	if err != nil {
		return 0, err
	}
	n := len(ranksA)
	if n < 2 {
		return 1, nil
	}

	sumSq := 0.0
	for i := range ranksA {
		d := float64(ranksA[i] - ranksB[i])
		sumSq += d * d
	}
	return 1 - (6*sumSq)/float64(n*(n*n-1)), nil
}

// NDCG computes normalized discounted cumulative gain at depth k with
// exponential gain 2^rel - 1. Returns 1.0 for an ideally ordered list.
func NDCG(system []int64, relevance map[int64]float64, k int) float64 {
	if k <= 0 || k > len(system) {
		k = len(system)
	}
	if k == 0 {
		return 0
	}

	dcg := 0.0
	for i := 0; i < k; i++ {
		dcg += gain(relevance[system[i]]) / math.Log2(float64(i)+2)
	}

	ideal := make([]float64, 0, len(relevance))
	for _, rel := range relevance {
		ideal = append(ideal, rel)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))

	idcg := 0.0
	for i := 0; i < k && i < len(ideal); i++ {
		idcg += gain(ideal[i]) / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func gain(rel float64) float64 {
	return math.Exp2(rel) - 1
}

// RBO is rank-biased overlap with persistence p: the weighted average of
// set overlap at every prefix depth. 1.0 means identical rankings.
func RBO(a, b []int64, p float64) float64 {
	depth := len(a)
	if len(b) < depth {
		depth = len(b)
	}
	if depth == 0 {
		return 0
	}

	seenA := make(map[int64]bool, depth)
	seenB := make(map[int64]bool, depth)
	overlap := 0
	sum := 0.0
	for d := 1; d <= depth; d++ {
		idA, idB := a[d-1], b[d-1]
		if idA == idB {
			overlap++
		} else {
			if seenB[idA] {
				overlap++
			}
			if seenA[idB] {
				overlap++
			}
			seenA[idA] = true
			seenB[idB] = true
		}
		sum += math.Pow(p, float64(d-1)) * float64(overlap) / float64(d)
	}
	return (1 - p) * sum
}

// alignRanks maps both orderings onto their rank positions over the shared
// id universe. The id sets must match exactly.
func alignRanks(a, b []int64) ([]int, []int, error) {
	if len(a) != len(b) {
		return nil, nil, fmt.Errorf("ranking lengths differ: %d vs %d", len(a), len(b))
	}

	posB := make(map[int64]int, len(b))
	for i, id := range b {
		posB[id] = i + 1
	}

	ranksA := make([]int, len(a))
	ranksB := make([]int, len(a))
	for i, id := range a {
		pos, ok := posB[id]
		if !ok {
			return nil, nil, fmt.Errorf("id %d missing from reference ranking", id)
		}
		ranksA[i] = i + 1
		ranksB[i] = pos
	}
	return ranksA, ranksB, nil
}
