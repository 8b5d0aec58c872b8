package rank

import (
	"fmt"
	"sort"
	"time"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// BlendFunc combines a judgment score with a normalized per-file metric
// signal, both in [0,1]. weight is the share given to the judgment.
type BlendFunc func(weight, score, signal float64) float64

// blendFuncs is the registry of named blend policies. The active policy is
// selected by name in configuration so it can evolve without code changes
// at call sites.
var blendFuncs = map[string]BlendFunc{
	"linear": func(weight, score, signal float64) float64 {
		return weight*score + (1-weight)*signal
	},
	// max surfaces a finding when either signal alone is alarming.
	"max": func(weight, score, signal float64) float64 {
		if score >= signal {
			return score
		}
		return signal
	},
}

// Aggregator merges judgments and optional metrics into a totally ordered
// report.
type Aggregator struct {
	blend  BlendFunc
	weight float64
}

// New looks up the named blend policy. weight must already be validated to
// [0,1] by configuration loading.
func New(blendName string, weight float64) (*Aggregator, error) {
	fn, ok := blendFuncs[blendName]
	if !ok {
		return nil, fmt.Errorf("unknown blend function %q", blendName)
	}
	return &Aggregator{blend: fn, weight: weight}, nil
}

// Aggregate produces the final ordering. Every finding must carry either a
// judgment or a failure entry; anything unaccounted for is an
// IncompleteJudgmentError, because a silent drop would corrupt the report's
// contract. metrics may be nil, in which case blended score equals the raw
// judgment score.
func (a *Aggregator) Aggregate(
	findings []domain.Finding,
	judgments map[int64]domain.PriorityJudgment,
	failures []domain.FindingFailure,
	metrics map[string]domain.FileMetrics,
) (*domain.PriorityReport, error) {
	failed := make(map[int64]bool, len(failures))
	for _, f := range failures {
		failed[f.FindingID] = true
	}

	var missing []int64
	rankings := make([]domain.RankedFinding, 0, len(findings))
	model := ""

	for _, finding := range findings {
		judgment, ok := judgments[finding.ID]
		if !ok {
			if !failed[finding.ID] {
				missing = append(missing, finding.ID)
			}
			continue
		}
		if failed[finding.ID] {
			// A finding cannot be both judged and failed.
			missing = append(missing, finding.ID)
			continue
		}
		if model == "" {
			model = judgment.Model
		}

		ranked := domain.RankedFinding{
			Finding:  finding,
			Judgment: judgment,
			Blended:  judgment.Score,
		}
		if m, ok := metrics[finding.FilePath]; ok {
			m := m
			ranked.Metrics = &m
			ranked.Blended = a.blend(a.weight, judgment.Score, m.ChangeProneness)
		}
		rankings = append(rankings, ranked)
	}

	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return nil, &domain.IncompleteJudgmentError{MissingIDs: missing}
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		return less(rankings[i], rankings[j])
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}

	return &domain.PriorityReport{
		Model:       model,
		GeneratedAt: time.Now().UTC(),
		Rankings:    rankings,
		Failures:    failures,
	}, nil
}

// less orders by blended score descending, then severity descending,
// file path ascending, line range ascending. The full tie chain keeps
// output reproducible across runs with identical judgment inputs.
func less(a, b domain.RankedFinding) bool {
	if a.Blended != b.Blended {
		return a.Blended > b.Blended
	}
	if a.Finding.Severity.Ordinal() != b.Finding.Severity.Ordinal() {
		return a.Finding.Severity.Ordinal() > b.Finding.Severity.Ordinal()
	}
	if a.Finding.FilePath != b.Finding.FilePath {
		return a.Finding.FilePath < b.Finding.FilePath
	}
	return a.Finding.Lines.Compare(b.Finding.Lines) < 0
}
