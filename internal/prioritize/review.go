package prioritize

import (
	"fmt"
	"sort"
	"strings"
)

// reviewResult describes how a set of parsed judgments deviates from the
// batch that was requested.
type reviewResult struct {
	Missing   []int64
	Duplicate []int64
	Unknown   []int64
}

func (r reviewResult) ok() bool {
	return len(r.Missing) == 0 && len(r.Duplicate) == 0 && len(r.Unknown) == 0
}

// violations renders the deviations as repair-prompt instructions.
func (r reviewResult) violations() string {
	var parts []string
	if len(r.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing judgments for finding ids %s", joinIDs(r.Missing)))
	}
	if len(r.Duplicate) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate judgments for finding ids %s", joinIDs(r.Duplicate)))
	}
	if len(r.Unknown) > 0 {
		parts = append(parts, fmt.Sprintf("judgments for unknown finding ids %s", joinIDs(r.Unknown)))
	}
	return strings.Join(parts, "; ")
}

// review checks that every requested finding id was judged exactly once and
// that no id was invented.
func review(wanted []int64, judgments []rawJudgment) reviewResult {
	wantedSet := make(map[int64]bool, len(wanted))
	for _, id := range wanted {
		wantedSet[id] = true
	}

	seen := make(map[int64]int, len(judgments))
	var result reviewResult
	for _, j := range judgments {
		if !wantedSet[j.ID] {
			result.Unknown = append(result.Unknown, j.ID)
			continue
		}
		seen[j.ID]++
	}
	for id, count := range seen {
		if count > 1 {
			result.Duplicate = append(result.Duplicate, id)
		}
	}
	for _, id := range wanted {
		if seen[id] == 0 {
			result.Missing = append(result.Missing, id)
		}
	}

	sortIDs(result.Missing)
	sortIDs(result.Duplicate)
	sortIDs(result.Unknown)
	return result
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
