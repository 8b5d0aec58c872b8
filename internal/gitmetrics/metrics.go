package gitmetrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// Change-proneness weights: commit frequency and fault history dominate,
// raw churn contributes less because it double-counts large refactors.
const (
	weightCommits = 0.4
	weightChurn   = 0.2
	weightBugfix  = 0.4
)

// applyChangeProneness min-max-normalizes commit count, churn and bug-fix
// count across all files and stores the weighted composite in [0,1].
func applyChangeProneness(metrics map[string]domain.FileMetrics) {
	if len(metrics) == 0 {
		return
	}

	var commits, churn, bugfix []float64
	files := make([]string, 0, len(metrics))
	for file, m := range metrics {
		files = append(files, file)
		commits = append(commits, float64(m.CommitCount))
		churn = append(churn, float64(m.Churn))
		bugfix = append(bugfix, float64(m.BugFixCommits))
	}

	normCommits := minMaxNormalize(commits)
	normChurn := minMaxNormalize(churn)
	normBugfix := minMaxNormalize(bugfix)

	for i, file := range files {
		m := metrics[file]
		m.ChangeProneness = weightCommits*normCommits[i] +
			weightChurn*normChurn[i] +
			weightBugfix*normBugfix[i]
		metrics[file] = m
	}
}

func minMaxNormalize(values []float64) []float64 {
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(values))
	span := max - min
	for i, v := range values {
		out[i] = (v - min) / (span + 1e-9)
	}
	return out
}

// FileSummary renders one file's metrics as prompt-ready prose with the
// qualitative labels the model reasons over.
func FileSummary(m domain.FileMetrics) string {
	activity := "rarely changed"
	switch {
	case m.CommitCount > 50:
		activity = "very active"
	case m.CommitCount > 10:
		activity = "moderately active"
	}

	recency := "stagnant or legacy code"
	switch {
	case m.RecencyDays < 30:
		recency = "recently modified"
	case m.RecencyDays < 365:
		recency = "inactive for a while"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s\n", m.FilePath)
	fmt.Fprintf(&sb, "- Commit frequency: %d (%s)\n", m.CommitCount, activity)
	fmt.Fprintf(&sb, "- Total churn (lines changed): %d\n", m.Churn)
	fmt.Fprintf(&sb, "- Bug-fix commits: %d\n", m.BugFixCommits)
	fmt.Fprintf(&sb, "- Developers involved: %d\n", m.AuthorCount)
	fmt.Fprintf(&sb, "- Last modified: %d days ago (%s)\n", int(m.RecencyDays), recency)
	fmt.Fprintf(&sb, "- Change-proneness score: %.2f\n", m.ChangeProneness)
	return sb.String()
}

// StabilityReport renders a whole-project evolution report, most
// change-prone files first.
func StabilityReport(metrics map[string]domain.FileMetrics) string {
	if len(metrics) == 0 {
		return "No git history found for the analyzed files."
	}

	sorted := make([]domain.FileMetrics, 0, len(metrics))
	for _, m := range metrics {
		sorted = append(sorted, m)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ChangeProneness != sorted[j].ChangeProneness {
			return sorted[i].ChangeProneness > sorted[j].ChangeProneness
		}
		return sorted[i].FilePath < sorted[j].FilePath
	})

	var sb strings.Builder
	sb.WriteString("------ GIT-BASED CODE STABILITY AND EVOLUTION REPORT ------\n\n")
	for _, m := range sorted {
		sb.WriteString(FileSummary(m))
		sb.WriteString(strings.Repeat("-", 60))
		sb.WriteString("\n")
	}
	return sb.String()
}
