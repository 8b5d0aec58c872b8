package domain

import "time"

// FileMetrics carries per-file repository-mining signals. Keyed by file path,
// read-only to the prioritization core.
type FileMetrics struct {
	FilePath      string    `json:"file_path"`
	CommitCount   int       `json:"commit_count"`
	Churn         int       `json:"churn"` // lines added + deleted across history
	BugFixCommits int       `json:"bug_fix_commits"`
	AuthorCount   int       `json:"author_count"`
	FirstCommit   time.Time `json:"first_commit"`
	LastCommit    time.Time `json:"last_commit"`
	RecencyDays   float64   `json:"recency_days"`
	MeanGapDays   float64   `json:"mean_gap_days"`

	// ChangeProneness is the min-max-normalized composite in [0,1]
	// used for blending with the model's priority score.
	ChangeProneness float64 `json:"change_proneness"`
}
