package domain

import "time"

// PriorityJudgment is the model's urgency verdict for one finding.
type PriorityJudgment struct {
	FindingID int64   `json:"finding_id"`
	Score     float64 `json:"score"` // higher = more urgent, expected in [0,1]
	Rationale string  `json:"rationale"`
	Model     string  `json:"model"`
}

// FindingFailure records a finding whose judgment could not be obtained.
// Failures are reported alongside the ranked report, never silently dropped.
type FindingFailure struct {
	FindingID int64  `json:"finding_id"`
	FilePath  string `json:"file_path"`
	Category  string `json:"category"`
	Stage     string `json:"stage"` // "completion" | "parse" | "review"
	Reason    string `json:"reason"`
}

// RankedFinding is one row of the final report.
type RankedFinding struct {
	Rank     int              `json:"rank"`
	Finding  Finding          `json:"finding"`
	Judgment PriorityJudgment `json:"judgment"`
	Metrics  *FileMetrics     `json:"metrics,omitempty"`
	// Blended is the score actually used for ordering: the raw judgment
	// score, or the configured blend of judgment and change-proneness.
	Blended float64 `json:"blended_score"`
}

// PriorityReport is the system's output contract: a total order over every
// successfully judged finding plus the failure list.
type PriorityReport struct {
	RunID       int64            `json:"run_id"`
	Project     string           `json:"project"`
	Model       string           `json:"model"`
	GeneratedAt time.Time        `json:"generated_at"`
	Rankings    []RankedFinding  `json:"rankings"`
	Failures    []FindingFailure `json:"failures,omitempty"`
}
