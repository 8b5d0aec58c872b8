package domain

import (
	"fmt"
	"strings"
)

// Severity is the detector's severity normalized to a fixed ordinal scale.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Ordinal returns the rank of a severity for ordering, higher = more severe.
func (s Severity) Ordinal() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps a detector severity label onto the normalized scale.
// Unknown labels fall back to info rather than failing the load.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "blocker":
		return SeverityCritical
	case "high", "major":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	case "low", "minor":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// LineRange is a 1-based inclusive span of lines within a source file.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r LineRange) String() string {
	if r.End <= r.Start {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Compare orders ranges by start line, then end line.
func (r LineRange) Compare(other LineRange) int {
	if r.Start != other.Start {
		return r.Start - other.Start
	}
	return r.End - other.End
}

// Finding is one detected smell instance. Immutable once loaded.
// Identity is (FilePath, Lines, Category); ID is assigned sequentially
// after filtering so the model only ever sees small, echoable integers.
type Finding struct {
	ID          int64     `json:"id"`
	Project     string    `json:"project"`
	FilePath    string    `json:"file_path"`
	Lines       LineRange `json:"lines"`
	Category    string    `json:"category"`   // smell name, e.g. "Long Method"
	SmellType   string    `json:"smell_type"` // detector taxonomy, e.g. "Implementation"
	Module      string    `json:"module,omitempty"`
	Severity    Severity  `json:"severity"`
	RawSeverity string    `json:"raw_severity,omitempty"`
	Message     string    `json:"message"`
}

// Key returns the identity triple for duplicate detection.
func (f Finding) Key() string {
	return fmt.Sprintf("%s:%s:%s", f.FilePath, f.Lines, f.Category)
}
