// Package gitmetrics mines a project's git history for per-file
// churn/ownership/recency signals. Only the resulting metric values are
// consumed by the prioritization core; history traversal itself stays here.
package gitmetrics

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// bugfixKeywords flag a commit as fault-related when present in its message.
var bugfixKeywords = []string{"fix", "bug", "issue", "error"}

const commitMarker = "--commit--"

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Miner shells out to git for history traversal.
type Miner struct {
	repoPath string
	run      commandRunner
	now      func() time.Time
}

func NewMiner(repoPath string) *Miner {
	return &Miner{
		repoPath: repoPath,
		run:      execRunner,
		now:      time.Now,
	}
}

type fileStats struct {
	commits int
	churn   int
	bugfix  int
	authors map[string]bool
	dates   []int64 // unix seconds, log order (newest first)
}

// Mine walks the full commit log once and derives per-file metrics, including
// the normalized change-proneness score used for blending.
func (m *Miner) Mine(ctx context.Context) (map[string]domain.FileMetrics, error) {
	out, err := m.run(ctx, "git",
		"-C", m.repoPath,
		"log",
		"--numstat",
		"--date=unix",
		"--no-renames",
		"--pretty=format:"+commitMarker+"%ae|%ad|%s")
	if err != nil {
		return nil, fmt.Errorf("running git log in %s: %w", m.repoPath, err)
	}

	stats := parseLog(string(out))
	if len(stats) == 0 {
		slog.DebugContext(ctx, "git history empty", "repo", m.repoPath)
		return map[string]domain.FileMetrics{}, nil
	}

	metrics := make(map[string]domain.FileMetrics, len(stats))
	now := m.now()
	for file, s := range stats {
		metrics[file] = summarize(file, s, now)
	}
	applyChangeProneness(metrics)

	slog.InfoContext(ctx, "git metrics mined",
		"repo", m.repoPath,
		"files", len(metrics))

	return metrics, nil
}

func parseLog(out string) map[string]*fileStats {
	stats := make(map[string]*fileStats)

	var author string
	var date int64
	var isBugfix bool

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		if rest, ok := strings.CutPrefix(line, commitMarker); ok {
			parts := strings.SplitN(rest, "|", 3)
			if len(parts) != 3 {
				continue
			}
			author = parts[0]
			date, _ = strconv.ParseInt(parts[1], 10, 64)
			isBugfix = containsBugfixKeyword(parts[2])
			continue
		}

		// numstat row: "<added>\t<deleted>\t<path>"; "-" for binary files.
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		added, _ := strconv.Atoi(fields[0])
		deleted, _ := strconv.Atoi(fields[1])
		file := fields[2]

		s, ok := stats[file]
		if !ok {
			s = &fileStats{authors: make(map[string]bool)}
			stats[file] = s
		}
		s.commits++
		s.churn += added + deleted
		s.authors[author] = true
		s.dates = append(s.dates, date)
		if isBugfix {
			s.bugfix++
		}
	}

	return stats
}

func containsBugfixKeyword(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range bugfixKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func summarize(file string, s *fileStats, now time.Time) domain.FileMetrics {
	first, last := s.dates[0], s.dates[0]
	for _, d := range s.dates {
		if d < first {
			first = d
		}
		if d > last {
			last = d
		}
	}

	const day = 86400.0
	ageDays := float64(now.Unix()-first) / day
	recencyDays := float64(now.Unix()-last) / day

	meanGap := ageDays
	if len(s.dates) > 1 {
		meanGap = (float64(last) - float64(first)) / day / float64(len(s.dates)-1)
	}

	return domain.FileMetrics{
		FilePath:      file,
		CommitCount:   s.commits,
		Churn:         s.churn,
		BugFixCommits: s.bugfix,
		AuthorCount:   len(s.authors),
		FirstCommit:   time.Unix(first, 0),
		LastCommit:    time.Unix(last, 0),
		RecencyDays:   recencyDays,
		MeanGapDays:   meanGap,
	}
}
