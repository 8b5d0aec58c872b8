package prioritize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
)

// rawJudgment is one judgment row as produced by the model, before
// validation against the requested finding IDs.
type rawJudgment struct {
	ID        int64   `json:"id"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

type judgmentEnvelope struct {
	Judgments []rawJudgment `json:"judgments"`
}

var (
	fenceOpenRe  = regexp.MustCompile("(?s)^.*?```[a-zA-Z]*\\s*")
	fenceCloseRe = regexp.MustCompile("(?s)\\s*```.*$")
	separatorRe  = regexp.MustCompile(`^-+\|(-+\|?)+$`)
)

// parseJudgments recovers judgments from a model response. Primary format is
// the JSON envelope the prompt demands; as a fallback it accepts the
// pipe-separated table some models produce anyway. A response without a
// recoverable numeric score per row is a ParseError, never a default.
func parseJudgments(raw string) ([]rawJudgment, error) {
	cleaned := normalize(raw)
	if cleaned == "" {
		return nil, &domain.ParseError{Reason: "empty response", Raw: raw}
	}

	if judgments, ok := parseJSON(cleaned); ok {
		return judgments, nil
	}
	if judgments, ok := parseTable(cleaned); ok {
		return judgments, nil
	}

	return nil, &domain.ParseError{Reason: "no judgment rows recognized", Raw: raw}
}

// normalize strips markdown fences and replaces the unicode punctuation
// models like to substitute for ASCII.
func normalize(raw string) string {
	text := raw
	if strings.Contains(text, "```") {
		text = fenceOpenRe.ReplaceAllString(text, "")
		text = fenceCloseRe.ReplaceAllString(text, "")
	}

	replacer := strings.NewReplacer(
		"“", `"`,
		"”", `"`,
		"‘", "'",
		"’", "'",
		"–", "-",
		"—", "-",
	)
	return strings.TrimSpace(replacer.Replace(text))
}

func parseJSON(text string) ([]rawJudgment, bool) {
	candidates := []string{text}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	for _, candidate := range candidates {
		var envelope judgmentEnvelope
		if err := json.Unmarshal([]byte(candidate), &envelope); err == nil && len(envelope.Judgments) > 0 {
			return envelope.Judgments, true
		}
		// A bare array is close enough to the contract to accept.
		var list []rawJudgment
		if err := json.Unmarshal([]byte(candidate), &list); err == nil && len(list) > 0 {
			return list, true
		}
	}
	return nil, false
}

// parseTable accepts "id|score|rationale" rows, optionally with a leading
// rank column, after dropping headers and ---|--- separator lines.
func parseTable(text string) ([]rawJudgment, bool) {
	var judgments []rawJudgment

	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "|")
		if line == "" || separatorRe.MatchString(line) {
			continue
		}
		if isHeader(line) {
			continue
		}

		cells := strings.Split(line, "|")
		if len(cells) < 3 {
			return nil, false
		}
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}

		// With four or more cells the first is a rank column.
		idCell := 0
		if len(cells) >= 4 {
			idCell = 1
		}

		id, err := strconv.ParseInt(strings.Trim(cells[idCell], "'\""), 10, 64)
		if err != nil {
			return nil, false
		}
		score, err := strconv.ParseFloat(cells[idCell+1], 64)
		if err != nil {
			return nil, false
		}

		judgments = append(judgments, rawJudgment{
			ID:        id,
			Score:     score,
			Rationale: strings.Join(cells[idCell+2:], " | "),
		})
	}

	return judgments, len(judgments) > 0
}

func isHeader(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "rank|") || strings.HasPrefix(lower, "id|") ||
		strings.HasPrefix(lower, "rank |") || strings.HasPrefix(lower, "id |")
}
