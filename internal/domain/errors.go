package domain

import (
	"fmt"
	"strings"
)

// InputError marks malformed or missing detector input or source files.
// Fatal for the project run.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// ProviderError marks an embedding or completion call that failed after
// exhausting its retry budget.
type ProviderError struct {
	Op       string // "embed" | "complete"
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError marks a model response that did not contain a recoverable
// judgment. The raw response is attached for diagnosis, never defaulted over.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("unparsable model response (%s): %q", e.Reason, raw)
}

// IncompleteJudgmentError marks an aggregation invariant violation: a finding
// with neither a judgment nor a recorded failure. Indicates an upstream bug.
type IncompleteJudgmentError struct {
	MissingIDs []int64
}

func (e *IncompleteJudgmentError) Error() string {
	ids := make([]string, len(e.MissingIDs))
	for i, id := range e.MissingIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("findings without judgment or failure record: [%s]", strings.Join(ids, " "))
}
