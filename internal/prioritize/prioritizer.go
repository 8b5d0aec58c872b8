package prioritize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/SINTEF-9012/TDPrioritization/common/llm"
	"github.com/SINTEF-9012/TDPrioritization/common/logger"
	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
	"github.com/SINTEF-9012/TDPrioritization/internal/prompt"
)

// Config controls how judgment requests are issued.
type Config struct {
	Concurrency    int           // parallel in-flight batches
	MaxAttempts    int           // completion attempts per batch
	RepairAttempts int           // re-prompts when ids are missing or invented
	RequestTimeout time.Duration // per-call budget, 0 disables
	MaxTokens      int
}

// Prioritizer sends finding batches to the model and collects priority
// judgments. Batches that fail after retries and repair turn into
// FindingFailure entries rather than aborting the run.
type Prioritizer struct {
	client  llm.Client
	builder *prompt.Builder
	cfg     Config
}

func New(client llm.Client, builder *prompt.Builder, cfg Config) *Prioritizer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RepairAttempts < 0 {
		cfg.RepairAttempts = 0
	}
	return &Prioritizer{client: client, builder: builder, cfg: cfg}
}

// Result carries the outcome of one run: judgments keyed by finding id plus
// per-finding failures for everything that could not be judged.
type Result struct {
	Judgments map[int64]domain.PriorityJudgment
	Failures  []domain.FindingFailure
}

// Prioritize judges every batch. Batches run on a bounded worker pool;
// within a batch the model sees all findings in one prompt and must echo
// each id exactly once. Only parent context cancellation aborts the run.
func (p *Prioritizer) Prioritize(ctx context.Context, batches [][]prompt.FindingContext, structure string) (*Result, error) {
	span := logger.StartSpan(ctx, "prioritize.judge")
	defer span.End()
	ctx = span.Context()

	result := &Result{Judgments: make(map[int64]domain.PriorityJudgment)}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.cfg.Concurrency)
	)

	for _, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(batch []prompt.FindingContext) {
			defer wg.Done()
			defer func() { <-sem }()

			judgments, failures := p.judgeBatch(ctx, batch, structure)

			mu.Lock()
			for _, j := range judgments {
				result.Judgments[j.FindingID] = j
			}
			result.Failures = append(result.Failures, failures...)
			mu.Unlock()
		}(batch)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].FindingID < result.Failures[j].FindingID
	})
	return result, nil
}

// judgeBatch runs the complete/parse/review loop for one batch. A review
// violation triggers a repair re-prompt carrying the violation text; after
// RepairAttempts repairs the partial judgments that did validate are kept
// and the rest become failures.
func (p *Prioritizer) judgeBatch(ctx context.Context, batch []prompt.FindingContext, structure string) ([]domain.PriorityJudgment, []domain.FindingFailure) {
	ids := make([]int64, len(batch))
	for i, fc := range batch {
		ids[i] = fc.Finding.ID
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "prioritizer"})
	if len(batch) == 1 {
		ctx = logger.WithLogFields(ctx, logger.LogFields{
			FindingID: logger.Ptr(batch[0].Finding.ID),
			File:      logger.Ptr(batch[0].Finding.FilePath),
		})
	}

	userPrompt, err := p.builder.Build(batch, structure)
	if err != nil {
		return nil, p.failAll(batch, "prompt", err)
	}

	raw, err := p.completeWithRetry(ctx, userPrompt)
	if err != nil {
		return nil, p.failAll(batch, "completion", err)
	}

	judgments, err := parseJudgments(raw)
	if err != nil {
		slog.ErrorContext(ctx, "judgment response unparseable",
			"error", err, "response", logger.Truncate(raw, 500))
		return nil, p.failAll(batch, "parse", err)
	}

	for repair := 0; ; repair++ {
		rev := review(ids, judgments)
		if rev.ok() {
			break
		}
		if repair >= p.cfg.RepairAttempts {
			slog.WarnContext(ctx, "judgment review failed after repairs",
				"violations", rev.violations(), "repairs", repair)
			return p.split(batch, judgments, rev)
		}

		slog.InfoContext(ctx, "re-prompting to repair judgments",
			"violations", rev.violations(), "repair", repair+1)
		repairPrompt := fmt.Sprintf("%s\n\nYour previous response was invalid: %s.\nRespond again with the complete JSON object, judging every listed finding id exactly once.",
			userPrompt, rev.violations())

		raw, err = p.completeWithRetry(ctx, repairPrompt)
		if err != nil {
			return p.split(batch, judgments, rev)
		}
		repaired, perr := parseJudgments(raw)
		if perr != nil {
			slog.ErrorContext(ctx, "repair response unparseable", "error", perr)
			return p.split(batch, judgments, rev)
		}
		judgments = repaired
	}

	return p.convert(judgments), nil
}

// completeWithRetry is the provider call with bounded exponential backoff.
// A per-call timeout counts as a provider failure, not a run abort.
func (p *Prioritizer) completeWithRetry(ctx context.Context, userPrompt string) (string, error) {
	req := llm.Request{
		SystemPrompt: prompt.SystemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    p.cfg.MaxTokens,
		Temperature:  llm.Temp(0),
		SchemaName:   "priority_judgments",
		Schema:       llm.GenerateSchema[judgmentEnvelope](),
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			slog.WarnContext(ctx, "retrying judgment completion",
				"attempt", attempt+1, "max_attempts", p.cfg.MaxAttempts, "error", lastErr)
			time.Sleep(time.Duration(1<<attempt) * time.Second)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if p.cfg.RequestTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		}
		resp, err := p.client.Complete(callCtx, req)
		if cancel != nil {
			cancel()
		}
		attempts = attempt + 1
		if err == nil {
			return resp.Content, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) && !llm.IsRetryable(ctx, err) {
			break
		}
	}

	return "", &domain.ProviderError{Op: "complete", Attempts: attempts, Err: lastErr}
}

// split keeps the judgments that validated and fails the rest of the batch.
func (p *Prioritizer) split(batch []prompt.FindingContext, judgments []rawJudgment, rev reviewResult) ([]domain.PriorityJudgment, []domain.FindingFailure) {
	bad := make(map[int64]bool)
	for _, id := range rev.Missing {
		bad[id] = true
	}
	for _, id := range rev.Duplicate {
		bad[id] = true
	}

	var kept []rawJudgment
	seen := make(map[int64]bool)
	for _, j := range judgments {
		if bad[j.ID] || seen[j.ID] {
			continue
		}
		seen[j.ID] = true
		kept = append(kept, j)
	}
	// Drop invented ids.
	valid := kept[:0]
	wanted := make(map[int64]bool, len(batch))
	for _, fc := range batch {
		wanted[fc.Finding.ID] = true
	}
	for _, j := range kept {
		if wanted[j.ID] {
			valid = append(valid, j)
		}
	}

	var failures []domain.FindingFailure
	reason := rev.violations()
	for _, fc := range batch {
		if bad[fc.Finding.ID] || !seen[fc.Finding.ID] {
			failures = append(failures, domain.FindingFailure{
				FindingID: fc.Finding.ID,
				FilePath:  fc.Finding.FilePath,
				Category:  fc.Finding.Category,
				Stage:     "review",
				Reason:    reason,
			})
		}
	}
	return p.convert(valid), failures
}

func (p *Prioritizer) convert(judgments []rawJudgment) []domain.PriorityJudgment {
	out := make([]domain.PriorityJudgment, 0, len(judgments))
	for _, j := range judgments {
		out = append(out, domain.PriorityJudgment{
			FindingID: j.ID,
			Score:     clampScore(j.Score),
			Rationale: j.Rationale,
			Model:     p.client.Model(),
		})
	}
	return out
}

func (p *Prioritizer) failAll(batch []prompt.FindingContext, stage string, err error) []domain.FindingFailure {
	failures := make([]domain.FindingFailure, 0, len(batch))
	for _, fc := range batch {
		failures = append(failures, domain.FindingFailure{
			FindingID: fc.Finding.ID,
			FilePath:  fc.Finding.FilePath,
			Category:  fc.Finding.Category,
			Stage:     stage,
			Reason:    err.Error(),
		})
	}
	return failures
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
