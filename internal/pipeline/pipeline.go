// Package pipeline wires the run: load findings, chunk and embed the
// project, mine git history, retrieve context, judge, aggregate, write.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SINTEF-9012/TDPrioritization/common/id"
	"github.com/SINTEF-9012/TDPrioritization/common/llm"
	"github.com/SINTEF-9012/TDPrioritization/common/logger"
	"github.com/SINTEF-9012/TDPrioritization/core/config"
	"github.com/SINTEF-9012/TDPrioritization/internal/chunker"
	"github.com/SINTEF-9012/TDPrioritization/internal/domain"
	"github.com/SINTEF-9012/TDPrioritization/internal/findings"
	"github.com/SINTEF-9012/TDPrioritization/internal/gitmetrics"
	"github.com/SINTEF-9012/TDPrioritization/internal/index"
	"github.com/SINTEF-9012/TDPrioritization/internal/prioritize"
	"github.com/SINTEF-9012/TDPrioritization/internal/prompt"
	"github.com/SINTEF-9012/TDPrioritization/internal/rank"
	"github.com/SINTEF-9012/TDPrioritization/internal/report"
	"github.com/SINTEF-9012/TDPrioritization/internal/retrieve"
	"github.com/SINTEF-9012/TDPrioritization/internal/source"
)

// spanContextLines is how many lines below the reported range the finding's
// own span carries, since detectors report an entity's first line only.
const spanContextLines = 20

// ReportStore persists a finished report; optional.
type ReportStore interface {
	Save(ctx context.Context, report *domain.PriorityReport) error
}

// Pipeline runs one project end to end. The index is built once and treated
// as read-only afterwards; only the provider-facing stages run concurrently.
type Pipeline struct {
	cfg       config.Config
	completer llm.Client
	builder   *index.Builder
	idx       index.Index
	store     ReportStore // nil disables persistence
}

type Options struct {
	Completer llm.Client
	Builder   *index.Builder
	Index     index.Index
	Store     ReportStore
}

func New(cfg config.Config, opts Options) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		completer: opts.Completer,
		builder:   opts.Builder,
		idx:       opts.Index,
		store:     opts.Store,
	}
}

// RunInput names the project under analysis.
type RunInput struct {
	ProjectPath      string   // root of the source tree, read-only
	FindingsCSV      string   // detector report
	Project          string   // project label for the report
	Smells           []string // optional category filter, empty keeps all
	IncludeStructure bool     // render the project tree into prompts
}

// Run executes the full pipeline and returns the finished report. The
// report is written atomically at the end; cancellation mid-run leaves no
// partial output.
func (p *Pipeline) Run(ctx context.Context, input RunInput) (*domain.PriorityReport, error) {
	runID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:   logger.Ptr(runID),
		Project: logger.Ptr(input.Project),
	})
	span := logger.StartSpan(ctx, "pipeline.run")
	defer span.End()
	ctx = span.Context()

	start := time.Now()
	slog.InfoContext(ctx, "pipeline starting",
		"project", input.Project,
		"findings_csv", input.FindingsCSV,
		"model", p.completer.Model())

	loaded, err := findings.Load(input.FindingsCSV, input.Project, findings.LoadOptions{
		Smells:      input.Smells,
		ShuffleSeed: p.cfg.Pipeline.ShuffleSeed,
	})
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		return nil, &domain.InputError{Path: input.FindingsCSV, Err: fmt.Errorf("no findings after filtering")}
	}
	slog.InfoContext(ctx, "findings loaded", "count", len(loaded))

	contents, err := p.buildIndex(ctx, input.ProjectPath)
	if err != nil {
		return nil, err
	}

	metrics, err := p.mineMetrics(ctx, input.ProjectPath)
	if err != nil {
		return nil, err
	}

	structure := ""
	if input.IncludeStructure {
		structure, err = source.Structure(input.ProjectPath)
		if err != nil {
			return nil, err
		}
	}

	contexts, err := p.gatherContexts(ctx, input.ProjectPath, loaded, contents, metrics)
	if err != nil {
		return nil, err
	}

	prioritizer := prioritize.New(p.completer, prompt.NewBuilder(), prioritize.Config{
		Concurrency:    p.cfg.Pipeline.Concurrency,
		MaxAttempts:    p.cfg.Pipeline.MaxAttempts,
		RepairAttempts: p.cfg.Pipeline.RepairAttempts,
		RequestTimeout: p.cfg.Pipeline.RequestTimeout,
		MaxTokens:      p.cfg.LLM.MaxTokens,
	})
	result, err := prioritizer.Prioritize(ctx, batch(contexts, p.cfg.Pipeline.BatchSize), structure)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "judgments collected",
		"judged", len(result.Judgments), "failed", len(result.Failures))

	aggregator, err := rank.New(p.cfg.Blend.Function, p.cfg.Blend.Weight)
	if err != nil {
		return nil, err
	}
	priorityReport, err := aggregator.Aggregate(loaded, result.Judgments, result.Failures, metrics)
	if err != nil {
		return nil, err
	}
	priorityReport.RunID = runID
	priorityReport.Project = input.Project

	paths, err := report.NewWriter(p.cfg.Output.Dir).WriteAll(priorityReport)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "report written", "paths", paths, "duration", time.Since(start))

	if p.store != nil {
		if err := p.store.Save(ctx, priorityReport); err != nil {
			slog.ErrorContext(ctx, "persisting report failed", "error", err)
		}
	}

	return priorityReport, nil
}

// buildIndex chunks and embeds every source file. Returns the file contents
// so later stages can slice finding spans without re-reading.
func (p *Pipeline) buildIndex(ctx context.Context, projectPath string) (map[string]string, error) {
	span := logger.StartSpan(ctx, "pipeline.index")
	defer span.End()
	ctx = span.Context()

	files, err := source.ListSourceFiles(projectPath)
	if err != nil {
		return nil, err
	}

	contents := make(map[string]string, len(files))
	var chunks []domain.Chunk
	for _, file := range files {
		content, err := source.ReadFile(projectPath, file)
		if err != nil {
			return nil, err
		}
		contents[file] = content
		chunks = append(chunks, chunker.Chunk(file, content, chunker.Config{
			Size:    p.cfg.Chunking.Size,
			Overlap: p.cfg.Chunking.Overlap,
		})...)
	}
	slog.InfoContext(ctx, "project chunked", "files", len(files), "chunks", len(chunks))

	if p.cfg.Retrieval.K > 0 {
		if err := p.builder.Build(ctx, p.idx, chunks); err != nil {
			return nil, err
		}
	}
	return contents, nil
}

func (p *Pipeline) mineMetrics(ctx context.Context, projectPath string) (map[string]domain.FileMetrics, error) {
	if !p.cfg.Metrics.Git {
		return nil, nil
	}
	span := logger.StartSpan(ctx, "pipeline.metrics")
	defer span.End()
	ctx = span.Context()

	metrics, err := gitmetrics.NewMiner(projectPath).Mine(ctx)
	if err != nil {
		// Mining is optional signal, a project without git history still ranks.
		slog.WarnContext(ctx, "git mining failed, continuing without metrics", "error", err)
		return nil, nil
	}
	slog.InfoContext(ctx, "git metrics mined", "files", len(metrics))
	return metrics, nil
}

// gatherContexts assembles one FindingContext per finding, retrieving
// similar chunks concurrently under the configured cap. A retrieval failure
// degrades that finding to no extra context rather than failing the run.
func (p *Pipeline) gatherContexts(
	ctx context.Context,
	projectPath string,
	loaded []domain.Finding,
	contents map[string]string,
	metrics map[string]domain.FileMetrics,
) ([]prompt.FindingContext, error) {
	span := logger.StartSpan(ctx, "pipeline.retrieve")
	defer span.End()
	ctx = span.Context()

	retriever := retrieve.New(p.idx, p.builder, p.cfg.Retrieval.K)

	contexts := make([]prompt.FindingContext, len(loaded))
	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, p.cfg.Pipeline.Concurrency)
		mu       sync.Mutex
		fatalErr error
	)

	for i, finding := range loaded {
		content, ok := contents[finding.FilePath]
		if !ok {
			// Detector may report files the extension filter skipped.
			var err error
			content, err = source.ReadFile(projectPath, finding.FilePath)
			if err != nil {
				return nil, err
			}
			contents[finding.FilePath] = content
		}
		ownSpan := source.Span(content, finding.Lines, spanContextLines)

		fc := prompt.FindingContext{Finding: finding, CodeSpan: ownSpan}
		if m, ok := metrics[finding.FilePath]; ok {
			m := m
			fc.Metrics = &m
		}
		contexts[i] = fc

		if p.cfg.Retrieval.K <= 0 {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, finding domain.Finding, ownSpan string) {
			defer wg.Done()
			defer func() { <-sem }()

			retrCtx := logger.WithLogFields(ctx, logger.LogFields{
				FindingID: logger.Ptr(finding.ID),
				File:      logger.Ptr(finding.FilePath),
				Component: "pipeline.retrieve",
			})
			result, err := retriever.Retrieve(retrCtx, finding, ownSpan)
			if err != nil {
				if ctx.Err() != nil {
					mu.Lock()
					fatalErr = ctx.Err()
					mu.Unlock()
					return
				}
				slog.WarnContext(retrCtx, "retrieval failed, judging without extra context", "error", err)
				return
			}
			mu.Lock()
			contexts[i].Retrieved = result
			mu.Unlock()
		}(i, finding, ownSpan)
	}
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	return contexts, nil
}

// batch splits contexts into prompt-sized groups preserving order.
func batch(contexts []prompt.FindingContext, size int) [][]prompt.FindingContext {
	if size < 1 {
		size = 1
	}
	var batches [][]prompt.FindingContext
	for start := 0; start < len(contexts); start += size {
		end := start + size
		if end > len(contexts) {
			end = len(contexts)
		}
		batches = append(batches, contexts[start:end])
	}
	return batches
}
