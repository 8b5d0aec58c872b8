package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SINTEF-9012/TDPrioritization/common/id"
	"github.com/SINTEF-9012/TDPrioritization/common/llm"
	"github.com/SINTEF-9012/TDPrioritization/common/logger"
	"github.com/SINTEF-9012/TDPrioritization/common/otel"
	"github.com/SINTEF-9012/TDPrioritization/core/config"
	"github.com/SINTEF-9012/TDPrioritization/core/db"
	"github.com/SINTEF-9012/TDPrioritization/internal/eval"
	"github.com/SINTEF-9012/TDPrioritization/internal/index"
	"github.com/SINTEF-9012/TDPrioritization/internal/pipeline"
	"github.com/SINTEF-9012/TDPrioritization/internal/report"
)

func main() {
	var (
		projectPath = flag.String("project", ".", "root of the source tree to analyze")
		findingsCSV = flag.String("findings", "code_quality_report.csv", "detector report CSV")
		projectName = flag.String("name", "", "project label for the report (defaults to the project directory name)")
		smells      = flag.String("smells", "", "comma-separated smell categories to keep, empty keeps all")
		structure   = flag.Bool("structure", false, "include the project tree in prompts")
		groundTruth = flag.String("ground-truth", "", "optional reference ranking file, one finding id per line")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)
	logger.Setup(cfg)

	if cfg.OTel.Enabled() {
		telemetry, err := otel.Setup(ctx, cfg.OTel)
		if err != nil {
			slog.ErrorContext(ctx, "failed to set up telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				slog.ErrorContext(ctx, "telemetry shutdown failed", "error", err)
			}
		}()
	}

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	completer, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create completion client", "error", err)
		os.Exit(1)
	}

	// Embeddings always go through the openai-compatible provider, which
	// also covers local inference servers via EMBEDDING_BASE_URL.
	embedder, err := llm.New(llm.Config{
		Provider:       llm.ProviderOpenAI,
		APIKey:         cfg.Embedding.APIKey,
		BaseURL:        cfg.Embedding.BaseURL,
		EmbeddingModel: cfg.Embedding.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create embedding client", "error", err)
		os.Exit(1)
	}

	var cache index.EmbeddingCache
	if cfg.Cache.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		cache = index.NewRedisCache(redisClient)
		slog.InfoContext(ctx, "embedding cache connected")
	}

	var idx index.Index = index.NewMemory()
	if cfg.Typesense.Enabled() {
		idx = index.NewTypesense(index.TypesenseConfig{
			URL:        cfg.Typesense.URL,
			APIKey:     cfg.Typesense.APIKey,
			Collection: cfg.Typesense.Collection,
		})
		slog.InfoContext(ctx, "using typesense index", "collection", cfg.Typesense.Collection)
	}

	var store pipeline.ReportStore
	if cfg.DB.Enabled() {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		store = report.NewStore(database)
		slog.InfoContext(ctx, "database connected")
	}

	builder := index.NewBuilder(embedder, cache, index.BuilderConfig{
		Concurrency: cfg.Pipeline.Concurrency,
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Timeout:     cfg.Pipeline.RequestTimeout,
	})

	name := *projectName
	if name == "" {
		name = deriveName(*projectPath)
	}

	p := pipeline.New(cfg, pipeline.Options{
		Completer: completer,
		Builder:   builder,
		Index:     idx,
		Store:     store,
	})

	priorityReport, err := p.Run(ctx, pipeline.RunInput{
		ProjectPath:      *projectPath,
		FindingsCSV:      *findingsCSV,
		Project:          name,
		Smells:           splitSmells(*smells),
		IncludeStructure: *structure,
	})
	if err != nil {
		slog.ErrorContext(ctx, "pipeline failed", "error", err)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "run complete",
		"ranked", len(priorityReport.Rankings),
		"failed", len(priorityReport.Failures))

	if *groundTruth != "" {
		reference, err := loadReference(*groundTruth)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load ground truth", "error", err)
			os.Exit(1)
		}
		scores, err := eval.Compare(priorityReport, reference)
		if err != nil {
			slog.ErrorContext(ctx, "evaluation failed", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "ranking evaluated",
			"kendall_tau", scores.KendallTau,
			"spearman_rho", scores.SpearmanRho,
			"ndcg", scores.NDCG,
			"rbo", scores.RBO)
	}
}

func deriveName(projectPath string) string {
	abs, err := os.Getwd()
	if projectPath != "." || err != nil {
		parts := strings.Split(strings.TrimRight(projectPath, "/"), "/")
		return parts[len(parts)-1]
	}
	parts := strings.Split(abs, "/")
	return parts[len(parts)-1]
}

func splitSmells(raw string) []string {
	if raw == "" {
		return nil
	}
	var smells []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			smells = append(smells, s)
		}
	}
	return smells
}

// loadReference reads one finding id per line; blank lines and #-comments
// are skipped.
func loadReference(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q in %s: %w", line, path, err)
		}
		ids = append(ids, id)
	}
	return ids, scanner.Err()
}

const banner = `
 _____ ___    ___      _         _ _   _
|_   _|   \  | _ \_ _ (_)___ _ _(_) |_(_)______ _ _
  | | | |) | |  _/ '_|| / _ \ '_| |  _| |_ / -_) '_|
  |_| |___/  |_| |_|  |_\___/_| |_|\__|_/__\___|_|
`
