// Command playlistgen runs one batch playlist-generation pass against a
// station's programming document, per spec.md §4.8.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/troykelly/playlistgen/internal/batch"
	"github.com/troykelly/playlistgen/internal/budget"
	"github.com/troykelly/playlistgen/internal/config"
	"github.com/troykelly/playlistgen/internal/decisionlog"
	"github.com/troykelly/playlistgen/internal/enrichment"
	"github.com/troykelly/playlistgen/internal/libraryaccess"
	"github.com/troykelly/playlistgen/internal/llm"
	"github.com/troykelly/playlistgen/internal/logger"
	"github.com/troykelly/playlistgen/internal/metrics"
	"github.com/troykelly/playlistgen/internal/model"
	"github.com/troykelly/playlistgen/internal/observability"
	"github.com/troykelly/playlistgen/internal/prompt"
	"github.com/troykelly/playlistgen/internal/relaxer"
	"github.com/troykelly/playlistgen/internal/selector"
)

const sentryFlushTimeout = 2 * time.Second

var releaseVersion = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "playlistgen@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			Debug:            !cfg.IsProduction(),
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			defer sentry.Flush(sentryFlushTimeout)
		}
	}

	ctx := context.Background()

	var tracer decisionlog.TraceExporter
	if cfg.LangfuseEnabled {
		tracer = observability.NewLangfuseExporter(ctx, cfg)
	}

	if cfg.ProgrammingDocPath == "" {
		log.Fatal("PROGRAMMING_DOC_PATH is required")
	}

	totalBudget, err := model.NewMoneyFromString(cfg.TotalCostBudget)
	if err != nil {
		log.Fatalf("invalid PLAYLIST_TOTAL_COST_BUDGET %q: %v", cfg.TotalCostBudget, err)
	}

	budgetMode := budget.ModeSuggested
	if cfg.CostBudgetMode == string(budget.ModeHard) {
		budgetMode = budget.ModeHard
	}

	strategy := budget.StrategyDynamic
	switch cfg.CostAllocationStrategy {
	case string(budget.StrategyEqual):
		strategy = budget.StrategyEqual
	case string(budget.StrategyWeighted):
		strategy = budget.StrategyWeighted
	}

	weights, err := budget.LoadWeightsFile(cfg.CostWeightsFile)
	if err != nil {
		log.Fatalf("loading cost weights file: %v", err)
	}

	accessor := libraryaccess.NewSubsonicAccessor(cfg.SubsonicURL, cfg.SubsonicUser, cfg.SubsonicPassword)

	var webSource enrichment.WebEnrichmentSource
	if cfg.LastFMAPIKey != "" {
		webSource = enrichment.NewLastFMSource(cfg.LastFMAPIKey, 1.0)
	}
	analyser := enrichment.NewTagAudioAnalyser()
	enrichmentCache := enrichment.NewCache(cfg.EnrichmentCachePath)

	decisions := decisionlog.New(cfg.OutputDir, tracer)
	defer func() {
		if err := decisions.Close(); err != nil {
			logger.Warn("closing decision log failed", logger.Fields{"error": err.Error()})
		}
	}()

	enricher := enrichment.New(enrichmentCache, webSource, analyser, decisions)
	provider := llm.NewOpenAIProvider(cfg.OpenAIKey)
	prompts := prompt.NewPromptBuilder(prompt.NewPromptLoader())

	sel := selector.New(provider, accessor, enricher, budget.New(totalBudget, budgetMode), decisions, prompts, cfg.OpenAIModel)
	sentryMetrics := metrics.NewSentryMetrics()
	sel.SetMetrics(sentryMetrics)
	rel := relaxer.New(sel, decisions)

	writer := batch.NewOutputWriter()
	coordinator := batch.New(rel, decisions, writer)

	cloudwatch, err := metrics.NewClient(ctx, cfg.Environment)
	if err != nil {
		log.Printf("CloudWatch metrics disabled: %v", err)
	}
	coordinator.SetMetrics(cloudwatch, sentryMetrics)

	generationDate := time.Now().UTC()
	if raw := os.Getenv("PLAYLIST_GENERATION_DATE"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			log.Fatalf("invalid PLAYLIST_GENERATION_DATE %q: %v", raw, err)
		}
		generationDate = parsed
	}

	playlists, err := coordinator.RunBatch(ctx, batch.Options{
		DocumentPath:       cfg.ProgrammingDocPath,
		GenerationDate:     generationDate,
		TotalBudget:        totalBudget,
		BudgetMode:         budgetMode,
		AllocationStrategy: strategy,
		ExplicitWeights:    weights,
		OutputDir:          cfg.OutputDir,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("batch run failed: %v", err)
	}

	failed := 0
	for _, p := range playlists {
		if p.Validation.OverallStatus == model.StatusFail {
			failed++
		}
	}
	log.Printf("generated %d playlists (%d FAIL) for %s", len(playlists), failed, generationDate.Format("2006-01-02"))

	if failed == len(playlists) && len(playlists) > 0 {
		os.Exit(1)
	}
}
