package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/DragonSun329/briefAI-sub001/internal/checkpoint"
	"github.com/DragonSun329/briefAI-sub001/internal/config"
	"github.com/DragonSun329/briefAI-sub001/internal/ingest"
	"github.com/DragonSun329/briefAI-sub001/internal/logger"
	"github.com/DragonSun329/briefAI-sub001/pkg/consolidate"
	"github.com/DragonSun329/briefAI-sub001/pkg/dedup"
	"github.com/DragonSun329/briefAI-sub001/pkg/entity"
	"github.com/DragonSun329/briefAI-sub001/pkg/evaluate"
	"github.com/DragonSun329/briefAI-sub001/pkg/item"
	"github.com/DragonSun329/briefAI-sub001/pkg/report"
	"github.com/DragonSun329/briefAI-sub001/pkg/scoring"
	"github.com/DragonSun329/briefAI-sub001/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func resolvePeriod(period string) string {
	if period == "" {
		return item.CurrentPeriod()
	}
	return period
}

func buildEvaluator(cfg *config.Config) *evaluate.LLMEvaluator {
	if cfg.Evaluation.LLM.APIKey == "" {
		return nil
	}
	return evaluate.NewLLMEvaluator(
		cfg.Evaluation.LLM.Provider,
		cfg.Evaluation.LLM.Model,
		cfg.Evaluation.LLM.APIKey,
		cfg.Evaluation.LLM.BaseURL,
	)
}

func buildCollectors(cfg *config.Config) []ingest.Collector {
	var collectors []ingest.Collector

	if cfg.Sources.RSS.Enabled {
		feeds := make([]ingest.RSSFeed, len(cfg.Sources.RSS.Feeds))
		for i, f := range cfg.Sources.RSS.Feeds {
			feeds[i] = ingest.RSSFeed{Name: f.Name, URL: f.URL}
		}
		collectors = append(collectors, ingest.NewRSS(feeds, cfg.Sources.ParseLookback()))
	}

	return collectors
}

func runIngest(period string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := checkpoint.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	log := logger.New("ingest")
	extractor := entity.NewKeywordExtractor(cfg.Sources.Entities)

	var scorer evaluate.BatchScorer
	if llm := buildEvaluator(cfg); llm != nil {
		scorer = llm
	}

	runner := ingest.NewRunner(store, buildCollectors(cfg), extractor, scorer, log)
	summary, err := runner.Run(context.Background(), resolvePeriod(period))
	if err != nil {
		return err
	}

	fmt.Printf("appended %d items (%d fast-scored) in batch %s\n",
		summary.Collected, summary.Scored, summary.RunBatchID)
	return nil
}

func runConsolidate(period, strategy string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strategy != "" {
		cfg.Dedup.Strategy = strategy
	}

	store, err := checkpoint.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	deduper, err := dedup.New(dedup.Strategy(cfg.Dedup.Strategy), cfg.Dedup.Thresholds)
	if err != nil {
		return err
	}
	scorer, err := scoring.NewEngine(cfg.Scoring.Collection, cfg.Scoring.Deep, cfg.Scoring.ParseRecencyHalfLife())
	if err != nil {
		return err
	}
	evaluator := buildEvaluator(cfg)
	if evaluator == nil {
		return fmt.Errorf("deep evaluation requires an LLM API key (OPENAI_API_KEY or ANTHROPIC_API_KEY)")
	}

	log := logger.New("consolidate")
	orch := consolidate.New(store, deduper, scorer, evaluator, consolidate.Options{
		TopK:          cfg.Evaluation.TopK,
		SelectionSize: cfg.Evaluation.SelectionSize,
		Concurrency:   cfg.Evaluation.Concurrency,
		CallTimeout:   cfg.Evaluation.ParseCallTimeout(),
		Retry:         evaluate.RetryPolicy{Attempts: cfg.Evaluation.RetryAttempts, BaseDelay: evaluate.DefaultRetryPolicy().BaseDelay},
	}, log)

	res, err := orch.Run(context.Background(), resolvePeriod(period))
	if err != nil {
		return err
	}

	if cfg.Report.Webhook.Enabled && cfg.Report.Webhook.URL != "" {
		hook := report.NewWebhook(cfg.Report.Webhook.URL, cfg.Report.Webhook.Secret)
		if err := hook.Send(context.Background(), res); err != nil {
			log.Warn("webhook delivery failed", "error", err)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	out, err := report.NewMarkdown().Render(res)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	fmt.Println(out)
	return nil
}

func runStatus(period string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := checkpoint.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	periodID := resolvePeriod(period)

	info, err := store.Period(ctx, periodID)
	if err != nil {
		return err
	}
	counts, err := store.CountByStatus(ctx, periodID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "period\t%s\n", periodID)
	fmt.Fprintf(w, "sealed\t%v\n", info.Sealed)
	fmt.Fprintf(w, "archived\t%v\n", info.Archived)
	for _, status := range []item.Status{
		item.StatusCollected, item.StatusPartiallyScored, item.StatusFullyScored,
		item.StatusEvaluationFailed, item.StatusMerged, item.StatusDiscarded,
	} {
		if counts[status] > 0 {
			fmt.Fprintf(w, "%s\t%d\n", status, counts[status])
		}
	}
	return w.Flush()
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	store, err := checkpoint.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	return server.New(store, port, logger.New("server")).ListenAndServe()
}
