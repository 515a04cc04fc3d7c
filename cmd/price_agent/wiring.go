package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jonathan/price-publisher/internal/classify"
	"github.com/jonathan/price-publisher/internal/collect"
	"github.com/jonathan/price-publisher/internal/config"
	"github.com/jonathan/price-publisher/internal/db"
	"github.com/jonathan/price-publisher/internal/gate"
	"github.com/jonathan/price-publisher/internal/generate"
	"github.com/jonathan/price-publisher/internal/ingest"
	"github.com/jonathan/price-publisher/internal/llm"
	"github.com/jonathan/price-publisher/internal/observability"
	"github.com/jonathan/price-publisher/internal/pipeline"
	"github.com/jonathan/price-publisher/internal/publish"
	"github.com/jonathan/price-publisher/internal/queue"
	"github.com/jonathan/price-publisher/internal/ratelimit"
	"github.com/jonathan/price-publisher/internal/session"
)

// geminiRequestsPerMinute paces LLM calls under the free-tier quota
const geminiRequestsPerMinute = 8

// agent holds a fully wired pipeline and its owned resources
type agent struct {
	runner    *pipeline.Runner
	database  *db.DB
	llmClient *llm.GeminiClient
}

func (a *agent) close() {
	if a.llmClient != nil {
		a.llmClient.Close()
	}
	if a.database != nil {
		a.database.Close()
	}
}

// buildAgent connects the store and LLM client and assembles the runner from
// the loaded configuration. Callers own the returned agent and must close it.
func buildAgent(ctx context.Context, cfg *config.Config) (*agent, error) {
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	llmClient, err := llm.NewClient(ctx, nil, cfg.APIKey)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	cipher, err := session.NewCipher(cfg.SessionSecret)
	if err != nil {
		llmClient.Close()
		database.Close()
		return nil, fmt.Errorf("failed to create session cipher: %w", err)
	}

	publisher := publish.New(publish.Config{
		BaseURL:  cfg.CMS.BaseURL,
		Username: cfg.CMS.Username,
		Password: cfg.CMS.Password,
		Verbose:  cfg.Verbose,
	})

	pacer := ratelimit.NewTokenBucket(geminiRequestsPerMinute, time.Minute/geminiRequestsPerMinute)

	runner := pipeline.NewRunner(pipeline.Deps{
		Collector:  collect.NewCollector(cfg.Sources, cfg.UseBrowser, cfg.Verbose),
		Dedup:      ingest.NewDeduplicator(database),
		Selector:   database,
		Gate:       gate.New(database),
		Classifier: classify.New(llmClient, pacer),
		Generator:  generate.New(llmClient),
		Queue:      queue.New(database),
		Sessions:   session.NewManager(database, publisher, cipher),
		Publisher:  publisher,
		TopN:       cfg.ResolvedTopN(),
	})

	return &agent{runner: runner, database: database, llmClient: llmClient}, nil
}

func newStdoutPrinter() *observability.Printer {
	return observability.NewPrinter(os.Stdout)
}

// loadAgentConfig loads the JSON config, folds in environment values, and
// validates the result.
func loadAgentConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
