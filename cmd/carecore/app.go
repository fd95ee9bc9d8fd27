package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/postvisit/carecore/anthropic"
	"github.com/postvisit/carecore/assembler"
	"github.com/postvisit/carecore/assistant"
	"github.com/postvisit/carecore/config"
	"github.com/postvisit/carecore/escalation"
	"github.com/postvisit/carecore/httpapi"
	"github.com/postvisit/carecore/model"
	"github.com/postvisit/carecore/openfda"
	"github.com/postvisit/carecore/pipeline"
	"github.com/postvisit/carecore/provider"
	"github.com/postvisit/carecore/records"
	"github.com/postvisit/carecore/summary"
	"github.com/postvisit/carecore/template"
	"github.com/postvisit/carecore/tools"
)

// app is the wired process: one tier store and one model client shared by
// every front-end.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	tiers     *model.TierStore
	client    provider.Client
	costs     *model.CostTracker
	prompts   template.Loader
	store     *records.MemoryStore
	summaries *summary.SQLiteStore
	server    *httpapi.Server
}

// newClient builds the configured provider. Anthropic gets the process
// logger and cost tracker; other providers come from the registry as is.
func newClient(cfg config.Config, logger *slog.Logger, costs *model.CostTracker) (provider.Client, error) {
	pc := cfg.ProviderConfig()
	if pc.Provider != "anthropic" {
		return provider.New(pc.Provider, pc)
	}
	return anthropic.New(pc,
		anthropic.WithLogger(logger),
		anthropic.WithCostTracker(costs))
}

func newScreener(cfg config.Config, client provider.Client, prompts template.Loader, logger *slog.Logger) *escalation.Screener {
	opts := []escalation.Option{escalation.WithLogger(logger)}
	if cfg.Anthropic.EscalationModel != "" {
		opts = append(opts, escalation.WithModel(cfg.Anthropic.EscalationModel))
	}
	return escalation.NewScreener(client, prompts, opts...)
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		tiers:   cfg.TierStore(),
		costs:   model.NewCostTracker(),
		prompts: template.NewLoader(cfg.PromptDir),
	}

	client, err := newClient(cfg, logger, a.costs)
	if err != nil {
		return nil, fmt.Errorf("model client: %w", err)
	}
	a.client = client

	if a.store, err = loadRecords(cfg.Server.Fixtures); err != nil {
		return nil, err
	}

	labs := tools.DefaultLabTable()
	if cfg.LabRanges != "" {
		data, err := os.ReadFile(cfg.LabRanges)
		if err != nil {
			return nil, fmt.Errorf("read lab ranges: %w", err)
		}
		if labs, err = tools.ParseLabTable(data); err != nil {
			return nil, fmt.Errorf("lab ranges %s: %w", cfg.LabRanges, err)
		}
	}

	fda := openfda.NewClient(cfg.OpenFDA.CacheTTL,
		openfda.WithBaseURL(cfg.OpenFDA.BaseURL),
		openfda.WithHTTPClient(&http.Client{Timeout: cfg.OpenFDA.Timeout}),
		openfda.WithLogger(logger))
	dispatcher := tools.NewDispatcher(fda,
		tools.WithLabTable(labs),
		tools.WithLogger(logger))

	asmOpts := []assembler.Option{
		assembler.WithTierStore(a.tiers),
		assembler.WithSafety(fda),
		assembler.WithCompaction(cfg.ContextCompaction),
		assembler.WithLogger(logger),
	}
	if cfg.GuidelinesDir != "" {
		g, err := assembler.NewFSGuidelines(os.DirFS(cfg.GuidelinesDir), logger)
		if err != nil {
			return nil, fmt.Errorf("guidelines: %w", err)
		}
		asmOpts = append(asmOpts, assembler.WithGuidelines(g))
	}

	if cfg.Summary.DBPath != "" {
		if a.summaries, err = summary.OpenSQLite(ctx, cfg.Summary.DBPath); err != nil {
			return nil, err
		}
		asmOpts = append(asmOpts, assembler.WithSummaries(a.summaries))
	}
	asm := assembler.New(a.prompts, asmOpts...)

	reasoner := pipeline.New(client, a.prompts,
		pipeline.WithAssembler(asm),
		pipeline.WithTierStore(a.tiers),
		pipeline.WithRunHook(a.logRun),
		pipeline.WithLogger(logger))

	qa := assistant.NewQA(client, asm, newScreener(cfg, client, a.prompts, logger),
		assistant.WithReasoner(reasoner),
		assistant.WithTierStore(a.tiers),
		assistant.WithQALogger(logger))

	education := assistant.NewEducation(client, asm, a.prompts,
		assistant.ToolSet{Definitions: tools.Definitions(), Execute: dispatcher.Executor()},
		assistant.WithEducationTierStore(a.tiers),
		assistant.WithEducationLogger(logger))

	serverOpts := []httpapi.Option{
		httpapi.WithEducation(education),
		httpapi.WithLogger(logger),
	}
	if a.summaries != nil {
		serverOpts = append(serverOpts, httpapi.WithSummarizer(summary.NewSummarizer(client, a.prompts, a.summaries,
			summary.WithTierStore(a.tiers),
			summary.WithLogger(logger))))
	}
	a.server = httpapi.New(a.store, qa, a.tiers, serverOpts...)
	return a, nil
}

func loadRecords(fixtures string) (*records.MemoryStore, error) {
	if fixtures == "" {
		return records.NewMemoryStore(), nil
	}
	return records.LoadFixtures(fixtures)
}

func (a *app) logRun(run pipeline.Run) {
	a.logger.Info("reasoning run",
		slog.String("run_id", run.ID),
		slog.String("visit_id", run.VisitID),
		slog.String("tier", run.Tier),
		slog.Bool("corrected", run.Corrected()),
		slog.Duration("elapsed", run.Elapsed))
}

// close releases the summary store and logs the usage of this process.
func (a *app) close() {
	for name, usage := range a.costs.Summary() {
		a.logger.Info("model usage",
			slog.String("model", string(name)),
			slog.Int("input_tokens", usage.InputTokens),
			slog.Int("output_tokens", usage.OutputTokens))
	}
	if cost := a.costs.EstimatedCost(); cost > 0 {
		a.logger.Info("estimated cost", slog.Float64("usd", cost))
	}
	if a.summaries != nil {
		if err := a.summaries.Close(); err != nil {
			a.logger.Warn("close summary store", slog.Any("error", err))
		}
	}
}
