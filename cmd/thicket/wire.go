package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/antoniostano/thicket/internal/config"
	"github.com/antoniostano/thicket/internal/contracts"
	"github.com/antoniostano/thicket/internal/httpapi"
	"github.com/antoniostano/thicket/internal/journal"
	"github.com/antoniostano/thicket/internal/memory"
	"github.com/antoniostano/thicket/internal/observability"
	"github.com/antoniostano/thicket/internal/oracle"
	"github.com/antoniostano/thicket/internal/prompts"
	"github.com/antoniostano/thicket/internal/turn"
	"github.com/antoniostano/thicket/internal/world"
)

type app struct {
	cfg         config.Config
	logger      *slog.Logger
	metrics     *observability.Metrics
	store       *world.Store
	transcripts contracts.TranscriptStore
	ledger      *contracts.Ledger
	memories    memory.Store
	oracle      oracle.Oracle
	journal     *journal.Journal
	hub         *httpapi.Hub
	turns       *turn.Orchestrator
}

func wireApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := cfg.NewLogger()
	a := &app{cfg: cfg, logger: logger}

	roster, err := config.LoadRoster(cfg.RosterPath)
	if err != nil {
		return nil, err
	}
	locations := make([]world.Location, 0, len(roster.Locations))
	for _, loc := range roster.Locations {
		locations = append(locations, world.Location(loc))
	}
	seeds := make([]world.Seed, 0, len(roster.Actors))
	for _, s := range roster.Actors {
		seeds = append(seeds, world.Seed{Name: s.Name, Location: world.Location(s.Location), Activity: s.Activity})
	}
	a.store, err = world.NewStore(locations, seeds)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}

	a.metrics = observability.NewMetrics(cfg.MetricsNamespace)
	a.metrics.SetPhaseBudgets(turn.PhaseBudgets(cfg.OracleTimeout, len(seeds), cfg.IntentParallelism))

	a.transcripts, err = contracts.NewTranscriptStore(ctx, cfg.DatabaseURL, filepath.Join(cfg.DataDir, "contracts"))
	if err != nil {
		return nil, fmt.Errorf("transcript store: %w", err)
	}
	a.ledger = contracts.NewLedger(a.store, a.transcripts, nil, logger)

	a.memories, err = memory.NewStore(ctx, cfg.DatabaseURL, filepath.Join(cfg.DataDir, "npcs"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("memory store: %w", err)
	}

	base, err := oracle.New(oracle.Config{
		Mode:        cfg.OracleMode,
		CLIPath:     cfg.OracleCLIPath,
		OllamaURL:   cfg.OracleOllamaURL,
		OllamaModel: cfg.OracleOllamaModel,
		Timeout:     cfg.OracleTimeout,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("oracle: %w", err)
	}
	a.oracle = oracle.WithObserver(base, func(wc oracle.WorkingContext, outcome string, elapsed time.Duration) {
		a.metrics.OracleCalls.WithLabelValues(wc.Role, outcome).Inc()
		a.metrics.ObservePhase(turn.OraclePhase(wc.Role), elapsed)
	})

	if cfg.JournalEnabled() {
		a.journal, err = journal.Open(cfg.JournalPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("journal: %w", err)
		}
	}

	builder := prompts.NewBuilder(prompts.NewLoader(cfg.DataDir))
	consolidator := memory.NewConsolidator(memory.ConsolidatorConfig{
		Oracle:   a.oracle,
		Store:    a.memories,
		Prompter: builder,
		Logger:   logger,
		WorkDir:  cfg.DataDir,
		Known: func(name string) bool {
			_, ok := a.store.Actor(name)
			return ok
		},
	})

	a.hub = httpapi.NewHub(a.metrics)
	tcfg := turn.Config{
		Store:        a.store,
		Ledger:       a.ledger,
		Oracle:       a.oracle,
		Prompts:      builder,
		Memories:     a.memories,
		Consolidator: consolidator,
		Metrics:      a.metrics,
		Observer:     a.hub,
		Logger:       logger,
		WorkDir:      cfg.DataDir,
		Parallelism:  cfg.IntentParallelism,
		Serialize:    cfg.SerializeTurns,
	}
	if a.journal != nil {
		tcfg.Recorder = a.journal
	}
	a.turns, err = turn.New(tcfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("world loaded", "actors", len(seeds), "locations", len(locations), "data_dir", cfg.DataDir)
	return a, nil
}

func (a *app) history() httpapi.History {
	if a.journal == nil {
		return nil
	}
	return a.journal
}

func (a *app) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("journal close failed", "err", err)
		}
	}
	if a.memories != nil {
		_ = a.memories.Close()
	}
	if a.transcripts != nil {
		_ = a.transcripts.Close()
	}
}
