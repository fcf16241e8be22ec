package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/longregen/archetype/internal/adapters/benchmark"
	"github.com/longregen/archetype/internal/adapters/http/handlers"
	"github.com/longregen/archetype/internal/adapters/id"
	"github.com/longregen/archetype/internal/adapters/postgres"
	"github.com/longregen/archetype/internal/adapters/sqlite"
	"github.com/longregen/archetype/internal/cluster"
	"github.com/longregen/archetype/internal/config"
	"github.com/longregen/archetype/internal/conversation"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/evolution"
	"github.com/longregen/archetype/internal/fitness"
	"github.com/longregen/archetype/internal/llm"
	"github.com/longregen/archetype/internal/ports"
	"github.com/longregen/archetype/internal/sandbox"
)

// Version information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfg *config.Config

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(w io.Writer, jsonOutput bool, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// store bundles the repositories of whichever database is configured.
type store struct {
	conversations ports.ConversationRepository
	evolution     ports.EvolutionRepository
	pinger        handlers.Pinger
	close         func()
}

func (s *store) Close() {
	if s.close != nil {
		s.close()
	}
}

// openStore connects to PostgreSQL when a URL is configured, else to the
// local SQLite file.
func openStore(ctx context.Context) (*store, error) {
	if cfg.UsePostgres() {
		pool, err := postgres.Connect(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate PostgreSQL: %w", err)
		}
		slog.Info("using PostgreSQL store")
		return &store{
			conversations: postgres.NewConversationRepository(pool),
			evolution:     postgres.NewEvolutionRepository(pool),
			pinger:        pool,
			close:         pool.Close,
		}, nil
	}

	st, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite store: %w", err)
	}
	slog.Info("using SQLite store", "path", cfg.Database.Path)
	return &store{
		conversations: st,
		evolution:     st,
		pinger:        st,
		close: func() {
			if err := st.Close(); err != nil {
				slog.Warn("failed to close SQLite store", "error", err)
			}
		},
	}, nil
}

// newGateway builds the structured-output gateway over the primary provider
// and, when configured, the fallback.
func newGateway() *llm.Gateway {
	primary := llm.NewClient("primary", cfg.LLM.URL, cfg.LLM.APIKey,
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTimeout(cfg.LLM.TimeoutDuration()),
	)

	var opts []llm.GatewayOption
	if cfg.IsFallbackConfigured() {
		fallback := llm.NewClient("fallback", cfg.Fallback.URL, cfg.Fallback.APIKey,
			llm.WithModel(cfg.Fallback.Model),
			llm.WithMaxTokens(cfg.Fallback.MaxTokens),
			llm.WithTimeout(cfg.Fallback.TimeoutDuration()),
		)
		opts = append(opts, llm.WithFallback(llm.ProviderFrom(fallback)))
		slog.Info("fallback provider configured", "url", cfg.Fallback.URL, "model", cfg.Fallback.Model)
	}
	return llm.NewGateway(llm.ProviderFrom(primary), opts...)
}

func engineConfig(search config.SearchConfig) evolution.Config {
	ec := evolution.DefaultConfig()
	ec.K = search.K
	ec.BatchSize = search.ValidSize
	ec.DebugMax = search.DebugMax
	ec.MinAccuracy = search.MinAccuracy
	ec.InitialEval = search.InitialEval
	ec.DesignerModel = search.Model
	ec.DesignerTemperature = search.DesignerTemperature
	ec.Parallelism = search.MutationParallelism
	ec.Seed = search.ShuffleSeed
	return ec
}

// newEngine wires the search engine over the store and gateway.
func newEngine(st *store, gateway ports.Gateway) (*evolution.Engine, error) {
	seeds, err := evolution.Seeds()
	if err != nil {
		return nil, err
	}

	ids := id.New()
	runtime := conversation.NewService(st.conversations, ids, gateway)

	featurizer := cluster.ASTFeaturizer{}
	deps := evolution.Deps{
		Repo:       st.evolution,
		IDs:        ids,
		Designer:   runtime,
		Scorer:     sandbox.NewScorer(runtime, cfg.Search.Model, cfg.Search.MaxWorkers, cfg.Search.TaskTimeoutDuration()),
		Estimator:  fitness.NewBootstrap(cfg.Search.BootstrapSamples, cfg.Search.ConfidenceLevel, cfg.Search.ShuffleSeed),
		Clusterer:  cluster.NewClusterer(featurizer, ids, cfg.Search.ShuffleSeed),
		Featurizer: featurizer,
	}
	return evolution.NewEngine(deps, engineConfig(cfg.Search), seeds), nil
}

// loadTasks reads the benchmark and splits it into search and test sets.
func loadTasks(path string) (valid, test []models.Task, err error) {
	if path == "" {
		path = cfg.Search.DataFilename
	}
	tasks, err := benchmark.Load(path, cfg.Search.ShuffleSeed)
	if err != nil {
		return nil, nil, err
	}
	valid, test = benchmark.Split(tasks, cfg.Search.ValidSize, cfg.Search.TestSize)
	slog.Info("benchmark loaded", "path", path, "tasks", len(tasks), "valid", len(valid), "test", len(test))
	return valid, test, nil
}
