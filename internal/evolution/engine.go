// Package evolution runs the quality-diversity search over agent
// architectures: seeding, clustering, elite mutation and final evaluation.
package evolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/longregen/archetype/internal/adapters/metrics"
	"github.com/longregen/archetype/internal/cluster"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/fitness"
	"github.com/longregen/archetype/internal/ports"
	"github.com/longregen/archetype/internal/prompt"
	"github.com/longregen/archetype/internal/sandbox/rt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.GetTracerProvider().Tracer("archetype/evolution")

// Config holds the search parameters the engine needs.
type Config struct {
	// K is the number of clusters per generation.
	K int
	// BatchSize is the number of validation tasks each candidate is scored on.
	BatchSize int
	// DebugMax bounds the repair attempts after a failed candidate.
	DebugMax int
	// MinAccuracy is the mean accuracy below which a candidate is discarded.
	MinAccuracy float64
	// InitialEval scores the seeds before the first generation.
	InitialEval bool
	// DesignerModel and DesignerTemperature configure the agent that writes
	// new architectures.
	DesignerModel       string
	DesignerTemperature float64
	// Parallelism bounds concurrent mutations within a generation.
	Parallelism int
	// Seed drives directive choice.
	Seed uint64
}

// DefaultConfig returns sensible defaults for the engine.
func DefaultConfig() Config {
	return Config{
		K:                   7,
		BatchSize:           128,
		DebugMax:            3,
		MinAccuracy:         0.01,
		InitialEval:         true,
		DesignerModel:       "gpt-4o-mini",
		DesignerTemperature: 0.8,
		Parallelism:         4,
	}
}

// Engine drives the search. Designer conversations go through the same
// backend candidates use, so every mutation is recorded as a meeting.
type Engine struct {
	repo       ports.EvolutionRepository
	ids        ports.IDGenerator
	designer   rt.Backend
	prompts    ports.PromptBuilder
	schema     ports.Schema
	scorer     ports.Scorer
	estimator  ports.Estimator
	clusterer  ports.Clusterer
	featurizer ports.Featurizer
	cfg        Config
	seeds      []Seed
}

// Deps groups the engine's collaborators.
type Deps struct {
	Repo       ports.EvolutionRepository
	IDs        ports.IDGenerator
	Designer   rt.Backend
	Prompts    ports.PromptBuilder
	Schema     ports.Schema
	Scorer     ports.Scorer
	Estimator  ports.Estimator
	Clusterer  ports.Clusterer
	Featurizer ports.Featurizer
}

func NewEngine(deps Deps, cfg Config, seeds []Seed) *Engine {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.K < 1 {
		cfg.K = 1
	}
	if deps.Prompts == nil {
		deps.Prompts = prompt.NewBuilder()
	}
	if deps.Schema == nil {
		deps.Schema = prompt.MutationOutput.Schema()
	}
	if deps.Featurizer == nil {
		deps.Featurizer = cluster.ASTFeaturizer{}
	}
	return &Engine{
		repo:       deps.Repo,
		ids:        deps.IDs,
		designer:   deps.Designer,
		prompts:    deps.Prompts,
		schema:     deps.Schema,
		scorer:     deps.Scorer,
		estimator:  deps.Estimator,
		clusterer:  deps.Clusterer,
		featurizer: deps.Featurizer,
		cfg:        cfg,
		seeds:      seeds,
	}
}

// Initialize creates a population holding the seed archive at generation 0.
// Seeds are scored first when InitialEval is set; a seed that fails to score
// stays in the population unevaluated.
func (e *Engine) Initialize(ctx context.Context, tasks []models.Task) (*models.Population, error) {
	pop := models.NewPopulation(e.ids.GeneratePopulationID())
	if err := e.repo.CreatePopulation(ctx, pop); err != nil {
		return nil, fmt.Errorf("create population: %w", err)
	}
	slog.InfoContext(ctx, "population created", "population_id", pop.ID, "seeds", len(e.seeds))

	for _, s := range e.seeds {
		fw := models.NewFramework(e.ids.GenerateFrameworkID(), pop.ID, s.Name, s.Thought, s.Code)
		if e.cfg.InitialEval {
			if err := e.evaluate(ctx, fw, tasks, false); err != nil {
				if !domain.IsCandidateFailure(err) {
					return nil, err
				}
				slog.WarnContext(ctx, "seed not evaluated", "framework_id", fw.ID, "name", fw.Name, "cause", err)
			} else {
				slog.InfoContext(ctx, "seed evaluated", "framework_id", fw.ID, "name", fw.Name, "fitness", fw.FitnessString())
			}
		}
		if err := e.repo.CreateFramework(ctx, fw); err != nil {
			return nil, fmt.Errorf("store seed %s: %w", fw.Name, err)
		}
		pop.Frameworks = append(pop.Frameworks, fw)
	}
	metrics.PopulationSize.Set(float64(len(pop.Frameworks)))
	return pop, nil
}

// Resume loads a stored population so the search continues after its latest
// generation.
func (e *Engine) Resume(ctx context.Context, populationID string) (*models.Population, error) {
	pop, err := e.repo.GetPopulation(ctx, populationID)
	if err != nil {
		return nil, err
	}
	latest := 0
	if g := pop.LatestGeneration(); g != nil {
		latest = g.Index
	}
	slog.InfoContext(ctx, "population resumed", "population_id", pop.ID, "frameworks", len(pop.Frameworks), "generation", latest)
	metrics.PopulationSize.Set(float64(len(pop.Frameworks)))
	return pop, nil
}

// Run advances the population by the given number of generations.
func (e *Engine) Run(ctx context.Context, pop *models.Population, tasks []models.Task, generations int) error {
	for range generations {
		if _, err := e.Step(ctx, pop, tasks); err != nil {
			return err
		}
	}
	return nil
}

// Cluster partitions the population into a new generation and stores it.
func (e *Engine) Cluster(ctx context.Context, pop *models.Population) (*models.Generation, error) {
	gen, _, err := e.clusterer.Cluster(ctx, pop, e.cfg.K)
	if err != nil {
		return nil, fmt.Errorf("cluster population: %w", err)
	}
	if err := e.repo.SaveGeneration(ctx, gen); err != nil {
		return nil, fmt.Errorf("save generation %d: %w", gen.Index, err)
	}
	pop.Generations = append(pop.Generations, gen)
	return gen, nil
}

// StepResult summarises one generation.
type StepResult struct {
	Generation *models.Generation
	Accepted   []*models.Framework
	Failed     int
}

type mutation struct {
	parent    *models.Framework
	directive prompt.Directive
	example   models.Task
}

// Step runs one generation: cluster, then mutate each elite. A failed
// mutation never aborts the generation; a persistence failure does.
func (e *Engine) Step(ctx context.Context, pop *models.Population, tasks []models.Task) (*StepResult, error) {
	start := time.Now()
	gen, err := e.Cluster(ctx, pop)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "evolution.generation")
	defer span.End()
	span.SetAttributes(
		attribute.String("population.id", pop.ID),
		attribute.Int("generation", gen.Index),
		attribute.Int("clusters", len(gen.Clusters)),
	)

	elites := pop.Elites()
	slog.InfoContext(ctx, "generation started", "generation", gen.Index, "clusters", len(gen.Clusters), "elites", len(elites))

	rng := rand.New(rand.NewPCG(e.cfg.Seed, uint64(gen.Index)))
	plan := make([]mutation, len(elites))
	for i, elite := range elites {
		plan[i] = mutation{parent: elite, directive: prompt.PickDirective(rng)}
		if len(tasks) > 0 {
			plan[i].example = tasks[rng.IntN(len(tasks))]
		}
	}

	accepted := make([]*models.Framework, len(plan))
	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)
	for i, m := range plan {
		g.Go(func() error {
			fw, err := e.mutate(gctx, pop.ID, gen.Index, m, elites, tasks)
			switch {
			case err == nil:
				accepted[i] = fw
				metrics.MutationsTotal.WithLabelValues("accepted").Inc()
				return nil
			case errors.Is(err, domain.ErrPersistenceConflict):
				return err
			case gctx.Err() != nil:
				return gctx.Err()
			}
			mu.Lock()
			failed++
			mu.Unlock()
			metrics.MutationsTotal.WithLabelValues("failed").Inc()
			slog.WarnContext(gctx, "mutation failed", "parent_id", m.parent.ID, "directive", m.directive.Name, "error", err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("generation %d: %w", gen.Index, err)
	}

	result := &StepResult{Generation: gen, Failed: failed}
	for _, fw := range accepted {
		if fw != nil {
			pop.Frameworks = append(pop.Frameworks, fw)
			result.Accepted = append(result.Accepted, fw)
		}
	}

	metrics.PopulationSize.Set(float64(len(pop.Frameworks)))
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("accepted", len(result.Accepted)), attribute.Int("failed", failed))
	slog.InfoContext(ctx, "generation finished",
		"generation", gen.Index,
		"clusters", len(gen.Clusters),
		"accepted", len(result.Accepted),
		"discarded", failed,
		"population", len(pop.Frameworks),
	)
	return result, nil
}

// evaluate scores fw and records its confidence interval. With gate set a
// mean accuracy below MinAccuracy is an empty evaluation.
func (e *Engine) evaluate(ctx context.Context, fw *models.Framework, tasks []models.Task, gate bool) error {
	acc, err := e.scorer.Score(ctx, fw, tasks, e.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(acc) == 0 {
		return domain.NewEvaluationEmpty(fw.ID, errors.New("no tasks were scored"))
	}
	if mean := fitness.Mean(acc); gate && mean < e.cfg.MinAccuracy {
		return domain.NewEvaluationEmpty(fw.ID, fmt.Errorf("mean accuracy %.3f is below %.3f", mean, e.cfg.MinAccuracy))
	}
	ci, err := e.estimator.Estimate(acc)
	if err != nil {
		return fmt.Errorf("estimate fitness of %s: %w", fw.ID, err)
	}
	fw.ApplyEvaluation(ci)
	return nil
}

// FinalEvaluate scores the current elites on the test set, stores their test
// intervals and returns them best first. Elites that fail are skipped.
func (e *Engine) FinalEvaluate(ctx context.Context, populationID string, tasks []models.Task) ([]*models.Framework, error) {
	ctx, span := tracer.Start(ctx, "evolution.final_evaluate")
	defer span.End()

	pop, err := e.repo.GetPopulation(ctx, populationID)
	if err != nil {
		return nil, err
	}
	var out []*models.Framework
	for _, fw := range pop.Elites() {
		acc, err := e.scorer.Score(ctx, fw, tasks, len(tasks))
		if err != nil {
			if !domain.IsCandidateFailure(err) {
				return nil, err
			}
			slog.WarnContext(ctx, "final evaluation failed", "framework_id", fw.ID, "name", fw.Name, "cause", err)
			continue
		}
		ci, err := e.estimator.Estimate(acc)
		if err != nil {
			slog.WarnContext(ctx, "final evaluation failed", "framework_id", fw.ID, "name", fw.Name, "cause", err)
			continue
		}
		if err := e.repo.UpdateTestCI(ctx, fw.ID, ci); err != nil {
			return nil, fmt.Errorf("store test interval of %s: %w", fw.ID, err)
		}
		fw.TestCI = &ci
		slog.InfoContext(ctx, "final evaluation", "framework_id", fw.ID, "name", fw.Name, "fitness", ci.String())
		out = append(out, fw)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TestCI.Median != out[j].TestCI.Median {
			return out[i].TestCI.Median > out[j].TestCI.Median
		}
		return out[i].Fitness > out[j].Fitness
	})
	return out, nil
}
