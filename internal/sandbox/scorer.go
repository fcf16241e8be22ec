package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/longregen/archetype/internal/adapters/metrics"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/ports"
	"github.com/longregen/archetype/internal/sandbox/rt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.GetTracerProvider().Tracer("archetype/sandbox")

// Scorer runs candidates task by task, each in a fresh interpreter.
type Scorer struct {
	backend     rt.Backend
	model       string
	maxWorkers  int
	taskTimeout time.Duration
}

var _ ports.Scorer = (*Scorer)(nil)

func NewScorer(backend rt.Backend, model string, maxWorkers int, taskTimeout time.Duration) *Scorer {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Scorer{backend: backend, model: model, maxWorkers: maxWorkers, taskTimeout: taskTimeout}
}

// Score returns 1 or 0 for each of the first batchSize tasks. A candidate that
// fails to compile, errors or panics is invalid; a task that times out scores
// 0, and a run where every task timed out is empty.
func (s *Scorer) Score(ctx context.Context, fw *models.Framework, tasks []models.Task, batchSize int) ([]float64, error) {
	n := min(len(tasks), batchSize)
	if n <= 0 {
		return []float64{}, nil
	}

	ctx, span := tracer.Start(ctx, "candidate.evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("framework.id", fw.ID),
		attribute.String("framework.name", fw.Name),
		attribute.Int("tasks", n),
	)

	acc, err := s.score(ctx, fw, tasks[:n])
	if err != nil {
		outcome := "invalid"
		if errors.Is(err, domain.ErrEvaluationEmpty) {
			outcome = "empty"
		}
		metrics.CandidateEvaluations.WithLabelValues(outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.CandidateEvaluations.WithLabelValues("valid").Inc()
	return acc, nil
}

func (s *Scorer) score(ctx context.Context, fw *models.Framework, tasks []models.Task) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Compile once up front so a broken candidate fails before any task runs.
	if _, err := Load(ctx, fw.Code); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.NewCandidateInvalid(fw.ID, err)
	}

	results := make([]float64, len(tasks))
	var timedOut atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxWorkers)
	for i, task := range tasks {
		g.Go(func() error {
			correct, err := s.runTask(gctx, fw, task)
			if errors.Is(err, domain.ErrTimeout) {
				timedOut.Add(1)
				slog.DebugContext(gctx, "task timed out", "framework_id", fw.ID, "task", i)
				return nil
			}
			if err != nil {
				return domain.NewCandidateInvalid(fw.ID, err)
			}
			if correct {
				results[i] = 1
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if int(timedOut.Load()) == len(tasks) {
		return nil, domain.NewEvaluationEmpty(fw.ID, fmt.Errorf("all %d tasks timed out", len(tasks)))
	}
	return results, nil
}

type taskResult struct {
	answer string
	err    error
}

func (s *Scorer) runTask(ctx context.Context, fw *models.Framework, task models.Task) (bool, error) {
	fwd, err := Load(ctx, fw.Code)
	if err != nil {
		return false, err
	}

	runtime := rt.New(s.backend, s.model, fw.ID)
	defer runtime.Close()

	tctx := ctx
	if s.taskTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, s.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan taskResult, 1)
	go func() {
		answer, err := Run(tctx, fwd, runtime, FormatQuestion(task))
		done <- taskResult{answer: answer, err: err}
	}()

	select {
	case res := <-done:
		metrics.TaskDuration.Observe(time.Since(start).Seconds())
		if res.err != nil {
			if tctx.Err() != nil && ctx.Err() == nil {
				return false, fmt.Errorf("%w: %w", domain.ErrTimeout, res.err)
			}
			return false, res.err
		}
		return res.answer == task.CorrectLetter, nil
	case <-tctx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("%w: after %s", domain.ErrTimeout, s.taskTimeout)
	}
}
