package ports

import (
	"context"

	"github.com/longregen/archetype/internal/domain/models"
)

// Schema maps output field names to human readable descriptions.
type Schema map[string]string

// Gateway returns structured output whose keys are exactly the schema keys.
type Gateway interface {
	Respond(ctx context.Context, messages []models.Message, schema Schema, model string, temperature float64) (map[string]string, error)
}

// Scorer runs a candidate over the first batchSize tasks and returns a 0/1
// accuracy vector.
type Scorer interface {
	Score(ctx context.Context, framework *models.Framework, tasks []models.Task, batchSize int) ([]float64, error)
}

// Estimator summarises an accuracy vector as a bootstrap confidence interval.
type Estimator interface {
	Estimate(accuracy []float64) (models.ConfidenceInterval, error)
}

// Featurizer computes a deterministic behavioural descriptor.
type Featurizer interface {
	Describe(framework *models.Framework) ([]float32, error)
}

// Clusterer partitions a population into a new generation of clusters and
// returns the framework id to cluster id assignment.
type Clusterer interface {
	Cluster(ctx context.Context, population *models.Population, k int) (*models.Generation, map[string]string, error)
}

// PromptBuilder builds the mutation meta-prompt.
type PromptBuilder interface {
	Build(req MutationRequest) (system string, user string, err error)
	DebugFeedback(cause string) string
}

// MutationRequest is everything the meta-prompt embeds.
type MutationRequest struct {
	Parent    *models.Framework
	Archive   []*models.Framework
	Directive string
	Example   models.Task
}
