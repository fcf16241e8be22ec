package models

import (
	"fmt"
	"time"
)

// ConfidenceInterval is a percentile bootstrap summary of mean accuracy.
type ConfidenceInterval struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Median     float64 `json:"median"`
	SampleSize int     `json:"sample_size"`
	Level      float64 `json:"level"`
}

func (ci ConfidenceInterval) String() string {
	return fmt.Sprintf("%.1f%% Bootstrap Confidence Interval: (%.1f%%, %.1f%%), Median: %.1f%%",
		ci.Level*100, ci.Lower*100, ci.Upper*100, ci.Median*100)
}

// Framework is a candidate orchestration program with its evaluation.
type Framework struct {
	ID              string              `json:"framework_id"`
	Name            string              `json:"name"`
	Code            string              `json:"code"`
	ThoughtProcess  string              `json:"thought_process"`
	PopulationID    string              `json:"population_id"`
	ClusterID       string              `json:"cluster_id,omitempty"`
	ParentID        string              `json:"parent_id,omitempty"`
	Directive       string              `json:"directive,omitempty"`
	GenerationIndex int                 `json:"generation_index"`
	DebugAttempts   int                 `json:"debug_attempts"`
	Fitness         float64             `json:"fitness"`
	Descriptor      []float32           `json:"descriptor,omitempty"`
	CI              *ConfidenceInterval `json:"ci,omitempty"`
	TestCI          *ConfidenceInterval `json:"test_ci,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func NewFramework(id, populationID, name, thought, code string) *Framework {
	return &Framework{
		ID:             id,
		Name:           name,
		Code:           code,
		ThoughtProcess: thought,
		PopulationID:   populationID,
		CreatedAt:      time.Now().UTC(),
	}
}

// Evaluated reports whether the framework carries a validation result.
func (f *Framework) Evaluated() bool {
	return f.CI != nil
}

// ApplyEvaluation records the validation CI; fitness is the bootstrap median.
func (f *Framework) ApplyEvaluation(ci ConfidenceInterval) {
	f.CI = &ci
	f.Fitness = ci.Median
}

// FitnessString is the human readable fitness used in logs and prompts.
func (f *Framework) FitnessString() string {
	if f.CI == nil {
		return "not evaluated"
	}
	return f.CI.String()
}

// Better reports whether f should be preferred over other as an elite:
// higher fitness first, then the later creation time.
func (f *Framework) Better(other *Framework) bool {
	if other == nil {
		return true
	}
	if f.Fitness != other.Fitness {
		return f.Fitness > other.Fitness
	}
	return f.CreatedAt.After(other.CreatedAt)
}
