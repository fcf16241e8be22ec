package dto

import (
	"time"

	"github.com/longregen/archetype/internal/domain/models"
)

// FrameworkSummary is a framework without its code.
type FrameworkSummary struct {
	ID              string                     `json:"framework_id"`
	Name            string                     `json:"name"`
	ParentID        string                     `json:"parent_id,omitempty"`
	ClusterID       string                     `json:"cluster_id,omitempty"`
	Directive       string                     `json:"directive,omitempty"`
	GenerationIndex int                        `json:"generation_index"`
	DebugAttempts   int                        `json:"debug_attempts"`
	Fitness         float64                    `json:"fitness"`
	FitnessString   string                     `json:"fitness_string"`
	CI              *models.ConfidenceInterval `json:"ci,omitempty"`
	TestCI          *models.ConfidenceInterval `json:"test_ci,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
}

func NewFrameworkSummary(f *models.Framework) FrameworkSummary {
	return FrameworkSummary{
		ID:              f.ID,
		Name:            f.Name,
		ParentID:        f.ParentID,
		ClusterID:       f.ClusterID,
		Directive:       f.Directive,
		GenerationIndex: f.GenerationIndex,
		DebugAttempts:   f.DebugAttempts,
		Fitness:         f.Fitness,
		FitnessString:   f.FitnessString(),
		CI:              f.CI,
		TestCI:          f.TestCI,
		CreatedAt:       f.CreatedAt,
	}
}

func NewFrameworkSummaries(frameworks []*models.Framework) []FrameworkSummary {
	out := make([]FrameworkSummary, len(frameworks))
	for i, f := range frameworks {
		out[i] = NewFrameworkSummary(f)
	}
	return out
}

type PopulationSummary struct {
	ID        string    `json:"population_id"`
	CreatedAt time.Time `json:"created_at"`
}

type PopulationListResponse struct {
	Populations []PopulationSummary `json:"populations"`
	Total       int                 `json:"total"`
}

type PopulationResponse struct {
	ID          string             `json:"population_id"`
	CreatedAt   time.Time          `json:"created_at"`
	Generation  int                `json:"generation"`
	Best        *FrameworkSummary  `json:"best,omitempty"`
	Frameworks  []FrameworkSummary `json:"frameworks"`
	Generations int                `json:"generations"`
}

// NewPopulationResponse summarises a loaded population. Best is the
// highest fitness framework, ties going to the latest.
func NewPopulationResponse(p *models.Population) PopulationResponse {
	resp := PopulationResponse{
		ID:          p.ID,
		CreatedAt:   p.CreatedAt,
		Frameworks:  NewFrameworkSummaries(p.Frameworks),
		Generations: len(p.Generations),
	}
	if g := p.LatestGeneration(); g != nil {
		resp.Generation = g.Index
	}
	var best *models.Framework
	for _, f := range p.Frameworks {
		if f.Better(best) {
			best = f
		}
	}
	if best != nil {
		s := NewFrameworkSummary(best)
		resp.Best = &s
	}
	return resp
}

type ClusterResponse struct {
	ID          string    `json:"cluster_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	EliteID     string    `json:"elite_id,omitempty"`
	MemberIDs   []string  `json:"member_ids"`
	Centroid    []float64 `json:"centroid,omitempty"`
}

type GenerationResponse struct {
	ID        string            `json:"generation_id"`
	Index     int               `json:"index"`
	CreatedAt time.Time         `json:"created_at"`
	Clusters  []ClusterResponse `json:"clusters"`
}

func NewGenerationResponses(generations []*models.Generation) []GenerationResponse {
	out := make([]GenerationResponse, len(generations))
	for i, g := range generations {
		clusters := make([]ClusterResponse, len(g.Clusters))
		for j, c := range g.Clusters {
			members := make([]string, len(c.Members))
			for k, m := range c.Members {
				members[k] = m.ID
			}
			clusters[j] = ClusterResponse{
				ID:          c.ID,
				Name:        c.Name,
				Description: c.Description,
				MemberIDs:   members,
				Centroid:    c.Centroid,
			}
			if e := c.Elite(); e != nil {
				clusters[j].EliteID = e.ID
			}
		}
		out[i] = GenerationResponse{ID: g.ID, Index: g.Index, CreatedAt: g.CreatedAt, Clusters: clusters}
	}
	return out
}

type AgentHistoryResponse struct {
	Agent    *models.Agent    `json:"agent"`
	Messages []models.Message `json:"messages"`
}
