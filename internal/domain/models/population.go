package models

import (
	"time"
)

type Population struct {
	ID          string        `json:"population_id"`
	CreatedAt   time.Time     `json:"created_at"`
	Frameworks  []*Framework  `json:"frameworks,omitempty"`
	Generations []*Generation `json:"generations,omitempty"`
}

func NewPopulation(id string) *Population {
	return &Population{
		ID:        id,
		CreatedAt: time.Now().UTC(),
	}
}

// LatestGeneration returns the generation with the highest index, or nil.
func (p *Population) LatestGeneration() *Generation {
	var latest *Generation
	for _, g := range p.Generations {
		if latest == nil || g.Index > latest.Index {
			latest = g
		}
	}
	return latest
}

// Elites is the elite of each cluster of the latest generation, or every
// framework when no generation exists yet.
func (p *Population) Elites() []*Framework {
	g := p.LatestGeneration()
	if g == nil {
		out := make([]*Framework, len(p.Frameworks))
		copy(out, p.Frameworks)
		return out
	}
	elites := make([]*Framework, 0, len(g.Clusters))
	for _, c := range g.Clusters {
		if e := c.Elite(); e != nil {
			elites = append(elites, e)
		}
	}
	return elites
}

// Framework looks a framework up by id.
func (p *Population) Framework(id string) *Framework {
	for _, f := range p.Frameworks {
		if f.ID == id {
			return f
		}
	}
	return nil
}

type Generation struct {
	ID           string     `json:"generation_id"`
	PopulationID string     `json:"population_id"`
	Index        int        `json:"index"`
	CreatedAt    time.Time  `json:"created_at"`
	Clusters     []*Cluster `json:"clusters,omitempty"`
}

type Cluster struct {
	ID           string       `json:"cluster_id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	GenerationID string       `json:"generation_id"`
	PopulationID string       `json:"population_id"`
	Centroid     []float64    `json:"centroid,omitempty"`
	Members      []*Framework `json:"members,omitempty"`
}

// Elite is the highest fitness member, ties broken by the latest creation
// time. Nil for an empty cluster.
func (c *Cluster) Elite() *Framework {
	var elite *Framework
	for _, f := range c.Members {
		if elite == nil || f.Better(elite) {
			elite = f
		}
	}
	return elite
}
