package cluster

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"time"

	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/ports"
	"gonum.org/v1/gonum/stat"
)

// Clusterer builds a new Generation by k-means over z-normalized descriptors.
type Clusterer struct {
	featurizer ports.Featurizer
	ids        ports.IDGenerator
	seed       uint64
	now        func() time.Time
}

var _ ports.Clusterer = (*Clusterer)(nil)

func NewClusterer(featurizer ports.Featurizer, ids ports.IDGenerator, seed uint64) *Clusterer {
	return &Clusterer{featurizer: featurizer, ids: ids, seed: seed, now: time.Now}
}

// Cluster describes every framework, partitions the population into at most
// k clusters and points each framework at its cluster. The returned
// generation is not persisted.
func (c *Clusterer) Cluster(ctx context.Context, pop *models.Population, k int) (*models.Generation, map[string]string, error) {
	if len(pop.Frameworks) == 0 {
		return nil, nil, fmt.Errorf("%w: population %s has no frameworks", domain.ErrInvalidInput, pop.ID)
	}
	if k < 1 {
		return nil, nil, fmt.Errorf("%w: k must be at least 1", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	frameworks := make([]*models.Framework, len(pop.Frameworks))
	copy(frameworks, pop.Frameworks)
	sort.Slice(frameworks, func(i, j int) bool { return frameworks[i].ID < frameworks[j].ID })

	raw := make([][]float64, len(frameworks))
	for i, f := range frameworks {
		d, err := c.featurizer.Describe(f)
		if err != nil {
			return nil, nil, err
		}
		f.Descriptor = d
		raw[i] = make([]float64, len(d))
		for j, x := range d {
			raw[i][j] = float64(x)
		}
	}
	points := zNormalize(raw)

	centroids, assign := KMeans(points, k, c.populationSeed(frameworks))

	index := 1
	if latest := pop.LatestGeneration(); latest != nil {
		index = latest.Index + 1
	}
	gen := &models.Generation{
		ID:           c.ids.GenerateGenerationID(),
		PopulationID: pop.ID,
		Index:        index,
		CreatedAt:    c.now().UTC(),
	}
	clusters := make([]*models.Cluster, len(centroids))
	for i, centroid := range centroids {
		name, description := describeCentroid(centroid)
		clusters[i] = &models.Cluster{
			ID:           c.ids.GenerateClusterID(),
			Name:         name,
			Description:  description,
			GenerationID: gen.ID,
			PopulationID: pop.ID,
			Centroid:     centroid,
		}
	}
	assignment := make(map[string]string, len(frameworks))
	for i, f := range frameworks {
		cl := clusters[assign[i]]
		cl.Members = append(cl.Members, f)
		f.ClusterID = cl.ID
		assignment[f.ID] = cl.ID
	}
	gen.Clusters = clusters
	return gen, assignment, nil
}

// populationSeed mixes the configured seed with the member ids.
func (c *Clusterer) populationSeed(sorted []*models.Framework) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], c.seed)
	h.Write(buf[:])
	for _, f := range sorted {
		h.Write([]byte(f.ID))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// zNormalize scales each column to zero mean and unit variance; constant
// columns become zero.
func zNormalize(raw [][]float64) [][]float64 {
	n := len(raw)
	dim := len(raw[0])
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, dim)
	}
	col := make([]float64, n)
	for j := 0; j < dim; j++ {
		for i := range raw {
			col[i] = raw[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			continue
		}
		for i := range raw {
			out[i][j] = (raw[i][j] - mean) / std
		}
	}
	return out
}

// describeCentroid names a cluster after the feature its centroid scores
// highest on.
func describeCentroid(centroid []float64) (string, string) {
	hi, lo := 0, 0
	for j, x := range centroid {
		if x > centroid[hi] {
			hi = j
		}
		if x < centroid[lo] {
			lo = j
		}
	}
	if centroid[hi] <= 0 {
		return "Minimal Chains", fmt.Sprintf("Below average on every feature; lowest on %s (z=%.2f).",
			Feature(lo), centroid[lo])
	}
	return featureLabels[hi], fmt.Sprintf("Highest on %s (z=%.2f), lowest on %s (z=%.2f).",
		Feature(hi), centroid[hi], Feature(lo), centroid[lo])
}
