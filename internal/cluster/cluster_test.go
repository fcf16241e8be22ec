package cluster

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/longregen/archetype/internal/adapters/id"
	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// candidateCode builds a program with the given number of roles and loop
// nesting, with one Respond in the innermost loop.
func candidateCode(roles, depth int) string {
	var b strings.Builder
	b.WriteString("package candidate\n\nimport (\n\t\"context\"\n\n\t\"archetype/rt\"\n)\n\n")
	b.WriteString("func Forward(ctx context.Context, self *rt.Runtime, task string) (string, error) {\n")
	b.WriteString("\tm, _ := self.Meeting(ctx, \"m\")\n")
	for r := 0; r < roles; r++ {
		fmt.Fprintf(&b, "\ta%d, _ := self.Agent(ctx, \"Role %d\", 0.%d)\n", r, r, r)
		fmt.Fprintf(&b, "\t_ = m.Join(ctx, a%d)\n", r)
	}
	b.WriteString("\tvar out map[string]string\n")
	for d := 0; d < depth; d++ {
		fmt.Fprintf(&b, "\tfor i%d := 0; i%d < 2; i%d++ {\n", d, d, d)
	}
	if roles > 0 {
		b.WriteString("\tout, _ = a0.Respond(ctx, map[string]string{\"answer\": \"letter\"})\n")
	}
	for d := 0; d < depth; d++ {
		b.WriteString("\t}\n")
	}
	b.WriteString("\treturn out[\"answer\"], nil\n}\n")
	return b.String()
}

func TestASTFeaturizer_Counts(t *testing.T) {
	fw := models.NewFramework("fw_1", "pop", "x", "We debate, then vote by majority.", candidateCode(3, 2))

	d, err := ASTFeaturizer{}.Describe(fw)
	require.NoError(t, err)
	require.Len(t, d, Dimensions)

	assert.Equal(t, float32(3), d[FeatureRoles])
	assert.Equal(t, float32(3), d[FeatureAgents])
	assert.Equal(t, float32(1), d[FeatureMeetings])
	assert.Equal(t, float32(3), d[FeatureJoins])
	assert.Equal(t, float32(1), d[FeatureResponds])
	assert.Equal(t, float32(2), d[FeatureLoopDepth])
	assert.Equal(t, float32(1), d[FeatureLoopedResponds])
	assert.Equal(t, float32(3), d[FeatureTemperatures])
	assert.Equal(t, float32(1), d[FeatureCritique])
	assert.Equal(t, float32(2), d[FeatureEnsemble])
}

func TestASTFeaturizer_LoopDepthUnwinds(t *testing.T) {
	code := `package candidate

func Forward() {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
		}
	}
	for k := range []int{1} {
		_ = k
	}
	x.Respond(nil, nil)
}
`
	d, err := ASTFeaturizer{}.Describe(&models.Framework{ID: "fw", Code: code})
	require.NoError(t, err)
	assert.Equal(t, float32(2), d[FeatureLoopDepth])
	assert.Equal(t, float32(1), d[FeatureResponds])
	assert.Equal(t, float32(0), d[FeatureLoopedResponds])
}

func TestASTFeaturizer_Deterministic(t *testing.T) {
	fw := models.NewFramework("fw_1", "pop", "x", "reflect", candidateCode(2, 1))
	a, err := ASTFeaturizer{}.Describe(fw)
	require.NoError(t, err)
	b, err := ASTFeaturizer{}.Describe(fw)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestASTFeaturizer_ParseError(t *testing.T) {
	_, err := ASTFeaturizer{}.Describe(&models.Framework{ID: "fw", Code: "package candidate\nfunc ("})
	assert.Error(t, err)
}

func TestKMeans_SeparatesBlobs(t *testing.T) {
	points := [][]float64{{0, 0}, {0.1, 0}, {0, 0.1}, {10, 10}, {10.1, 10}, {10, 10.1}}
	centroids, assign := KMeans(points, 2, 1)
	require.Len(t, centroids, 2)
	assert.Equal(t, assign[0], assign[1])
	assert.Equal(t, assign[0], assign[2])
	assert.Equal(t, assign[3], assign[4])
	assert.Equal(t, assign[3], assign[5])
	assert.NotEqual(t, assign[0], assign[3])
}

func TestKMeans_Boundaries(t *testing.T) {
	centroids, assign := KMeans(nil, 3, 1)
	assert.Nil(t, centroids)
	assert.Nil(t, assign)

	centroids, _ = KMeans([][]float64{{1}, {2}}, 5, 1)
	assert.LessOrEqual(t, len(centroids), 2)

	// Identical points collapse into one group.
	centroids, assign = KMeans([][]float64{{1, 1}, {1, 1}, {1, 1}}, 3, 1)
	assert.Len(t, centroids, 1)
	assert.Equal(t, []int{0, 0, 0}, assign)
}

func TestKMeans_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	points := make([][]float64, 40)
	for i := range points {
		points[i] = []float64{rng.Float64(), rng.Float64(), rng.Float64()}
	}
	c1, a1 := KMeans(points, 5, 99)
	c2, a2 := KMeans(points, 5, 99)
	assert.Equal(t, c1, c2)
	assert.Equal(t, a1, a2)
}

func testPopulation(n int) *models.Population {
	pop := &models.Population{ID: "pop_test", CreatedAt: time.Unix(0, 0).UTC()}
	for i := 0; i < n; i++ {
		fw := models.NewFramework(fmt.Sprintf("fw_%02d", i), pop.ID, fmt.Sprintf("f%d", i),
			strings.Repeat("think ", i), candidateCode(i%4+1, i%3))
		fw.CreatedAt = pop.CreatedAt.Add(time.Duration(i) * time.Second)
		pop.Frameworks = append(pop.Frameworks, fw)
	}
	return pop
}

func partition(gen *models.Generation) [][]string {
	var out [][]string
	for _, c := range gen.Clusters {
		var ids []string
		for _, f := range c.Members {
			ids = append(ids, f.ID)
		}
		sort.Strings(ids)
		out = append(out, ids)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func TestClusterer_AssignsEveryFramework(t *testing.T) {
	pop := testPopulation(12)
	c := NewClusterer(ASTFeaturizer{}, id.New(), 42)

	gen, assignment, err := c.Cluster(context.Background(), pop, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.Index)
	assert.Equal(t, pop.ID, gen.PopulationID)
	assert.LessOrEqual(t, len(gen.Clusters), 3)
	assert.Len(t, assignment, 12)

	members := 0
	for _, cl := range gen.Clusters {
		require.NotEmpty(t, cl.Members)
		assert.NotEmpty(t, cl.Name)
		assert.NotEmpty(t, cl.Description)
		assert.Equal(t, gen.ID, cl.GenerationID)
		assert.Len(t, cl.Centroid, Dimensions)
		for _, f := range cl.Members {
			assert.Equal(t, cl.ID, f.ClusterID)
			assert.Equal(t, cl.ID, assignment[f.ID])
			assert.Len(t, f.Descriptor, Dimensions)
		}
		members += len(cl.Members)
	}
	assert.Equal(t, 12, members)
}

func TestClusterer_KLargerThanPopulation(t *testing.T) {
	pop := testPopulation(2)
	c := NewClusterer(ASTFeaturizer{}, id.New(), 1)

	gen, _, err := c.Cluster(context.Background(), pop, 7)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(gen.Clusters), 2)
	assert.NotEmpty(t, gen.Clusters)
}

func TestClusterer_Idempotent(t *testing.T) {
	pop := testPopulation(10)
	c := NewClusterer(ASTFeaturizer{}, id.New(), 7)

	first, _, err := c.Cluster(context.Background(), pop, 3)
	require.NoError(t, err)
	pop.Generations = append(pop.Generations, first)

	second, _, err := c.Cluster(context.Background(), pop, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Index)
	assert.Equal(t, partition(first), partition(second))
}

func TestClusterer_EliteInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 0))
	pop := testPopulation(6)
	c := NewClusterer(ASTFeaturizer{}, id.New(), 5)

	for g := 0; g < 3; g++ {
		for _, f := range pop.Frameworks {
			if !f.Evaluated() {
				f.ApplyEvaluation(models.ConfidenceInterval{Median: rng.Float64(), Level: 0.95})
			}
		}
		gen, _, err := c.Cluster(context.Background(), pop, 3)
		require.NoError(t, err)
		pop.Generations = append(pop.Generations, gen)

		for i := 0; i < 3; i++ {
			n := len(pop.Frameworks)
			fw := models.NewFramework(fmt.Sprintf("fw_g%d_%d", g, i), pop.ID, "child", "refine", candidateCode(n%5+1, n%4))
			pop.Frameworks = append(pop.Frameworks, fw)
		}
	}

	latest := pop.LatestGeneration()
	require.NotNil(t, latest)
	assert.Equal(t, 3, latest.Index)
	for _, cl := range latest.Clusters {
		elite := cl.Elite()
		require.NotNil(t, elite)
		for _, f := range cl.Members {
			assert.LessOrEqual(t, f.Fitness, elite.Fitness)
		}
	}
	assert.Len(t, pop.Elites(), len(latest.Clusters))
}

func TestClusterer_Errors(t *testing.T) {
	c := NewClusterer(ASTFeaturizer{}, id.New(), 1)

	_, _, err := c.Cluster(context.Background(), &models.Population{ID: "empty"}, 3)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = c.Cluster(context.Background(), testPopulation(3), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDescribeCentroid(t *testing.T) {
	centroid := make([]float64, Dimensions)
	centroid[FeatureEnsemble] = 2
	centroid[FeatureLoopDepth] = -1
	name, desc := describeCentroid(centroid)
	assert.Equal(t, "Ensembles and Voting", name)
	assert.Contains(t, desc, "ensemble vocabulary")
	assert.Contains(t, desc, "loop depth")

	for i := range centroid {
		centroid[i] = -0.5
	}
	name, _ = describeCentroid(centroid)
	assert.Equal(t, "Minimal Chains", name)
}
