package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceInterval_String(t *testing.T) {
	ci := ConfidenceInterval{Lower: 0.4531, Upper: 0.6172, Median: 0.5352, SampleSize: 128, Level: 0.95}
	assert.Equal(t, "95.0% Bootstrap Confidence Interval: (45.3%, 61.7%), Median: 53.5%", ci.String())
}

func TestFramework_Evaluation(t *testing.T) {
	f := NewFramework("fw_1", "pop_1", "Debate", "argue", "package candidate")
	assert.False(t, f.Evaluated())
	assert.Equal(t, "not evaluated", f.FitnessString())

	f.ApplyEvaluation(ConfidenceInterval{Lower: 0.1, Upper: 0.3, Median: 0.2, SampleSize: 5, Level: 0.95})
	assert.True(t, f.Evaluated())
	assert.Equal(t, 0.2, f.Fitness)
	assert.Contains(t, f.FitnessString(), "Median: 20.0%")
}

func TestFramework_Better(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	older := &Framework{ID: "a", Fitness: 0.5, CreatedAt: t0}
	newer := &Framework{ID: "b", Fitness: 0.5, CreatedAt: t0.Add(time.Second)}
	stronger := &Framework{ID: "c", Fitness: 0.6, CreatedAt: t0}

	assert.True(t, older.Better(nil))
	assert.True(t, stronger.Better(newer))
	assert.False(t, newer.Better(stronger))
	assert.True(t, newer.Better(older), "ties go to the later framework")
	assert.False(t, older.Better(newer))
}

func TestCluster_Elite(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Framework{ID: "a", Fitness: 0.7, CreatedAt: t0}
	b := &Framework{ID: "b", Fitness: 0.7, CreatedAt: t0.Add(time.Minute)}
	c := &Framework{ID: "c", Fitness: 0.2, CreatedAt: t0.Add(2 * time.Minute)}

	assert.Nil(t, (&Cluster{}).Elite())
	assert.Equal(t, "b", (&Cluster{Members: []*Framework{a, b, c}}).Elite().ID)
}

func TestPopulation_ElitesAndLatestGeneration(t *testing.T) {
	a := &Framework{ID: "a", Fitness: 0.1}
	b := &Framework{ID: "b", Fitness: 0.9}
	c := &Framework{ID: "c", Fitness: 0.4}
	pop := &Population{ID: "pop_1", Frameworks: []*Framework{a, b, c}}

	assert.Nil(t, pop.LatestGeneration())
	assert.Len(t, pop.Elites(), 3, "without generations every framework is an elite")

	pop.Generations = []*Generation{
		{Index: 2, Clusters: []*Cluster{{Members: []*Framework{a, b}}, {Members: []*Framework{c}}, {}}},
		{Index: 1, Clusters: []*Cluster{{Members: []*Framework{a, b, c}}}},
	}
	assert.Equal(t, 2, pop.LatestGeneration().Index)

	elites := pop.Elites()
	if assert.Len(t, elites, 2) {
		assert.Equal(t, "b", elites[0].ID)
		assert.Equal(t, "c", elites[1].ID)
	}

	assert.Same(t, c, pop.Framework("c"))
	assert.Nil(t, pop.Framework("missing"))
}

func TestAgent_IsSystem(t *testing.T) {
	assert.True(t, NewAgent("ag_1", SystemAgentName, "m", 0).IsSystem())
	assert.False(t, NewAgent("ag_2", "Critic-ab12", "m", 0.5).IsSystem())
}

func TestIsLetter(t *testing.T) {
	for _, l := range []string{"A", "B", "C", "D"} {
		assert.True(t, IsLetter(l))
	}
	for _, s := range []string{"", "a", "E", "AB", " A"} {
		assert.False(t, IsLetter(s))
	}
}
