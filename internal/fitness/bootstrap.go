// Package fitness turns accuracy vectors into bootstrap confidence
// intervals.
package fitness

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/longregen/archetype/internal/domain"
	"github.com/longregen/archetype/internal/domain/models"
	"github.com/longregen/archetype/internal/ports"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultSamples = 100000
	DefaultLevel   = 0.95
)

// Bootstrap is a percentile bootstrap over the mean. The same seed gives the
// same interval for the same vector.
type Bootstrap struct {
	Samples int
	Level   float64
	Seed    uint64
}

var _ ports.Estimator = (*Bootstrap)(nil)

func NewBootstrap(samples int, level float64, seed uint64) *Bootstrap {
	if samples < 1 {
		samples = DefaultSamples
	}
	if level <= 0 || level >= 1 {
		level = DefaultLevel
	}
	return &Bootstrap{Samples: samples, Level: level, Seed: seed}
}

func (b *Bootstrap) Estimate(accuracy []float64) (models.ConfidenceInterval, error) {
	n := len(accuracy)
	if n == 0 {
		return models.ConfidenceInterval{}, fmt.Errorf("%w: empty accuracy vector", domain.ErrInvalidInput)
	}

	rng := rand.New(rand.NewPCG(b.Seed, uint64(n)))
	means := make([]float64, b.Samples)
	for i := range means {
		var sum float64
		for j := 0; j < n; j++ {
			sum += accuracy[rng.IntN(n)]
		}
		means[i] = sum / float64(n)
	}
	sort.Float64s(means)

	alpha := (1 - b.Level) / 2
	ci := models.ConfidenceInterval{
		Lower:      stat.Quantile(alpha, stat.Empirical, means, nil),
		Upper:      stat.Quantile(1-alpha, stat.Empirical, means, nil),
		Median:     stat.Quantile(0.5, stat.Empirical, means, nil),
		SampleSize: n,
		Level:      b.Level,
	}
	return ci, nil
}

// Mean is the plain accuracy, compared against the acceptance threshold.
func Mean(accuracy []float64) float64 {
	if len(accuracy) == 0 {
		return 0
	}
	return floats.Sum(accuracy) / float64(len(accuracy))
}
