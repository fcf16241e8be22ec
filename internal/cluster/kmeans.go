package cluster

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

const (
	// Epsilon is the centroid shift below which k-means stops.
	Epsilon       = 1e-6
	maxIterations = 100
)

// KMeans partitions points into at most k groups. Seeding is k-means++ from
// the given seed; ties go to the lowest centroid index. Empty groups are
// dropped, so the result can have fewer than k centroids.
func KMeans(points [][]float64, k int, seed uint64) (centroids [][]float64, assign []int) {
	n := len(points)
	if n == 0 || k <= 0 {
		return nil, nil
	}
	k = min(k, n)
	rng := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))

	centroids = seedPlusPlus(points, k, rng)
	assign = make([]int, n)
	for iter := 0; iter < maxIterations; iter++ {
		for i, p := range points {
			assign[i] = nearest(centroids, p)
		}
		next := recompute(points, assign, centroids)
		shift := 0.0
		for c := range centroids {
			shift = math.Max(shift, floats.Distance(centroids[c], next[c], 2))
		}
		centroids = next
		if shift < Epsilon {
			break
		}
	}
	for i, p := range points {
		assign[i] = nearest(centroids, p)
	}
	return compact(centroids, assign)
}

func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := floats.Distance(p, centroids[nearest(centroids, p)], 2)
			dist[i] = d * d
			total += dist[i]
		}
		if total == 0 {
			// Every point sits on a centroid; the remaining groups would be empty.
			break
		}
		target := rng.Float64() * total
		chosen := len(points) - 1
		for i, d := range dist {
			target -= d
			if target < 0 {
				chosen = i
				break
			}
		}
		centroids = append(centroids, clone(points[chosen]))
	}
	return centroids
}

func nearest(centroids [][]float64, p []float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := floats.Distance(p, centroid, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// recompute moves each centroid to the mean of its points; a centroid with
// no points stays put.
func recompute(points [][]float64, assign []int, prev [][]float64) [][]float64 {
	dim := len(points[0])
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		floats.Add(sums[assign[i]], p)
		counts[assign[i]]++
	}
	for c := range sums {
		if counts[c] == 0 {
			copy(sums[c], prev[c])
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
	}
	return sums
}

func compact(centroids [][]float64, assign []int) ([][]float64, []int) {
	used := make([]bool, len(centroids))
	for _, a := range assign {
		used[a] = true
	}
	remap := make([]int, len(centroids))
	var kept [][]float64
	for c, ok := range used {
		if ok {
			remap[c] = len(kept)
			kept = append(kept, centroids[c])
		}
	}
	for i, a := range assign {
		assign[i] = remap[a]
	}
	return kept, assign
}

func clone(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}
