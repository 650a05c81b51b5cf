package summary

import (
	"math"
	"math/rand/v2"
)

// kmeans clusters feature vectors into k groups with Lloyd's algorithm
// and k-means++ seeding. The generator is seeded deterministically, so
// the same inputs always produce the same clustering.
func kmeans(points [][]float64, k int, seed uint64) []int {
	if k > len(points) {
		k = len(points)
	}
	labels := make([]int, len(points))
	if k <= 1 {
		return labels
	}

	rng := rand.New(rand.NewPCG(seed, 0))
	centroids := seedCentroids(points, k, rng)

	const maxIterations = 100
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range points {
			best := nearestCentroid(p, centroids)
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// Recompute centroids as cluster means. A cluster that lost all
		// its points keeps its previous centroid.
		dims := len(points[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			c := labels[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := range sums[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	return labels
}

// seedCentroids picks initial centroids with k-means++: each next
// centroid is drawn with probability proportional to its squared
// distance from the nearest centroid chosen so far.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := squaredDistance(p, centroids[len(centroids)-1])
			if len(centroids) == 1 || d < dist[i] {
				dist[i] = d
			}
			total += dist[i]
		}

		if total == 0 {
			// All remaining points coincide with a centroid.
			centroids = append(centroids, clone(points[rng.IntN(len(points))]))
			continue
		}

		target := rng.Float64() * total
		idx := 0
		for i, d := range dist {
			target -= d
			if target <= 0 {
				idx = i
				break
			}
		}
		centroids = append(centroids, clone(points[idx]))
	}

	return centroids
}

func nearestCentroid(p []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

func clone(p []float64) []float64 {
	c := make([]float64, len(p))
	copy(c, p)
	return c
}
