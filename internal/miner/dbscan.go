package miner

import (
	"math"

	"github.com/askbase/askbase/internal/embedding"
)

// dbscan labels for points that are not (yet) assigned to a cluster.
const (
	labelUndefined = 0
	labelNoise     = -1
)

// dbscan clusters vectors by density using cosine distance
// (1 − cosine similarity). eps is the neighborhood radius and minPts the
// minimum neighborhood size for a core point. Returns per-point cluster
// labels starting at 1; noise points are labeled labelNoise.
//
// The O(n²) neighborhood scan is fine at mining scale: a window holds
// thousands of unique queries, not millions.
func dbscan(vectors [][]float32, eps float64, minPts int) []int {
	n := len(vectors)
	labels := make([]int, n)

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != labelUndefined {
			continue
		}

		neighbors := regionQuery(vectors, i, eps)
		if len(neighbors) < minPts {
			labels[i] = labelNoise
			continue
		}

		cluster++
		labels[i] = cluster

		// Expand: seed set grows as new core points are found.
		seeds := neighbors
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if labels[j] == labelNoise {
				labels[j] = cluster // border point, reachable from a core
			}
			if labels[j] != labelUndefined {
				continue
			}
			labels[j] = cluster

			jNeighbors := regionQuery(vectors, j, eps)
			if len(jNeighbors) >= minPts {
				seeds = append(seeds, jNeighbors...)
			}
		}
	}

	return labels
}

// regionQuery returns the indices within eps cosine distance of point i,
// including i itself. Invalid (NaN) similarities are treated as
// infinitely distant.
func regionQuery(vectors [][]float32, i int, eps float64) []int {
	var neighbors []int
	for j := range vectors {
		sim := embedding.Cosine(vectors[i], vectors[j])
		if math.IsNaN(sim) {
			continue
		}
		if 1-sim <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}
