// Package knn answers nearest-neighbour queries over point clouds.
package knn

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// MeanDistances returns, for each point of the flat xyz array, the mean
// Euclidean distance to its k nearest other points. Points with no
// neighbours (a single-point cloud) get fallback.
func MeanDistances(xyz []float64, k int, fallback float64) []float64 {
	n := len(xyz) / 3
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	pts := make(kdtree.Points, n)
	for i := range pts {
		pts[i] = kdtree.Point{xyz[3*i], xyz[3*i+1], xyz[3*i+2]}
	}
	// kdtree.New reorders its input, so queries use a separate copy.
	queries := slices.Clone(pts)
	tree := kdtree.New(pts, false)

	dists := make([]float64, 0, k+1)
	for i, q := range queries {
		keep := kdtree.NewNKeeper(k + 1)
		tree.NearestSet(keep, q)
		dists = dists[:0]
		for _, c := range keep.Heap {
			if c.Comparable == nil {
				continue
			}
			dists = append(dists, math.Sqrt(c.Dist))
		}
		slices.Sort(dists)
		// The closest hit is the query point itself.
		if len(dists) > 0 {
			dists = dists[1:]
		}
		if len(dists) == 0 {
			out[i] = fallback
			continue
		}
		sum := 0.0
		for _, d := range dists {
			sum += d
		}
		out[i] = sum / float64(len(dists))
	}
	return out
}
