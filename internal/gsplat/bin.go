package gsplat

import (
	"cmp"
	"math"
	"slices"

	"github.com/gogpu/splat/internal/parallel"
)

// Intersection pairs a Gaussian with one tile its footprint touches.
// Key packs the tile ID in the high 32 bits and the float32 bits of the
// camera depth in the low 32 bits; positive depths sort correctly as
// unsigned integers.
type Intersection struct {
	Key      uint64
	Gaussian int32
}

// Tile returns the tile ID encoded in the key.
func (s Intersection) Tile() int { return int(s.Key >> 32) }

// DepthKey returns the sort key for a Gaussian at depth in tile.
func DepthKey(tile int, depth float64) uint64 {
	return uint64(tile)<<32 | uint64(math.Float32bits(float32(depth)))
}

// TileRange is the half-open span [Start, End) of a tile in the sorted
// intersection array. Empty tiles have Start == End.
type TileRange struct {
	Start, End int32
}

// Len returns the number of Gaussians binned to the tile.
func (r TileRange) Len() int { return int(r.End - r.Start) }

// Bins is the output of tile binning.
type Bins struct {
	Grid parallel.TileGrid

	// Offsets is the exclusive prefix sum of TilesHit.
	Offsets []int

	// Sorted holds every intersection ordered by (tile, depth, Gaussian).
	Sorted []Intersection

	// Ranges maps a tile ID to its span of Sorted.
	Ranges []TileRange
}

// Count returns the total number of intersections.
func (b *Bins) Count() int { return len(b.Sorted) }

// CumulativeOffsets returns the exclusive prefix sum of tilesHit and its total.
func CumulativeOffsets(tilesHit []int) ([]int, int) {
	offsets := make([]int, len(tilesHit))
	total := 0
	for i, n := range tilesHit {
		offsets[i] = total
		total += n
	}
	return offsets, total
}

// MapIntersections emits one record per (visible Gaussian, touched tile).
// Gaussian i writes to [offsets[i], offsets[i]+TilesHit[i]) so the work
// parallelizes over Gaussians without contention.
func MapIntersections(p *Projection, offsets []int, total int, pool *parallel.WorkerPool) []Intersection {
	out := make([]Intersection, total)
	tilesX := p.Grid.TilesX()
	emit := func(i int) {
		if p.Radii[i] <= 0 {
			return
		}
		minX, minY, maxX, maxY := TileRect(p.XY[i], p.Radii[i], p.Grid)
		k := offsets[i]
		for ty := minY; ty < maxY; ty++ {
			for tx := minX; tx < maxX; tx++ {
				out[k] = Intersection{Key: DepthKey(ty*tilesX+tx, p.Depths[i]), Gaussian: int32(i)}
				k++
			}
		}
	}
	if pool == nil {
		for i := range p.Len() {
			emit(i)
		}
	} else {
		pool.ForEach(p.Len(), emit)
	}
	return out
}

// SortIntersections orders records by key, breaking ties by Gaussian index
// so the order is deterministic.
func SortIntersections(s []Intersection) {
	slices.SortFunc(s, func(a, b Intersection) int {
		if c := cmp.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return cmp.Compare(a.Gaussian, b.Gaussian)
	})
}

// TileRanges scans sorted intersections once and records each tile's span.
// Empty tiles get the zero-length span at the end of the previous tile, so
// the ranges are contiguous and non-decreasing across tile ids.
func TileRanges(sorted []Intersection, numTiles int) []TileRange {
	ranges := make([]TileRange, numTiles)
	k, n := 0, len(sorted)
	for tile := range numTiles {
		start := k
		for k < n && sorted[k].Tile() == tile {
			k++
		}
		ranges[tile] = TileRange{Start: int32(start), End: int32(k)}
	}
	return ranges
}

// BinGaussians runs the full binning stage: prefix sum, intersection
// emission, sort and range extraction. pool may be nil.
func BinGaussians(p *Projection, pool *parallel.WorkerPool) *Bins {
	offsets, total := CumulativeOffsets(p.TilesHit)
	sorted := MapIntersections(p, offsets, total, pool)
	SortIntersections(sorted)
	return &Bins{
		Grid:    p.Grid,
		Offsets: offsets,
		Sorted:  sorted,
		Ranges:  TileRanges(sorted, p.Grid.TileCount()),
	}
}
