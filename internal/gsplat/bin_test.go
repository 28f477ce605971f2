package gsplat

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/gogpu/splat/internal/geom"
)

func TestCumulativeOffsets(t *testing.T) {
	offsets, total := CumulativeOffsets([]int{2, 0, 3, 1})
	if want := []int{0, 2, 2, 5}; !slices.Equal(offsets, want) {
		t.Errorf("offsets = %v, want %v", offsets, want)
	}
	if total != 6 {
		t.Errorf("total = %d, want 6", total)
	}
}

func TestDepthKey_Order(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
	}{
		{"same tile nearer first", DepthKey(3, 0.5), DepthKey(3, 7.25)},
		{"tile dominates depth", DepthKey(2, 100), DepthKey(3, 0.1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a >= tt.b {
				t.Errorf("key %x should sort before %x", tt.a, tt.b)
			}
		})
	}
	if got := (Intersection{Key: DepthKey(41, 2)}).Tile(); got != 41 {
		t.Errorf("Tile() = %d, want 41", got)
	}
}

func randomScene(n int, seed uint64) *ProjectInput {
	r := rand.New(rand.NewPCG(seed, seed+1))
	in := &ProjectInput{GlobalScale: 1, ClipThresh: DefaultClipThresh, Camera: testCamera(80, 56, 60)}
	for range n {
		z := 1 + 6*r.Float64()
		in.Means = append(in.Means, (r.Float64()-0.5)*z, (r.Float64()-0.5)*z*0.7, z)
		for range 3 {
			in.LogScales = append(in.LogScales, math.Log(0.02+0.2*r.Float64()))
		}
		q := geom.RandomQuat(r.Float64(), r.Float64(), r.Float64())
		in.Quats = append(in.Quats, q.W, q.X, q.Y, q.Z)
	}
	return in
}

func TestBinGaussians_Partition(t *testing.T) {
	b := NewCPU(4)
	defer b.Close()

	proj, err := b.Project(randomScene(200, 7))
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	bins := BinGaussians(proj, b.Pool())

	sum := 0
	for _, n := range proj.TilesHit {
		sum += n
	}
	if bins.Count() != sum {
		t.Fatalf("intersections = %d, want Σ tilesHit = %d", bins.Count(), sum)
	}
	if sum == 0 {
		t.Fatal("random scene produced no intersections")
	}

	covered := 0
	for tile, r := range bins.Ranges {
		if r.Start > r.End {
			t.Fatalf("tile %d: start %d > end %d", tile, r.Start, r.End)
		}
		if tile > 0 && r.Start != bins.Ranges[tile-1].End {
			t.Fatalf("tile %d starts at %d, previous tile ends at %d", tile, r.Start, bins.Ranges[tile-1].End)
		}
		covered += r.Len()
		prev := -1.0
		for k := r.Start; k < r.End; k++ {
			rec := bins.Sorted[k]
			if rec.Tile() != tile {
				t.Fatalf("record %d in tile %d range has tile %d", k, tile, rec.Tile())
			}
			d := float64(float32(proj.Depths[rec.Gaussian]))
			if d < prev {
				t.Errorf("tile %d: depth %v after %v, want non-decreasing", tile, d, prev)
			}
			prev = d

			g := int(rec.Gaussian)
			minX, minY, maxX, maxY := TileRect(proj.XY[g], proj.Radii[g], proj.Grid)
			tx, ty := tile%proj.Grid.TilesX(), tile/proj.Grid.TilesX()
			if tx < minX || tx >= maxX || ty < minY || ty >= maxY {
				t.Errorf("Gaussian %d binned to tile (%d,%d) outside its rect", g, tx, ty)
			}
		}
	}
	if covered != bins.Count() {
		t.Errorf("ranges cover %d records, want %d", covered, bins.Count())
	}
}

func TestTileRanges_EmptyTilesAreContiguous(t *testing.T) {
	sorted := []Intersection{
		{Key: DepthKey(0, 1), Gaussian: 0},
		{Key: DepthKey(2, 1), Gaussian: 1},
		{Key: DepthKey(2, 2), Gaussian: 2},
	}
	got := TileRanges(sorted, 4)
	want := []TileRange{{0, 1}, {1, 1}, {1, 3}, {3, 3}}
	if !slices.Equal(got, want) {
		t.Errorf("TileRanges() = %v, want %v", got, want)
	}

	empty := TileRanges(nil, 3)
	if !slices.Equal(empty, make([]TileRange, 3)) {
		t.Errorf("TileRanges(nil) = %v, want all zero", empty)
	}
}

func TestBinGaussians_SerialMatchesParallel(t *testing.T) {
	b := NewCPU(3)
	defer b.Close()

	proj, err := b.Project(randomScene(120, 11))
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	serial := BinGaussians(proj, nil)
	par := BinGaussians(proj, b.Pool())
	if !slices.Equal(serial.Sorted, par.Sorted) {
		t.Error("serial and parallel binning disagree")
	}
}

func TestBinGaussians_Empty(t *testing.T) {
	in := &ProjectInput{GlobalScale: 1, Camera: testCamera(32, 32, 32)}
	b := NewCPU(1)
	defer b.Close()
	proj, err := b.Project(in)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	bins := BinGaussians(proj, nil)
	if bins.Count() != 0 || len(bins.Ranges) != 4 {
		t.Errorf("empty scene: %d records, %d ranges; want 0 and 4", bins.Count(), len(bins.Ranges))
	}
}
