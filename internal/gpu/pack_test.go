package gpu

import (
	"math"
	"testing"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/gsplat"
)

func TestBufferSize(t *testing.T) {
	tests := []struct {
		n    int
		want uint64
	}{
		{0, 16},
		{4, 16},
		{17, 20},
		{64, 64},
		{66, 68},
	}
	for _, tt := range tests {
		if got := bufferSize(tt.n); got != tt.want {
			t.Errorf("bufferSize(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestF32RoundTrip(t *testing.T) {
	in := []float64{0, 1, -2.5, 1e-3, 123456}
	b := f32Bytes(in)
	if len(b) != 4*len(in) {
		t.Fatalf("len = %d, want %d", len(b), 4*len(in))
	}
	for i, want := range in {
		if got := getF32(b, i); math.Abs(got-want) > 1e-6*math.Max(1, math.Abs(want)) {
			t.Errorf("value %d = %v, want %v", i, got, want)
		}
	}
}

func TestProjectParamsLayout(t *testing.T) {
	in, _, _ := testInputs(5)
	b := projectParams(in)
	if len(b) != projectParamsSize {
		t.Fatalf("len = %d, want %d", len(b), projectParamsSize)
	}
	checks := []struct {
		name string
		word int
		want float64
	}{
		{"view[3][2] (translation z)", 14, 4},
		{"view[3][3]", 15, 1},
		{"proj[3][3]", 16 + 15, in.Camera.Proj[3][3]},
		{"fx", 32, 40},
		{"cy", 35, 24},
		{"global scale", 36, 1},
		{"clip", 37, gsplat.DefaultClipThresh},
		{"width", 38, 64},
		{"height", 39, 48},
	}
	for _, c := range checks {
		if got := getF32(b, c.word); math.Abs(got-c.want) > 1e-6 {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}
	if got := getU32(b, 40); got != 4 {
		t.Errorf("tiles x = %d, want 4", got)
	}
	if got := getU32(b, 41); got != 3 {
		t.Errorf("tiles y = %d, want 3", got)
	}
	if got := getU32(b, 42); got != 5 {
		t.Errorf("gaussians = %d, want 5", got)
	}
}

func TestUnpackProjectionMatchesCPU(t *testing.T) {
	in, _, _ := testInputs(40)
	cpu := gsplat.NewCPU(1)
	defer cpu.Close()
	want, err := cpu.Project(in)
	if err != nil {
		t.Fatal(err)
	}
	if want.Visible() == 0 {
		t.Fatal("fixture projects no visible Gaussians")
	}

	got := gsplat.NewProjection(in, in.Len())
	unpackProjection(encodeFootprints(want), got)

	for i := range want.Len() {
		if got.Radii[i] != want.Radii[i] {
			t.Errorf("radius[%d] = %d, want %d", i, got.Radii[i], want.Radii[i])
		}
		if got.TilesHit[i] != want.TilesHit[i] {
			t.Errorf("tilesHit[%d] = %d, want %d", i, got.TilesHit[i], want.TilesHit[i])
		}
		if d := got.XY[i].Add(want.XY[i].Mul(-1)).Length(); d > 1e-4 {
			t.Errorf("xy[%d] off by %v", i, d)
		}
	}
	if d := maxAbsDiff(got.Cov3D, want.Cov3D); d > 1e-5 {
		t.Errorf("cov3d max diff = %v", d)
	}
}

func TestUnpackProjectionSkipsCulled(t *testing.T) {
	in, _, _ := testInputs(2)
	p := gsplat.NewProjection(in, 2)
	b := make([]byte, 4*projectStride*2)
	putF32(b, 0, 10)
	putF32(b, 1, 10)
	putF32(b, 6, 0)
	// second Gaussian lies entirely off screen
	putF32(b, projectStride, -500)
	putF32(b, projectStride+1, -500)
	putF32(b, projectStride+6, 3)
	unpackProjection(b, p)
	if p.Visible() != 0 {
		t.Errorf("visible = %d, want 0", p.Visible())
	}
}

func TestShadeParamsLayout(t *testing.T) {
	_, in, _ := testInputs(3)
	b := shadeParams(in)
	if got := getF32(b, 2); got != -4 {
		t.Errorf("camera z = %v, want -4", got)
	}
	if got := getU32(b, 4); got != 3 {
		t.Errorf("gaussians = %d, want 3", got)
	}
	if got := getU32(b, 5); got != 3 {
		t.Errorf("rest bases = %d, want 3", got)
	}
	if got := getU32(b, 6); got != 1 {
		t.Errorf("active degree = %d, want 1", got)
	}
}

func TestPackBins(t *testing.T) {
	bins := &gsplat.Bins{
		Sorted: []gsplat.Intersection{{Gaussian: 4}, {Gaussian: 1}, {Gaussian: 7}},
		Ranges: []gsplat.TileRange{{Start: 0, End: 2}, {Start: 2, End: 2}, {Start: 2, End: 3}},
	}
	sorted := packSorted(bins)
	for k, want := range []uint32{4, 1, 7} {
		if got := getU32(sorted, k); got != want {
			t.Errorf("sorted[%d] = %d, want %d", k, got, want)
		}
	}
	ranges := packRanges(bins)
	for k, want := range []uint32{0, 2, 2, 2, 2, 3} {
		if got := getU32(ranges, k); got != want {
			t.Errorf("ranges word %d = %d, want %d", k, got, want)
		}
	}
}

func TestPackSplats(t *testing.T) {
	in, _, opacities := testInputs(2)
	p := gsplat.NewProjection(in, 2)
	p.Set(1, gsplat.Projected{XY: geom.Vec2{X: 3, Y: 4}, Conic: geom.V3(0.5, 0.1, 0.25), Radius: 2, TilesHit: 1})
	r := &gsplat.RasterInput{
		Proj:      p,
		Colors:    []geom.Vec3{geom.V3(1, 0, 0), geom.V3(0.25, 0.5, 0.75)},
		Opacities: opacities,
	}
	b := packSplats(r)
	want := []float64{3, 4, 0.5, 0.1, 0.25, opacities[1], 0.25, 0.5, 0.75}
	for k, w := range want {
		if got := getF32(b, splatStride+k); math.Abs(got-w) > 1e-6 {
			t.Errorf("splat 1 word %d = %v, want %v", k, got, w)
		}
	}
}

func TestUnpackRaster(t *testing.T) {
	in, _, _ := testInputs(1)
	p := gsplat.NewProjection(in, 1)
	ri := &gsplat.RasterInput{Proj: p, Colors: make([]geom.Vec3, 1), Opacities: []float64{0.5}}
	s := gsplat.NewRasterState(ri, gsplat.BinGaussians(p, nil))
	n := len(s.FinalT)

	color := make([]byte, 12*n)
	finalT := make([]byte, 4*n)
	finalEnd := make([]byte, 4*n)
	putF32(color, 5, 0.75)
	putF32(finalT, 1, 0.5)
	putU32(finalEnd, 1, 9)
	unpackRaster(color, finalT, finalEnd, s)

	if s.Color[5] != 0.75 {
		t.Errorf("color[5] = %v, want 0.75", s.Color[5])
	}
	if s.FinalT[1] != 0.5 || s.FinalEnd[1] != 9 {
		t.Errorf("pixel 1 = (%v, %d), want (0.5, 9)", s.FinalT[1], s.FinalEnd[1])
	}
}
