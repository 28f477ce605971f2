package gsplat

import (
	"math"
	"testing"

	"github.com/gogpu/splat/internal/geom"
)

// backwardChain runs the three backward stages and returns gradients on the
// raw parameters (raw opacity chained through the sigmoid).
func backwardChain(t *testing.T, b Backend, g *gaussianParams, proj *Projection, sh *Shading, st *RasterState, w []float64) (*ProjectGrads, *ShadeGrads, []float64) {
	t.Helper()
	rg, err := b.RasterizeBackward(st, w, nil)
	if err != nil {
		t.Fatalf("RasterizeBackward: %v", err)
	}
	sg, err := b.ShadeBackward(sh, rg.Colors)
	if err != nil {
		t.Fatalf("ShadeBackward: %v", err)
	}
	pg, err := b.ProjectBackward(proj, &ProjectUpstream{XY: rg.XY, Conics: rg.Conics})
	if err != nil {
		t.Fatalf("ProjectBackward: %v", err)
	}
	vRaw := make([]float64, len(g.rawOpacity))
	for i, r := range g.rawOpacity {
		s := sigmoid(r)
		vRaw[i] = rg.Opacities[i] * s * (1 - s)
	}
	return pg, sg, vRaw
}

func TestPipeline_FiniteDifference(t *testing.T) {
	b := NewCPU(3)
	defer b.Close()

	// A single-tile image keeps tile membership fixed under perturbation, and
	// footprints wider than the image keep every pixel above the alpha cutoff.
	cam := testCamera(16, 16, 16)
	var g gaussianParams
	g.add(geom.V3(0.1, -0.05, 3), geom.V3(math.Log(2.0), math.Log(1.6), math.Log(1.8)),
		geom.Quat{W: 0.9, X: 0.1, Y: -0.2, Z: 0.3}, geom.V3(0.8, 0.3, 0.2), 0.5)
	g.add(geom.V3(-0.2, 0.15, 3.5), geom.V3(math.Log(1.8), math.Log(2.2), math.Log(1.5)),
		geom.Quat{W: 0.7, X: -0.3, Y: 0.1, Z: 0.2}, geom.V3(0.1, 0.6, 0.7), 0.45)
	g.add(geom.V3(0.05, 0.1, 4), geom.V3(math.Log(2.4), math.Log(2.0), math.Log(2.2)),
		geom.Quat{W: 1}, geom.V3(0.4, 0.4, 0.9), 0.6)
	bg := geom.V3(0.613, 0.0101, 0.3984)
	w := randomWeights(3*16*16, 42)

	_, proj, sh, st := renderLoss(t, b, cam, &g, bg, w)
	if proj.Visible() != 3 {
		t.Fatalf("visible = %d, want 3", proj.Visible())
	}
	pg, sg, vRaw := backwardChain(t, b, &g, proj, sh, st, w)

	loss := func() float64 {
		l, _, _, _ := renderLoss(t, b, cam, &g, bg, w)
		return l
	}
	const h = 1e-6
	check := func(name string, got float64, x *float64) {
		t.Helper()
		want := centralDiff(x, h, loss)
		if !closeRel(got, want, 1e-4, 1e-7) {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	for i := range 3 {
		for k := range 3 {
			check("mean", pg.Means[3*i+k], &g.means[3*i+k])
			check("logScale", pg.LogScales[3*i+k], &g.logScales[3*i+k])
			check("dc", sg.DC[3*i+k], &g.dc[3*i+k])
		}
		check("quat.w", pg.Quats[4*i], &g.quats[4*i])
		check("quat.y", pg.Quats[4*i+2], &g.quats[4*i+2])
		check("rawOpacity", vRaw[i], &g.rawOpacity[i])
	}
}

func TestPipeline_AllInvisibleRendersBackground(t *testing.T) {
	b := NewCPU(2)
	defer b.Close()

	cam := testCamera(24, 24, 24)
	var g gaussianParams
	g.add(geom.V3(0, 0, -3), geom.V3(0, 0, 0), geom.Quat{W: 1}, geom.V3(1, 0, 0), 0.9)
	bg := geom.V3(0.2, 0.3, 0.4)
	w := randomWeights(3*24*24, 5)

	_, proj, sh, st := renderLoss(t, b, cam, &g, bg, w)
	if proj.Visible() != 0 {
		t.Fatalf("visible = %d, want 0", proj.Visible())
	}
	for y := range 24 {
		for x := range 24 {
			if st.Pixel(x, y) != bg {
				t.Fatalf("pixel (%d,%d) = %v, want background", x, y, st.Pixel(x, y))
			}
		}
	}
	pg, sg, vRaw := backwardChain(t, b, &g, proj, sh, st, w)
	for _, v := range append(append(append([]float64{}, pg.Means...), sg.DC...), vRaw...) {
		if v != 0 {
			t.Fatalf("invisible Gaussian got gradient %v, want 0", v)
		}
	}
}
