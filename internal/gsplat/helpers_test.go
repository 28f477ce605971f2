package gsplat

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/splat/internal/geom"
)

// testCamera returns a camera at the origin looking down +z with the
// principal point at the image centre and fx = fy = focal.
func testCamera(w, h int, focal float64) Camera {
	view := geom.Identity4()
	cx, cy := float64(w)/2, float64(h)/2
	return Camera{
		View:   view,
		Proj:   ProjectionMatrix(focal, focal, cx, cy, w, h, 0.01, 100).Mul(view),
		Fx:     focal,
		Fy:     focal,
		Cx:     cx,
		Cy:     cy,
		Width:  w,
		Height: h,
	}
}

// gaussianParams is a small index-aligned parameter set used by tests.
type gaussianParams struct {
	means, logScales, quats, dc, rawOpacity []float64
}

func (g *gaussianParams) add(mean geom.Vec3, logScale geom.Vec3, q geom.Quat, rgb geom.Vec3, opacity float64) {
	g.means = append(g.means, mean.X, mean.Y, mean.Z)
	g.logScales = append(g.logScales, logScale.X, logScale.Y, logScale.Z)
	g.quats = append(g.quats, q.W, q.X, q.Y, q.Z)
	g.dc = append(g.dc, RGB2SH(rgb.X), RGB2SH(rgb.Y), RGB2SH(rgb.Z))
	g.rawOpacity = append(g.rawOpacity, math.Log(opacity/(1-opacity)))
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// renderLoss runs the forward chain at SH degree 0 and returns Σ w·image,
// plus the intermediate states.
func renderLoss(t *testing.T, b Backend, cam Camera, g *gaussianParams, bg geom.Vec3, w []float64) (float64, *Projection, *Shading, *RasterState) {
	t.Helper()
	pin := &ProjectInput{
		Means: g.means, LogScales: g.logScales, Quats: g.quats,
		GlobalScale: 1, ClipThresh: DefaultClipThresh, Camera: cam,
	}
	proj, err := b.Project(pin)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	sh, err := b.Shade(&ShadeInput{DC: g.dc, Rest: nil, Means: g.means, CameraPos: cam.Position})
	if err != nil {
		t.Fatalf("Shade: %v", err)
	}
	op := make([]float64, len(g.rawOpacity))
	for i, r := range g.rawOpacity {
		op[i] = sigmoid(r)
	}
	st, err := b.Rasterize(&RasterInput{Proj: proj, Colors: sh.Colors, Opacities: op, Background: bg})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	loss := 0.0
	for i, v := range st.Color {
		loss += w[i] * v
	}
	return loss, proj, sh, st
}

func randomWeights(n int, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	w := make([]float64, n)
	for i := range w {
		w[i] = r.Float64()*2 - 1
	}
	return w
}

// closeRel reports whether got matches want within a relative tolerance.
func closeRel(got, want, rel, abs float64) bool {
	return math.Abs(got-want) <= abs+rel*math.Max(math.Abs(got), math.Abs(want))
}

// centralDiff returns (f(x+h) - f(x-h)) / 2h for the element *x.
func centralDiff(x *float64, h float64, f func() float64) float64 {
	orig := *x
	*x = orig + h
	plus := f()
	*x = orig - h
	minus := f()
	*x = orig
	return (plus - minus) / (2 * h)
}
