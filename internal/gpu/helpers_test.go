package gpu

import (
	"math"
	"math/rand/v2"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/gsplat"
)

// testInputs returns n random Gaussians in front of a 64x48 camera placed
// at z = -4, with degree-1 SH and opacities in (0.3, 0.9).
func testInputs(n int) (*gsplat.ProjectInput, *gsplat.ShadeInput, []float64) {
	view := geom.Affine(geom.Identity3(), geom.V3(0, 0, 4))
	cam := gsplat.Camera{
		View: view, Fx: 40, Fy: 40, Cx: 32, Cy: 24, Width: 64, Height: 48,
		Position: geom.V3(0, 0, -4),
	}
	cam.Proj = gsplat.ProjectionMatrix(cam.Fx, cam.Fy, cam.Cx, cam.Cy, cam.Width, cam.Height, 0.01, 100).Mul(view)

	proj := &gsplat.ProjectInput{GlobalScale: 1, ClipThresh: gsplat.DefaultClipThresh, Camera: cam}
	shade := &gsplat.ShadeInput{Degree: 1, ActiveDegree: 1, CameraPos: cam.Position}
	opacities := make([]float64, n)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range n {
		proj.Means = append(proj.Means, 2*rng.Float64()-1, 2*rng.Float64()-1, 2*rng.Float64()-1)
		for range 3 {
			proj.LogScales = append(proj.LogScales, math.Log(0.05+0.1*rng.Float64()))
			shade.DC = append(shade.DC, gsplat.RGB2SH(rng.Float64()))
		}
		for range 9 {
			shade.Rest = append(shade.Rest, 0.2*rng.NormFloat64())
		}
		q := geom.RandomQuat(rng.Float64(), rng.Float64(), rng.Float64())
		proj.Quats = append(proj.Quats, q.W, q.X, q.Y, q.Z)
		opacities[i] = 0.3 + 0.6*rng.Float64()
	}
	shade.Means = proj.Means
	return proj, shade, opacities
}

// encodeFootprints writes p in the layout produced by project.wgsl.
func encodeFootprints(p *gsplat.Projection) []byte {
	b := make([]byte, 4*projectStride*p.Len())
	for i := range p.Len() {
		w := i * projectStride
		if p.Radii[i] <= 0 {
			continue
		}
		putF32(b, w, p.XY[i].X)
		putF32(b, w+1, p.XY[i].Y)
		putF32(b, w+2, p.Depths[i])
		putF32(b, w+3, p.Conics[i].X)
		putF32(b, w+4, p.Conics[i].Y)
		putF32(b, w+5, p.Conics[i].Z)
		putF32(b, w+6, float64(p.Radii[i]))
		putF32(b, w+7, float64(p.TilesHit[i]))
		for k := range 6 {
			putF32(b, w+8+k, p.Cov3D[6*i+k])
		}
	}
	return b
}

func maxAbsDiff(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		d = max(d, math.Abs(a[i]-b[i]))
	}
	return d
}
