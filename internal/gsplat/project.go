package gsplat

import (
	"fmt"
	"math"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/parallel"
)

// ProjectInput is the input of the projection stage.
type ProjectInput struct {
	Means     []float64
	LogScales []float64
	Quats     []float64

	// GlobalScale multiplies every activated scale.
	GlobalScale float64

	// ClipThresh rejects Gaussians at or in front of this camera depth.
	ClipThresh float64

	Camera Camera
}

// Len returns the number of Gaussians.
func (in *ProjectInput) Len() int { return len(in.Means) / 3 }

// Validate checks that the buffers are index-aligned.
func (in *ProjectInput) Validate() error {
	n := in.Len()
	if len(in.Means) != 3*n || len(in.LogScales) != 3*n || len(in.Quats) != 4*n {
		return fmt.Errorf("%w: means=%d logScales=%d quats=%d", ErrLengthMismatch,
			len(in.Means), len(in.LogScales), len(in.Quats))
	}
	if in.Camera.Width <= 0 || in.Camera.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidImageSize, in.Camera.Width, in.Camera.Height)
	}
	return nil
}

func (in *ProjectInput) mean(i int) geom.Vec3 {
	return geom.V3(in.Means[3*i], in.Means[3*i+1], in.Means[3*i+2])
}

func (in *ProjectInput) scale(i int) geom.Vec3 {
	ls := geom.V3(in.LogScales[3*i], in.LogScales[3*i+1], in.LogScales[3*i+2])
	return ls.Exp().Mul(in.GlobalScale)
}

func (in *ProjectInput) quat(i int) geom.Quat {
	return geom.Quat{W: in.Quats[4*i], X: in.Quats[4*i+1], Y: in.Quats[4*i+2], Z: in.Quats[4*i+3]}
}

// Projected is the screen-space footprint of one Gaussian.
type Projected struct {
	XY       geom.Vec2
	Depth    float64
	Conic    geom.Vec3
	Radius   int
	TilesHit int
	Cov3D    [6]float64
}

// Projection is the projection stage output and its saved state.
// Invisible Gaussians have Radii[i] == 0 and TilesHit[i] == 0.
type Projection struct {
	Input *ProjectInput
	Grid  parallel.TileGrid

	XY       []geom.Vec2
	Depths   []float64
	Conics   []geom.Vec3
	Radii    []int
	TilesHit []int

	// Cov3D holds the upper triangle (xx, xy, xz, yy, yz, zz) per Gaussian.
	Cov3D []float64
}

// NewProjection allocates an all-invisible projection for n Gaussians.
func NewProjection(in *ProjectInput, n int) *Projection {
	return &Projection{
		Input:    in,
		Grid:     in.Camera.Grid(),
		XY:       make([]geom.Vec2, n),
		Depths:   make([]float64, n),
		Conics:   make([]geom.Vec3, n),
		Radii:    make([]int, n),
		TilesHit: make([]int, n),
		Cov3D:    make([]float64, 6*n),
	}
}

// Set stores the footprint of Gaussian i.
func (p *Projection) Set(i int, g Projected) {
	p.XY[i] = g.XY
	p.Depths[i] = g.Depth
	p.Conics[i] = g.Conic
	p.Radii[i] = g.Radius
	p.TilesHit[i] = g.TilesHit
	copy(p.Cov3D[6*i:6*i+6], g.Cov3D[:])
}

// Len returns the number of Gaussians.
func (p *Projection) Len() int { return len(p.Radii) }

// Visible returns the number of Gaussians with a non-zero footprint.
func (p *Projection) Visible() int {
	n := 0
	for _, r := range p.Radii {
		if r > 0 {
			n++
		}
	}
	return n
}

// ProjectUpstream carries the gradients flowing into the projection outputs.
// Depths may be nil.
type ProjectUpstream struct {
	XY     []geom.Vec2
	Depths []float64
	Conics []geom.Vec3
}

// ProjectGrads holds gradients in the input layout.
type ProjectGrads struct {
	Means     []float64
	LogScales []float64
	Quats     []float64
}

// mat23 is a row-major 2x3 matrix.
type mat23 [2][3]float64

// jacobian returns the perspective Jacobian at camera-space point t.
func jacobian(t geom.Vec3, fx, fy float64) mat23 {
	iz := 1 / t.Z
	iz2 := iz * iz
	return mat23{
		{fx * iz, 0, -fx * t.X * iz2},
		{0, fy * iz, -fy * t.Y * iz2},
	}
}

func (a mat23) mul3(b geom.Mat3) mat23 {
	var r mat23
	for i := range 2 {
		for j := range 3 {
			r[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return r
}

// sandwich returns the symmetric 2x2 product T Σ Tᵀ as (a, b, c).
func (a mat23) sandwich(s geom.Mat3) (float64, float64, float64) {
	ts := a.mul3(s)
	xx := ts[0][0]*a[0][0] + ts[0][1]*a[0][1] + ts[0][2]*a[0][2]
	xy := ts[0][0]*a[1][0] + ts[0][1]*a[1][1] + ts[0][2]*a[1][2]
	yy := ts[1][0]*a[1][0] + ts[1][1]*a[1][1] + ts[1][2]*a[1][2]
	return xx, xy, yy
}

// covariance3D returns M Mᵀ with M = R S, plus R and the activated scale.
func covariance3D(scale geom.Vec3, q geom.Quat) (cov, rot geom.Mat3) {
	rot = q.Rotation()
	m := rot.Mul(geom.Diag3(scale))
	return m.Mul(m.Transpose()), rot
}

// conicFromCov inverts a 2D covariance with a floored determinant and returns
// the conic (A, B, C), the radius of the 3-sigma disc, and the raw determinant.
func conicFromCov(a, b, c float64) (conic geom.Vec3, radius int, det float64) {
	det = a*c - b*b
	d := max(det, DetFloor)
	conic = geom.V3(c/d, -b/d, a/d)
	mid := 0.5 * (a + c)
	lambda := mid + math.Sqrt(max(0.1, mid*mid-det))
	radius = int(math.Ceil(3 * math.Sqrt(lambda)))
	return conic, radius, det
}

// TileRect returns the half-open tile rectangle touched by a disc of the
// given radius around xy, clamped to the grid.
func TileRect(xy geom.Vec2, radius int, grid parallel.TileGrid) (minX, minY, maxX, maxY int) {
	r := float64(radius)
	minX = clampTile((xy.X-r)/TileSize, grid.TilesX())
	minY = clampTile((xy.Y-r)/TileSize, grid.TilesY())
	maxX = clampTile((xy.X+r+TileSize-1)/TileSize, grid.TilesX())
	maxY = clampTile((xy.Y+r+TileSize-1)/TileSize, grid.TilesY())
	return minX, minY, maxX, maxY
}

func clampTile(v float64, n int) int {
	switch {
	case !(v > 0):
		return 0
	case v >= float64(n):
		return n
	default:
		return int(v)
	}
}

// inCone reports whether camera-space point t passes the near clip and the
// widened view cone.
func inCone(t geom.Vec3, cam *Camera, clip float64) bool {
	if t.Z <= clip {
		return false
	}
	limX := FrustumMargin * 0.5 * float64(cam.Width) / cam.Fx
	limY := FrustumMargin * 0.5 * float64(cam.Height) / cam.Fy
	return math.Abs(t.X/t.Z) <= limX && math.Abs(t.Y/t.Z) <= limY
}

// screenXY projects a world point through the full projection matrix.
func screenXY(cam *Camera, p geom.Vec3) geom.Vec2 {
	h := cam.Proj.MulPoint(p)
	rw := 1 / (h.W + homogeneousEps)
	return geom.Vec2{
		X: NDCToPixel(h.X*rw, cam.Width),
		Y: NDCToPixel(h.Y*rw, cam.Height),
	}
}

// ProjectOne computes the footprint of Gaussian i. ok is false when the
// Gaussian is culled or touches no tile.
func ProjectOne(in *ProjectInput, grid parallel.TileGrid, i int) (g Projected, ok bool) {
	cam := &in.Camera
	mean := in.mean(i)
	t := cam.View.TransformPoint(mean)
	if !inCone(t, cam, in.ClipThresh) {
		return Projected{}, false
	}

	cov, _ := covariance3D(in.scale(i), in.quat(i).Normalize())
	g.Cov3D = [6]float64{cov[0][0], cov[0][1], cov[0][2], cov[1][1], cov[1][2], cov[2][2]}

	tm := jacobian(t, cam.Fx, cam.Fy).mul3(cam.View.Rotation())
	a, b, c := tm.sandwich(cov)
	a += LowPass
	c += LowPass

	g.Conic, g.Radius, _ = conicFromCov(a, b, c)
	g.XY = screenXY(cam, mean)
	g.Depth = t.Z

	minX, minY, maxX, maxY := TileRect(g.XY, g.Radius, grid)
	g.TilesHit = (maxX - minX) * (maxY - minY)
	if g.TilesHit <= 0 || g.Radius <= 0 {
		return Projected{}, false
	}
	return g, true
}

// ProjectBackwardOne maps the gradients on the footprint of visible Gaussian
// i back to its mean, log-scale and raw quaternion.
func ProjectBackwardOne(in *ProjectInput, i int, vXY geom.Vec2, vDepth float64, vConic geom.Vec3) (vMean, vLogScale geom.Vec3, vQuat geom.Quat) {
	cam := &in.Camera
	mean := in.mean(i)
	view := cam.View.Rotation()
	t := cam.View.TransformPoint(mean)

	scale := in.scale(i)
	qn := in.quat(i).Normalize()
	cov, rot := covariance3D(scale, qn)

	j := jacobian(t, cam.Fx, cam.Fy)
	tm := j.mul3(view)
	a, b, c := tm.sandwich(cov)
	a += LowPass
	c += LowPass

	// conic -> cov2d
	var va, vb, vc float64
	det := a*c - b*b
	if det > DetFloor {
		x := [2][2]float64{{c / det, -b / det}, {-b / det, a / det}}
		g := [2][2]float64{{vConic.X, 0.5 * vConic.Y}, {0.5 * vConic.Y, vConic.Z}}
		s := mul22(mul22(x, g), x)
		va, vb, vc = -s[0][0], -(s[0][1] + s[1][0]), -s[1][1]
	} else {
		va, vb, vc = vConic.Z/DetFloor, -vConic.Y/DetFloor, vConic.X/DetFloor
	}

	// cov2d -> (cov3d, T)
	v2 := [2][2]float64{{va, 0.5 * vb}, {0.5 * vb, vc}}
	var vCov geom.Mat3
	for p := range 3 {
		for q := range 3 {
			vCov[p][q] = tm[0][p]*(v2[0][0]*tm[0][q]+v2[0][1]*tm[1][q]) +
				tm[1][p]*(v2[1][0]*tm[0][q]+v2[1][1]*tm[1][q])
		}
	}
	ts := tm.mul3(cov)
	var vT mat23
	for r := range 2 {
		for q := range 3 {
			vT[r][q] = 2 * (v2[r][0]*ts[0][q] + v2[r][1]*ts[1][q])
		}
	}

	// T = J W
	vJ := vT.mul3(view.Transpose())

	iz := 1 / t.Z
	iz2 := iz * iz
	iz3 := iz2 * iz
	vt := geom.Vec3{
		X: -cam.Fx * iz2 * vJ[0][2],
		Y: -cam.Fy * iz2 * vJ[1][2],
		Z: -cam.Fx*iz2*vJ[0][0] + 2*cam.Fx*t.X*iz3*vJ[0][2] -
			cam.Fy*iz2*vJ[1][1] + 2*cam.Fy*t.Y*iz3*vJ[1][2],
	}
	vt.Z += vDepth
	vMean = view.Transpose().MulVec(vt)

	// screen position through the projection matrix
	h := cam.Proj.MulPoint(mean)
	rw := 1 / (h.W + homogeneousEps)
	vnx := 0.5 * float64(cam.Width) * vXY.X
	vny := 0.5 * float64(cam.Height) * vXY.Y
	vh := geom.Vec4{X: vnx * rw, Y: vny * rw, W: -(vnx*h.X + vny*h.Y) * rw * rw}
	for k := range 3 {
		d := cam.Proj[0][k]*vh.X + cam.Proj[1][k]*vh.Y + cam.Proj[3][k]*vh.W
		switch k {
		case 0:
			vMean.X += d
		case 1:
			vMean.Y += d
		default:
			vMean.Z += d
		}
	}

	// cov3d = M Mᵀ, M = R S
	m := rot.Mul(geom.Diag3(scale))
	vM := vCov.Add(vCov.Transpose()).Mul(m)
	var vR geom.Mat3
	var vs [3]float64
	sv := [3]float64{scale.X, scale.Y, scale.Z}
	for r := range 3 {
		for q := range 3 {
			vR[r][q] = vM[r][q] * sv[q]
			vs[q] += vM[r][q] * rot[r][q]
		}
	}
	vLogScale = geom.V3(vs[0]*sv[0], vs[1]*sv[1], vs[2]*sv[2])
	vQuat = in.quat(i).NormalizeVJP(qn.RotationVJP(vR))
	return vMean, vLogScale, vQuat
}

func mul22(a, b [2][2]float64) [2][2]float64 {
	return [2][2]float64{
		{a[0][0]*b[0][0] + a[0][1]*b[1][0], a[0][0]*b[0][1] + a[0][1]*b[1][1]},
		{a[1][0]*b[0][0] + a[1][1]*b[1][0], a[1][0]*b[0][1] + a[1][1]*b[1][1]},
	}
}
