package gsplat

import (
	"errors"
	"fmt"

	"github.com/gogpu/splat/internal/geom"
)

// MaxSHDegree is the highest supported spherical-harmonic degree.
const MaxSHDegree = 4

// ErrInvalidDegree is returned for SH degrees outside [0, MaxSHDegree].
var ErrInvalidDegree = errors.New("gsplat: invalid SH degree")

// Real SH normalization constants, bands 0 to 4.
const (
	shC0 = 0.28209479177387814
	shC1 = 0.4886025119029199
)

var (
	shC2 = [5]float64{1.0925484305920792, -1.0925484305920792, 0.31539156525252005, -1.0925484305920792, 0.5462742152960396}
	shC3 = [7]float64{-0.5900435899266435, 2.890611442640554, -0.4570457994644658, 0.3731763325901154, -0.4570457994644658, 1.445305721320277, -0.5900435899266435}
	shC4 = [9]float64{2.5033429417967046, -1.7701307697799304, 0.9461746957575601, -0.6690465435572892, 0.10578554691520431, -0.6690465435572892, 0.47308734787878004, -1.7701307697799304, 0.6258357354491761}
)

// NumBases returns the number of SH basis functions up to degree d: (d+1)².
func NumBases(degree int) int {
	return (degree + 1) * (degree + 1)
}

// CheckDegree validates an SH degree.
func CheckDegree(degree int) error {
	if degree < 0 || degree > MaxSHDegree {
		return fmt.Errorf("%w: %d (supported 0..%d)", ErrInvalidDegree, degree, MaxSHDegree)
	}
	return nil
}

// RGB2SH converts a color channel in [0,1] to its degree-0 coefficient.
func RGB2SH(c float64) float64 { return (c - 0.5) / shC0 }

// SH2RGB converts a degree-0 coefficient back to a color channel.
func SH2RGB(sh float64) float64 { return sh*shC0 + 0.5 }

// EvalBasis writes the first NumBases(degree) real SH basis values for the
// unit direction d into out.
func EvalBasis(d geom.Vec3, degree int, out []float64) {
	out[0] = shC0
	if degree < 1 {
		return
	}
	x, y, z := d.X, d.Y, d.Z
	out[1] = -shC1 * y
	out[2] = shC1 * z
	out[3] = -shC1 * x
	if degree < 2 {
		return
	}
	xx, yy, zz := x*x, y*y, z*z
	xy, yz, xz := x*y, y*z, x*z
	out[4] = shC2[0] * xy
	out[5] = shC2[1] * yz
	out[6] = shC2[2] * (2*zz - xx - yy)
	out[7] = shC2[3] * xz
	out[8] = shC2[4] * (xx - yy)
	if degree < 3 {
		return
	}
	out[9] = shC3[0] * y * (3*xx - yy)
	out[10] = shC3[1] * xy * z
	out[11] = shC3[2] * y * (4*zz - xx - yy)
	out[12] = shC3[3] * z * (2*zz - 3*xx - 3*yy)
	out[13] = shC3[4] * x * (4*zz - xx - yy)
	out[14] = shC3[5] * z * (xx - yy)
	out[15] = shC3[6] * x * (xx - 3*yy)
	if degree < 4 {
		return
	}
	out[16] = shC4[0] * xy * (xx - yy)
	out[17] = shC4[1] * yz * (3*xx - yy)
	out[18] = shC4[2] * xy * (7*zz - 1)
	out[19] = shC4[3] * yz * (7*zz - 3)
	out[20] = shC4[4] * (zz*(35*zz-30) + 3)
	out[21] = shC4[5] * xz * (7*zz - 3)
	out[22] = shC4[6] * (xx - yy) * (7*zz - 1)
	out[23] = shC4[7] * xz * (xx - 3*yy)
	out[24] = shC4[8] * (xx*(xx-3*yy) - yy*(3*xx-yy))
}

// ShadeInput is the input of the SH color stage.
type ShadeInput struct {
	// Degree is the storage degree; Rest holds NumBases(Degree)-1 bases.
	Degree int

	// ActiveDegree is the number of bands evaluated this step (≤ Degree).
	ActiveDegree int

	DC   []float64
	Rest []float64

	// Means and CameraPos define the per-Gaussian view direction.
	Means     []float64
	CameraPos geom.Vec3
}

// Len returns the number of Gaussians.
func (in *ShadeInput) Len() int { return len(in.DC) / 3 }

// Validate checks degrees and buffer strides.
func (in *ShadeInput) Validate() error {
	if err := CheckDegree(in.Degree); err != nil {
		return err
	}
	if in.ActiveDegree < 0 || in.ActiveDegree > in.Degree {
		return fmt.Errorf("%w: active degree %d exceeds %d", ErrInvalidDegree, in.ActiveDegree, in.Degree)
	}
	n := in.Len()
	rest := NumBases(in.Degree) - 1
	if len(in.DC) != 3*n || len(in.Rest) != 3*rest*n || len(in.Means) != 3*n {
		return fmt.Errorf("%w: shading dc=%d rest=%d means=%d", ErrLengthMismatch,
			len(in.DC), len(in.Rest), len(in.Means))
	}
	return nil
}

// restStride returns the Rest length per Gaussian.
func (in *ShadeInput) restStride() int { return 3 * (NumBases(in.Degree) - 1) }

// viewDir returns the unit direction from the camera to Gaussian i.
func (in *ShadeInput) viewDir(i int) geom.Vec3 {
	m := geom.V3(in.Means[3*i], in.Means[3*i+1], in.Means[3*i+2])
	return m.Sub(in.CameraPos).Normalize()
}

// Shading is the SH stage output and its saved state.
type Shading struct {
	Input *ShadeInput

	// Colors are the clamped per-Gaussian RGB values. A channel strictly
	// inside (0,1) was not clamped and passes gradient.
	Colors []geom.Vec3
}

// ShadeGrads holds coefficient gradients in the input layout.
type ShadeGrads struct {
	DC   []float64
	Rest []float64
}

// ShadeOne evaluates the clamped color of Gaussian i. basis must hold at
// least NumBases(in.ActiveDegree) values.
func ShadeOne(in *ShadeInput, i int, basis []float64) geom.Vec3 {
	nb := NumBases(in.ActiveDegree)
	EvalBasis(in.viewDir(i), in.ActiveDegree, basis)

	var raw [3]float64
	for c := range 3 {
		raw[c] = basis[0] * in.DC[3*i+c]
	}
	stride := in.restStride()
	base := i * stride
	for k := 1; k < nb; k++ {
		off := base + 3*(k-1)
		for c := range 3 {
			raw[c] += basis[k] * in.Rest[off+c]
		}
	}

	return geom.V3(clamp01(raw[0]+0.5), clamp01(raw[1]+0.5), clamp01(raw[2]+0.5))
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// ShadeBackwardOne accumulates coefficient gradients of Gaussian i given its
// forward color and the upstream color gradient v.
func ShadeBackwardOne(in *ShadeInput, i int, color, v geom.Vec3, basis []float64, g *ShadeGrads) {
	nb := NumBases(in.ActiveDegree)
	EvalBasis(in.viewDir(i), in.ActiveDegree, basis)

	var vc [3]float64
	for c := range 3 {
		if col := color.At(c); col > 0 && col < 1 {
			vc[c] = v.At(c)
		}
	}
	for c := range 3 {
		g.DC[3*i+c] += basis[0] * vc[c]
	}
	stride := in.restStride()
	base := i * stride
	for k := 1; k < nb; k++ {
		off := base + 3*(k-1)
		for c := range 3 {
			g.Rest[off+c] += basis[k] * vc[c]
		}
	}
}
