package splat

import (
	"fmt"
	"math"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/gsplat"
)

// Group names one learned tensor of a GaussianSet.
type Group int

const (
	GroupMeans Group = iota
	GroupLogScales
	GroupQuats
	GroupSHDC
	GroupSHRest
	GroupOpacity

	numGroups
)

var groupNames = [numGroups]string{"means", "log_scales", "quats", "sh_dc", "sh_rest", "opacity"}

// String returns the group's snake_case name.
func (g Group) String() string {
	if g < 0 || g >= numGroups {
		return fmt.Sprintf("Group(%d)", int(g))
	}
	return groupNames[g]
}

// ShapeKind tags the per-Gaussian element type of a tensor group.
type ShapeKind int

const (
	ShapeScalar ShapeKind = iota
	ShapeVec3
	ShapeVec4
	ShapeVec3List
)

// TensorShape describes one row of a tensor group: a scalar, a 3- or
// 4-vector, or a list of Len 3-vectors.
type TensorShape struct {
	Kind ShapeKind
	Len  int
}

// Width returns the number of float64 values per Gaussian.
func (s TensorShape) Width() int {
	switch s.Kind {
	case ShapeScalar:
		return 1
	case ShapeVec3:
		return 3
	case ShapeVec4:
		return 4
	default:
		return 3 * s.Len
	}
}

// GaussianSet stores N Gaussians as index-aligned flat arrays. Entry i of
// every array describes the same Gaussian.
type GaussianSet struct {
	// Degree is the SH storage degree; SHRest holds NumBases(Degree)-1 bases.
	Degree int

	Means      []float64 // 3 per Gaussian
	LogScales  []float64 // 3 per Gaussian
	Quats      []float64 // 4 per Gaussian (w, x, y, z)
	SHDC       []float64 // 3 per Gaussian
	SHRest     []float64 // 3*(B-1) per Gaussian
	RawOpacity []float64 // 1 per Gaussian, pre-sigmoid
}

// NewGaussianSet allocates a zeroed set of n Gaussians with identity
// rotations.
func NewGaussianSet(n, degree int) (*GaussianSet, error) {
	if err := gsplat.CheckDegree(degree); err != nil {
		return nil, err
	}
	s := &GaussianSet{Degree: degree}
	for g := range numGroups {
		*s.group(g) = make([]float64, n*s.Shape(g).Width())
	}
	for i := range n {
		s.Quats[4*i] = 1
	}
	return s, nil
}

// Len returns the number of Gaussians.
func (s *GaussianSet) Len() int { return len(s.RawOpacity) }

// Shape returns the row shape of group g.
func (s *GaussianSet) Shape(g Group) TensorShape {
	switch g {
	case GroupMeans, GroupLogScales, GroupSHDC:
		return TensorShape{Kind: ShapeVec3}
	case GroupQuats:
		return TensorShape{Kind: ShapeVec4}
	case GroupSHRest:
		return TensorShape{Kind: ShapeVec3List, Len: gsplat.NumBases(s.Degree) - 1}
	default:
		return TensorShape{Kind: ShapeScalar}
	}
}

// Tensor returns the flat storage of group g.
func (s *GaussianSet) Tensor(g Group) []float64 { return *s.group(g) }

func (s *GaussianSet) group(g Group) *[]float64 {
	switch g {
	case GroupMeans:
		return &s.Means
	case GroupLogScales:
		return &s.LogScales
	case GroupQuats:
		return &s.Quats
	case GroupSHDC:
		return &s.SHDC
	case GroupSHRest:
		return &s.SHRest
	case GroupOpacity:
		return &s.RawOpacity
	}
	panic(fmt.Sprintf("splat: unknown group %d", int(g)))
}

// Validate reports whether every group holds Len() rows.
func (s *GaussianSet) Validate() error {
	if err := gsplat.CheckDegree(s.Degree); err != nil {
		return err
	}
	n := s.Len()
	for g := range numGroups {
		if got, want := len(s.Tensor(g)), n*s.Shape(g).Width(); got != want {
			return fmt.Errorf("%w: %s has %d values, want %d for %d Gaussians", ErrLengthMismatch, g, got, want, n)
		}
	}
	return nil
}

// checkAligned panics if a structural mutation broke index alignment.
func (s *GaussianSet) checkAligned() {
	if err := s.Validate(); err != nil {
		panic(err)
	}
}

// Mean returns the position of Gaussian i.
func (s *GaussianSet) Mean(i int) geom.Vec3 {
	return geom.V3(s.Means[3*i], s.Means[3*i+1], s.Means[3*i+2])
}

// Scale returns the activated (exponentiated) scale of Gaussian i.
func (s *GaussianSet) Scale(i int) geom.Vec3 {
	return geom.V3(s.LogScales[3*i], s.LogScales[3*i+1], s.LogScales[3*i+2]).Exp()
}

// Quat returns the raw quaternion of Gaussian i.
func (s *GaussianSet) Quat(i int) geom.Quat {
	return geom.Quat{W: s.Quats[4*i], X: s.Quats[4*i+1], Y: s.Quats[4*i+2], Z: s.Quats[4*i+3]}
}

// Opacity returns the activated opacity of Gaussian i.
func (s *GaussianSet) Opacity(i int) float64 { return sigmoid(s.RawOpacity[i]) }

// Opacities returns every activated opacity.
func (s *GaussianSet) Opacities() []float64 {
	out := make([]float64, s.Len())
	for i, r := range s.RawOpacity {
		out[i] = sigmoid(r)
	}
	return out
}

// Gather rebuilds every group from the given source rows, in order. Rows
// may repeat.
func (s *GaussianSet) Gather(rows []int) {
	for g := range numGroups {
		*s.group(g) = gatherRows(s.Tensor(g), s.Shape(g).Width(), rows)
	}
	s.checkAligned()
}

// Append adds the Gaussians of o after the existing ones.
func (s *GaussianSet) Append(o *GaussianSet) {
	if o.Degree != s.Degree {
		panic(fmt.Sprintf("splat: appending degree %d set to degree %d set", o.Degree, s.Degree))
	}
	for g := range numGroups {
		*s.group(g) = append(s.Tensor(g), o.Tensor(g)...)
	}
	s.checkAligned()
}

// Clone returns a deep copy of s.
func (s *GaussianSet) Clone() *GaussianSet {
	c := &GaussianSet{Degree: s.Degree}
	for g := range numGroups {
		*c.group(g) = append([]float64(nil), s.Tensor(g)...)
	}
	return c
}

func gatherRows(src []float64, width int, rows []int) []float64 {
	out := make([]float64, 0, len(rows)*width)
	for _, r := range rows {
		out = append(out, src[r*width:(r+1)*width]...)
	}
	return out
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func logit(p float64) float64 { return math.Log(p / (1 - p)) }
