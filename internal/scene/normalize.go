package scene

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/gogpu/splat"
)

// Normalize centres the camera origins on zero and scales them into the
// unit cube, applying the same transform to the point cloud. The transform
// is recorded in s.Transform.
func Normalize(s *splat.Scene) {
	if len(s.Cameras) == 0 {
		return
	}
	var origins [3][]float64
	for _, c := range s.Cameras {
		for k := range 3 {
			origins[k] = append(origins[k], c.CamToWorld[k][3])
		}
	}
	var t splat.SceneTransform
	extent := 0.0
	for k, axis := range origins {
		centre := floats.Sum(axis) / float64(len(axis))
		t.Translation[k] = -centre
		for _, v := range axis {
			extent = math.Max(extent, math.Abs(v-centre))
		}
	}
	t.Scale = 1
	if extent > 0 {
		t.Scale = 1 / extent
	}
	Apply(s, t)
}

// Apply maps every pose translation and point p to (p + T) * S. Rotations
// are unchanged. The transform is composed into s.Transform.
func Apply(s *splat.Scene, t splat.SceneTransform) {
	for _, c := range s.Cameras {
		for k := range 3 {
			c.CamToWorld[k][3] = (c.CamToWorld[k][3] + t.Translation[k]) * t.Scale
		}
	}
	xyz := s.Points.XYZ
	for i := range len(xyz) / 3 {
		for k := range 3 {
			xyz[3*i+k] = (xyz[3*i+k] + t.Translation[k]) * t.Scale
		}
	}
	prev := s.Transform
	if prev.Scale == 0 {
		prev = splat.IdentityTransform()
	}
	// (((p + T0) * S0) + T1) * S1 = (p + T0 + T1/S0) * S0*S1
	s.Transform = splat.SceneTransform{
		Scale: prev.Scale * t.Scale,
		Translation: [3]float64{
			prev.Translation[0] + t.Translation[0]/prev.Scale,
			prev.Translation[1] + t.Translation[1]/prev.Scale,
			prev.Translation[2] + t.Translation[2]/prev.Scale,
		},
	}
}
