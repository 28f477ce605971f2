package splat

import (
	"math"
	"math/rand/v2"
	"testing"
)

// solidSource serves a constant-color image at any downscale.
type solidSource struct {
	w, h int
	rgb  [3]float64
}

func (s solidSource) Image(downscale int) (*Image, error) {
	w, h := s.w/downscale, s.h/downscale
	img := &Image{Width: w, Height: h, Pix: make([]float64, 3*w*h)}
	for i := range w * h {
		copy(img.Pix[3*i:3*i+3], s.rgb[:])
	}
	return img, nil
}

// lookAt returns an OpenGL-convention camera-to-world pose at eye looking
// towards the origin with +y up.
func lookAt(eye [3]float64) [4][4]float64 {
	fwd := normalize([3]float64{-eye[0], -eye[1], -eye[2]})
	up := [3]float64{0, 1, 0}
	right := normalize(cross(fwd, up))
	up = cross(right, fwd)
	return [4][4]float64{
		{right[0], up[0], -fwd[0], eye[0]},
		{right[1], up[1], -fwd[1], eye[1]},
		{right[2], up[2], -fwd[2], eye[2]},
		{0, 0, 0, 1},
	}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}

func normalize(a [3]float64) [3]float64 {
	l := math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
	return [3]float64{a[0] / l, a[1] / l, a[2] / l}
}

// testScene returns a small random point cloud around the origin seen by
// cameras on a ring at distance 3.
func testScene(points, cameras, size int, target [3]float64) *Scene {
	r := rand.New(rand.NewPCG(7, 11))
	s := &Scene{Transform: IdentityTransform()}
	for range points {
		s.Points.XYZ = append(s.Points.XYZ, 1.5*(r.Float64()-0.5), 1.5*(r.Float64()-0.5), 1.5*(r.Float64()-0.5))
		s.Points.RGB = append(s.Points.RGB, r.Float64(), r.Float64(), r.Float64())
	}
	for i := range cameras {
		a := 2 * math.Pi * float64(i) / float64(cameras)
		s.Cameras = append(s.Cameras, &Camera{
			ID:         "cam" + string(rune('a'+i)),
			Width:      size,
			Height:     size,
			Fx:         float64(size),
			Fy:         float64(size),
			Cx:         float64(size) / 2,
			Cy:         float64(size) / 2,
			CamToWorld: lookAt([3]float64{3 * math.Sin(a), 0.5, 3 * math.Cos(a)}),
			Source:     solidSource{w: size, h: size, rgb: target},
		})
	}
	return s
}

// testConfig returns a configuration sized for tiny scenes.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Train.MaxSteps = 200
	cfg.Train.NumDownscales = 0
	cfg.SH.Degree = 1
	cfg.SH.DegreeInterval = 10
	cfg.Parallel.Workers = 2
	return cfg
}

func newTestModel(t *testing.T, cfg Config, scene *Scene) *Model {
	t.Helper()
	b := NewCPUBackend(cfg.Parallel.Workers)
	t.Cleanup(func() { b.Close() })
	m, err := NewModel(scene, cfg, b)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}
