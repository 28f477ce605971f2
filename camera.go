package splat

import (
	"fmt"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/gsplat"
)

// Image is an RGB image, 3 values in [0, 1] per pixel in row-major
// order.
type Image struct {
	Width, Height int
	Pix           []float64
}

// ImageSource loads a camera's training image at 1/downscale resolution.
// Implementations must return exactly Camera.Size(downscale) pixels.
type ImageSource interface {
	Image(downscale int) (*Image, error)
}

// Camera is one training view. CamToWorld follows the OpenGL convention
// (+y up, -z forward) used by nerfstudio transforms.
type Camera struct {
	ID            string
	Width, Height int

	Fx, Fy float64
	Cx, Cy float64

	// Lens distortion coefficients. They are carried for export but not
	// modelled by the renderer.
	K1, K2, K3 float64
	P1, P2     float64

	CamToWorld [4][4]float64

	Source ImageSource
}

// Validate checks the intrinsics and image size.
func (c *Camera) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: %q has size %dx%d", ErrInvalidCamera, c.ID, c.Width, c.Height)
	}
	if c.Fx <= 0 || c.Fy <= 0 {
		return fmt.Errorf("%w: %q has focal length %vx%v", ErrInvalidCamera, c.ID, c.Fx, c.Fy)
	}
	return nil
}

// HasDistortion reports whether any distortion coefficient is non-zero.
func (c *Camera) HasDistortion() bool {
	return c.K1 != 0 || c.K2 != 0 || c.K3 != 0 || c.P1 != 0 || c.P2 != 0
}

// Size returns the image size at 1/downscale resolution.
func (c *Camera) Size(downscale int) (w, h int) {
	return c.Width / downscale, c.Height / downscale
}

// Position returns the camera centre in world space.
func (c *Camera) Position() geom.Vec3 {
	m := c.CamToWorld
	return geom.V3(m[0][3], m[1][3], m[2][3])
}

// ViewMatrix returns the world-to-camera transform with OpenCV axes
// (+y down, +z forward).
func (c *Camera) ViewMatrix() geom.Mat4 {
	m := geom.Mat4(c.CamToWorld)
	r := m.Rotation().Mul(geom.Diag3(geom.V3(1, -1, -1)))
	rInv := r.Transpose()
	tInv := rInv.MulVec(m.Translation()).Mul(-1)
	return geom.Affine(rInv, tInv)
}

// pipelineCamera scales the intrinsics to 1/downscale resolution and
// builds the matrices used by projection.
func (c *Camera) pipelineCamera(downscale int, r RenderConfig) gsplat.Camera {
	s := 1 / float64(downscale)
	w, h := c.Size(downscale)
	fx, fy := c.Fx*s, c.Fy*s
	cx, cy := c.Cx*s, c.Cy*s
	view := c.ViewMatrix()
	return gsplat.Camera{
		View:     view,
		Proj:     gsplat.ProjectionMatrix(fx, fy, cx, cy, w, h, r.ZNear, r.ZFar).Mul(view),
		Fx:       fx,
		Fy:       fy,
		Cx:       cx,
		Cy:       cy,
		Width:    w,
		Height:   h,
		Position: c.Position(),
	}
}

// Scene is a set of posed cameras and the sparse point cloud used to seed
// the Gaussians.
type Scene struct {
	Points  PointCloud
	Cameras []*Camera

	// Transform maps the source coordinates into the normalized scene
	// coordinates used for training.
	Transform SceneTransform
}

// Validate checks that the scene can seed a model.
func (s *Scene) Validate() error {
	if s.Points.Len() == 0 {
		return ErrEmptyPointCloud
	}
	if len(s.Points.XYZ) != 3*s.Points.Len() || len(s.Points.RGB) != 3*s.Points.Len() {
		return fmt.Errorf("%w: point cloud xyz=%d rgb=%d", ErrLengthMismatch, len(s.Points.XYZ), len(s.Points.RGB))
	}
	if len(s.Cameras) == 0 {
		return ErrNoCameras
	}
	for _, c := range s.Cameras {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PointCloud holds flat positions and colors (3 values each, colors in
// [0, 1]).
type PointCloud struct {
	XYZ []float64
	RGB []float64
}

// Len returns the number of points.
func (p PointCloud) Len() int { return len(p.XYZ) / 3 }

// SceneTransform maps source coordinates p to scene coordinates
// (p + Translation) * Scale.
type SceneTransform struct {
	Scale       float64
	Translation [3]float64
}

// IdentityTransform leaves coordinates unchanged.
func IdentityTransform() SceneTransform { return SceneTransform{Scale: 1} }

// Inverse maps a scene-space point back to source coordinates.
func (t SceneTransform) Inverse(p [3]float64) [3]float64 {
	s := t.Scale
	if s == 0 {
		s = 1
	}
	return [3]float64{
		p[0]/s - t.Translation[0],
		p[1]/s - t.Translation[1],
		p[2]/s - t.Translation[2],
	}
}
