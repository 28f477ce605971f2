package gsplat

import (
	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/parallel"
)

// Pipeline constants shared by every executor.
const (
	// TileSize is the raster tile edge in pixels.
	TileSize = parallel.TileSize

	// LowPass is added to the diagonal of every 2D covariance so that each
	// splat covers at least about one pixel.
	LowPass = 0.3

	// DetFloor is the smallest determinant used when inverting a 2D covariance.
	DetFloor = 1e-6

	// FrustumMargin widens the visible cone when culling by view angle.
	FrustumMargin = 1.3

	// MaxAlpha caps the opacity of a single splat at one pixel.
	MaxAlpha = 0.999

	// MinAlpha is the smallest alpha that contributes to a pixel.
	MinAlpha = 1.0 / 255.0

	// TransmittanceEps stops compositing once light through a pixel falls below it.
	TransmittanceEps = 1e-4

	// DefaultClipThresh is the default near clip distance in camera space.
	DefaultClipThresh = 0.01

	// homogeneousEps guards the perspective divide.
	homogeneousEps = 1e-6
)

// Camera holds the per-view quantities consumed by projection and shading.
type Camera struct {
	// View maps world space to camera space (OpenCV axes, +z forward).
	View geom.Mat4

	// Proj is the full projection: clip-space projection times View.
	Proj geom.Mat4

	Fx, Fy float64
	Cx, Cy float64

	Width, Height int

	// Position is the camera centre in world space.
	Position geom.Vec3
}

// Grid returns the tile grid of the camera's image.
func (c *Camera) Grid() parallel.TileGrid {
	return parallel.NewTileGrid(c.Width, c.Height)
}

// ProjectionMatrix returns the clip-space projection for a pinhole camera
// with the given intrinsics. Screen coordinates derived from it satisfy
// u = fx*x/z + cx, v = fy*y/z + cy after the 0.5*((ndc+1)*size - 1) mapping.
func ProjectionMatrix(fx, fy, cx, cy float64, width, height int, near, far float64) geom.Mat4 {
	w, h := float64(width), float64(height)
	return geom.Mat4{
		{2 * fx / w, 0, (2*cx + 1 - w) / w, 0},
		{0, 2 * fy / h, (2*cy + 1 - h) / h, 0},
		{0, 0, (far + near) / (far - near), -far * near / (far - near)},
		{0, 0, 1, 0},
	}
}

// NDCToPixel maps a normalized device coordinate to pixel space.
func NDCToPixel(ndc float64, size int) float64 {
	return 0.5 * ((ndc+1)*float64(size) - 1)
}
