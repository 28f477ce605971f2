package gsplat

import "github.com/gogpu/splat/internal/geom"

// Backend executes the pipeline stages. Each forward returns the state its
// backward consumes; a backward never mutates the state it receives.
//
// Implementations are selected explicitly by the caller. A backend that
// cannot initialize reports an error from its constructor instead of
// degrading to another executor.
type Backend interface {
	// Name identifies the backend in logs ("cpu", "gpu").
	Name() string

	Project(in *ProjectInput) (*Projection, error)
	Shade(in *ShadeInput) (*Shading, error)
	Rasterize(in *RasterInput) (*RasterState, error)

	// RasterizeBackward takes the gradient on the color image and, when
	// non-nil, on the accumulated alpha image.
	RasterizeBackward(st *RasterState, vColor, vAlpha []float64) (*RasterGrads, error)
	ShadeBackward(st *Shading, vColors []geom.Vec3) (*ShadeGrads, error)
	ProjectBackward(st *Projection, up *ProjectUpstream) (*ProjectGrads, error)

	// Close releases executor resources.
	Close() error
}
