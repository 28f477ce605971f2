package gsplat

import (
	"fmt"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/parallel"
)

// CPU is the reference executor. Every stage is a parallel map over its
// axis on a worker pool; binning runs its sort on the calling goroutine
// between two barriers.
type CPU struct {
	pool *parallel.WorkerPool
}

var _ Backend = (*CPU)(nil)

// NewCPU starts a CPU executor with the given number of workers
// (0 means GOMAXPROCS).
func NewCPU(workers int) *CPU {
	return &CPU{pool: parallel.NewWorkerPool(workers)}
}

// Name returns "cpu".
func (c *CPU) Name() string { return "cpu" }

// Pool returns the executor's worker pool.
func (c *CPU) Pool() *parallel.WorkerPool { return c.pool }

// Close stops the worker pool.
func (c *CPU) Close() error {
	c.pool.Close()
	return nil
}

// Project computes the screen-space footprint of every Gaussian.
func (c *CPU) Project(in *ProjectInput) (*Projection, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	n := in.Len()
	p := NewProjection(in, n)
	c.pool.ForEach(n, func(i int) {
		if g, ok := ProjectOne(in, p.Grid, i); ok {
			p.Set(i, g)
		}
	})
	return p, nil
}

// Shade evaluates view-dependent colors.
func (c *CPU) Shade(in *ShadeInput) (*Shading, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	n := in.Len()
	s := &Shading{Input: in, Colors: make([]geom.Vec3, n)}
	c.pool.ForChunks(n, 0, func(_, lo, hi int) {
		basis := make([]float64, NumBases(MaxSHDegree))
		for i := lo; i < hi; i++ {
			s.Colors[i] = ShadeOne(in, i, basis)
		}
	})
	return s, nil
}

// Rasterize bins the projected Gaussians and composites every tile.
func (c *CPU) Rasterize(in *RasterInput) (*RasterState, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return Composite(in, BinGaussians(in.Proj, c.pool), c.pool), nil
}

// RasterizeBackward replays every pixel's contributors and reduces the
// per-intersection gradients into per-Gaussian ones.
func (c *CPU) RasterizeBackward(st *RasterState, vColor, vAlpha []float64) (*RasterGrads, error) {
	if err := st.checkUpstream(vColor, vAlpha); err != nil {
		return nil, err
	}
	acc := make([]intersectionGrad, st.Bins.Count())
	st.Bins.Grid.ForEachTile(c.pool, func(t parallel.Tile) {
		BackwardTile(st, t, vColor, vAlpha, acc)
	})
	return reduceIntersections(st, acc), nil
}

// ShadeBackward maps color gradients onto SH coefficients.
func (c *CPU) ShadeBackward(st *Shading, vColors []geom.Vec3) (*ShadeGrads, error) {
	in := st.Input
	n := in.Len()
	if len(vColors) != n {
		return nil, fmt.Errorf("%w: colors=%d gaussians=%d", ErrStaleState, len(vColors), n)
	}
	g := &ShadeGrads{
		DC:   make([]float64, len(in.DC)),
		Rest: make([]float64, len(in.Rest)),
	}
	c.pool.ForChunks(n, 0, func(_, lo, hi int) {
		basis := make([]float64, NumBases(MaxSHDegree))
		for i := lo; i < hi; i++ {
			ShadeBackwardOne(in, i, st.Colors[i], vColors[i], basis, g)
		}
	})
	return g, nil
}

// ProjectBackward maps footprint gradients onto means, log-scales and
// quaternions. Invisible Gaussians receive zero gradient.
func (c *CPU) ProjectBackward(st *Projection, up *ProjectUpstream) (*ProjectGrads, error) {
	in := st.Input
	n := st.Len()
	if len(up.XY) != n || len(up.Conics) != n || (up.Depths != nil && len(up.Depths) != n) {
		return nil, fmt.Errorf("%w: projection upstream for %d gaussians", ErrStaleState, n)
	}
	g := &ProjectGrads{
		Means:     make([]float64, 3*n),
		LogScales: make([]float64, 3*n),
		Quats:     make([]float64, 4*n),
	}
	c.pool.ForEach(n, func(i int) {
		if st.Radii[i] <= 0 {
			return
		}
		vd := 0.0
		if up.Depths != nil {
			vd = up.Depths[i]
		}
		vm, vs, vq := ProjectBackwardOne(in, i, up.XY[i], vd, up.Conics[i])
		g.Means[3*i], g.Means[3*i+1], g.Means[3*i+2] = vm.X, vm.Y, vm.Z
		g.LogScales[3*i], g.LogScales[3*i+1], g.LogScales[3*i+2] = vs.X, vs.Y, vs.Z
		g.Quats[4*i], g.Quats[4*i+1], g.Quats[4*i+2], g.Quats[4*i+3] = vq.W, vq.X, vq.Y, vq.Z
	})
	return g, nil
}
