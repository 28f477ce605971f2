package gsplat

import (
	"fmt"
	"math"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/parallel"
)

// RasterInput is the input of the compositing stage.
type RasterInput struct {
	Proj *Projection

	// Colors and Opacities are per Gaussian; Opacities are activated (0..1).
	Colors    []geom.Vec3
	Opacities []float64

	Background geom.Vec3
}

// Validate checks that per-Gaussian inputs match the projection.
func (in *RasterInput) Validate() error {
	n := in.Proj.Len()
	if len(in.Colors) != n || len(in.Opacities) != n {
		return fmt.Errorf("%w: projection=%d colors=%d opacities=%d", ErrLengthMismatch,
			n, len(in.Colors), len(in.Opacities))
	}
	return nil
}

// RasterState is the rendered image together with what its backward needs.
type RasterState struct {
	Input *RasterInput
	Bins  *Bins

	// Color is the composited image, 3 values per pixel in row-major order.
	Color []float64

	// FinalT is the transmittance left after the last contributor.
	FinalT []float64

	// FinalEnd is the exclusive end of each pixel's contributor span in
	// Bins.Sorted. The span starts at the pixel tile's range start.
	FinalEnd []int32
}

// NewRasterState allocates the per-pixel buffers for in and bins.
func NewRasterState(in *RasterInput, bins *Bins) *RasterState {
	n := bins.Grid.Width() * bins.Grid.Height()
	return &RasterState{
		Input:    in,
		Bins:     bins,
		Color:    make([]float64, 3*n),
		FinalT:   make([]float64, n),
		FinalEnd: make([]int32, n),
	}
}

// Width returns the image width.
func (s *RasterState) Width() int { return s.Bins.Grid.Width() }

// Height returns the image height.
func (s *RasterState) Height() int { return s.Bins.Grid.Height() }

// Pixel returns the color at (x, y).
func (s *RasterState) Pixel(x, y int) geom.Vec3 {
	i := 3 * (y*s.Width() + x)
	return geom.V3(s.Color[i], s.Color[i+1], s.Color[i+2])
}

// Alpha returns the accumulated opacity 1 - T at (x, y).
func (s *RasterState) Alpha(x, y int) float64 {
	return 1 - s.FinalT[y*s.Width()+x]
}

// rangeAt returns the contributor span of pixel (x, y).
func (s *RasterState) rangeAt(x, y int) TileRange {
	tile := (y/TileSize)*s.Bins.Grid.TilesX() + x/TileSize
	r := s.Bins.Ranges[tile]
	r.End = s.FinalEnd[y*s.Width()+x]
	return r
}

// Contributors returns the Gaussians composited into pixel (x, y) in
// front-to-back order.
func (s *RasterState) Contributors(x, y int) []int32 {
	r := s.rangeAt(x, y)
	var out []int32
	for k := r.Start; k < r.End; k++ {
		g := s.Bins.Sorted[k].Gaussian
		if _, _, _, _, ok := s.Input.splat(g, float64(x), float64(y)); ok {
			out = append(out, g)
		}
	}
	return out
}

// splat evaluates Gaussian g at a pixel. ok is false when the Gaussian is
// skipped there: negative exponent or alpha below MinAlpha.
func (in *RasterInput) splat(g int32, px, py float64) (alpha, vis, dx, dy float64, ok bool) {
	xy := in.Proj.XY[g]
	conic := in.Proj.Conics[g]
	dx = xy.X - px
	dy = xy.Y - py
	sigma := 0.5*(conic.X*dx*dx+conic.Z*dy*dy) + conic.Y*dx*dy
	if sigma < 0 {
		return 0, 0, 0, 0, false
	}
	vis = math.Exp(-sigma)
	alpha = min(MaxAlpha, in.Opacities[g]*vis)
	if alpha < MinAlpha {
		return 0, 0, 0, 0, false
	}
	return alpha, vis, dx, dy, true
}

// RasterizePixel composites the span r of sorted front to back at pixel
// (x, y) and returns the color, the final transmittance and the exclusive
// end of the contributor span.
func RasterizePixel(in *RasterInput, sorted []Intersection, r TileRange, x, y int) (geom.Vec3, float64, int32) {
	px, py := float64(x), float64(y)
	t := 1.0
	var c geom.Vec3
	end := r.Start
	for k := r.Start; k < r.End; k++ {
		g := sorted[k].Gaussian
		alpha, _, _, _, ok := in.splat(g, px, py)
		if !ok {
			continue
		}
		next := t * (1 - alpha)
		if next <= TransmittanceEps {
			break
		}
		c = c.Add(in.Colors[g].Mul(alpha * t))
		t = next
		end = k + 1
	}
	return c.Add(in.Background.Mul(t)), t, end
}

// RasterizeTile renders every pixel of tile into s.
func RasterizeTile(s *RasterState, tile parallel.Tile) {
	r := s.Bins.Ranges[tile.ID(s.Bins.Grid.TilesX())]
	x0, y0, w, h := tile.Bounds()
	width := s.Width()
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			c, t, end := RasterizePixel(s.Input, s.Bins.Sorted, r, x, y)
			i := y*width + x
			s.Color[3*i] = c.X
			s.Color[3*i+1] = c.Y
			s.Color[3*i+2] = c.Z
			s.FinalT[i] = t
			s.FinalEnd[i] = end
		}
	}
}

// Composite renders every tile of bins into a new state on pool.
func Composite(in *RasterInput, bins *Bins, pool *parallel.WorkerPool) *RasterState {
	s := NewRasterState(in, bins)
	bins.Grid.ForEachTile(pool, func(t parallel.Tile) {
		RasterizeTile(s, t)
	})
	return s
}

// RasterGrads holds per-Gaussian gradients of the compositing stage.
// Opacities are with respect to the activated opacity.
type RasterGrads struct {
	Colors    []geom.Vec3
	Opacities []float64
	XY        []geom.Vec2
	Conics    []geom.Vec3
}

// intersectionGrad accumulates one (Gaussian, tile) pair's gradient. Each
// intersection belongs to exactly one tile, so tiles accumulate without
// synchronization.
type intersectionGrad struct {
	color   geom.Vec3
	opacity float64
	conic   geom.Vec3
	xy      geom.Vec2
}

// BackwardPixel replays the contributors of pixel (x, y) back to front.
// Dividing the final transmittance by (1 - alpha) recovers the
// transmittance in front of each contributor exactly. vAlpha is the
// gradient on the pixel's accumulated alpha.
func BackwardPixel(s *RasterState, x, y int, vOut geom.Vec3, vAlpha float64, acc []intersectionGrad) {
	in := s.Input
	r := s.rangeAt(x, y)
	if r.End <= r.Start {
		return
	}
	px, py := float64(x), float64(y)
	finalT := s.FinalT[y*s.Width()+x]
	bgDot := in.Background.Dot(vOut)

	t := finalT
	var buf geom.Vec3
	for k := r.End - 1; k >= r.Start; k-- {
		g := s.Bins.Sorted[k].Gaussian
		alpha, vis, dx, dy, ok := in.splat(g, px, py)
		if !ok {
			continue
		}
		ra := 1 / (1 - alpha)
		t *= ra
		fac := alpha * t
		col := in.Colors[g]

		a := &acc[k]
		a.color = a.color.Add(vOut.Mul(fac))

		va := (col.X*t-buf.X*ra)*vOut.X +
			(col.Y*t-buf.Y*ra)*vOut.Y +
			(col.Z*t-buf.Z*ra)*vOut.Z +
			finalT*ra*vAlpha -
			finalT*ra*bgDot
		buf = buf.Add(col.Mul(fac))

		op := in.Opacities[g]
		if op*vis >= MaxAlpha {
			continue
		}
		vSigma := -op * vis * va
		conic := in.Proj.Conics[g]
		a.conic = a.conic.Add(geom.V3(0.5*vSigma*dx*dx, vSigma*dx*dy, 0.5*vSigma*dy*dy))
		a.xy = a.xy.Add(geom.Vec2{
			X: vSigma * (conic.X*dx + conic.Y*dy),
			Y: vSigma * (conic.Y*dx + conic.Z*dy),
		})
		a.opacity += vis * va
	}
}

// BackwardTile runs BackwardPixel for every pixel of tile. vAlpha may be nil.
func BackwardTile(s *RasterState, tile parallel.Tile, vColor, vAlpha []float64, acc []intersectionGrad) {
	x0, y0, w, h := tile.Bounds()
	width := s.Width()
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			i := y*width + x
			vOut := geom.V3(vColor[3*i], vColor[3*i+1], vColor[3*i+2])
			va := 0.0
			if vAlpha != nil {
				va = vAlpha[i]
			}
			BackwardPixel(s, x, y, vOut, va, acc)
		}
	}
}

// reduceIntersections sums per-intersection gradients into per-Gaussian ones.
func reduceIntersections(s *RasterState, acc []intersectionGrad) *RasterGrads {
	n := s.Input.Proj.Len()
	g := &RasterGrads{
		Colors:    make([]geom.Vec3, n),
		Opacities: make([]float64, n),
		XY:        make([]geom.Vec2, n),
		Conics:    make([]geom.Vec3, n),
	}
	for k, a := range acc {
		id := s.Bins.Sorted[k].Gaussian
		g.Colors[id] = g.Colors[id].Add(a.color)
		g.Opacities[id] += a.opacity
		g.XY[id] = g.XY[id].Add(a.xy)
		g.Conics[id] = g.Conics[id].Add(a.conic)
	}
	return g
}

// checkUpstream validates the shapes of the image gradients.
func (s *RasterState) checkUpstream(vColor, vAlpha []float64) error {
	n := s.Width() * s.Height()
	if len(vColor) != 3*n || (vAlpha != nil && len(vAlpha) != n) {
		return fmt.Errorf("%w: color=%d alpha=%d pixels=%d", ErrStaleState, len(vColor), len(vAlpha), n)
	}
	return nil
}
