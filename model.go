package splat

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/gsplat"
	"github.com/gogpu/splat/internal/knn"
)

// ErrStaleState is returned when a backward or optimizer step does not
// follow the forward it belongs to.
var ErrStaleState = gsplat.ErrStaleState

// ErrNilBackend is returned by NewModel when no backend is given.
var ErrNilBackend = errors.New("splat: nil backend")

// minInitScale keeps log scales finite for duplicate points.
const minInitScale = 1e-7

// Model owns the Gaussians, their optimizers and the density controller.
// A training step calls Render, Backward, OptimizerStep and Refine in that
// order. A Model is not safe for concurrent use.
type Model struct {
	cfg     Config
	backend Backend
	untrack func()

	set     *GaussianSet
	opts    optimizers
	sched   *Scheduler
	density *densityController

	numCameras int
	transform  SceneTransform

	fwd   *forward
	grads *Gradients
}

// forward is the saved state of the last Render.
type forward struct {
	step   int
	n      int
	proj   *gsplat.Projection
	shade  *gsplat.Shading
	raster *gsplat.RasterState
}

// Render is one rendered view.
type Render struct {
	Width, Height int
	Downscale     int

	// Pix is interleaved RGB.
	Pix []float64

	Visible       int
	Intersections int
}

// Gradients holds loss gradients in the GaussianSet layout. RawOpacity is
// with respect to the pre-sigmoid opacity.
type Gradients struct {
	Means      []float64
	LogScales  []float64
	Quats      []float64
	SHDC       []float64
	SHRest     []float64
	RawOpacity []float64
}

// Tensor returns the gradient of group g.
func (g *Gradients) Tensor(gr Group) []float64 {
	switch gr {
	case GroupMeans:
		return g.Means
	case GroupLogScales:
		return g.LogScales
	case GroupQuats:
		return g.Quats
	case GroupSHDC:
		return g.SHDC
	case GroupSHRest:
		return g.SHRest
	default:
		return g.RawOpacity
	}
}

// NewModel seeds one Gaussian per scene point and binds the model to
// backend. The caller keeps ownership of backend.
func NewModel(scene *Scene, cfg Config, backend Backend) (*Model, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := scene.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(cfg.Train.Seed, cfg.Train.Seed^0x5851f42d4c957f2d))
	set, err := initGaussians(scene.Points, cfg, rng)
	if err != nil {
		return nil, err
	}
	m := &Model{
		cfg:        cfg,
		backend:    backend,
		set:        set,
		opts:       newOptimizers(set, cfg),
		density:    newDensityController(cfg, rng),
		numCameras: len(scene.Cameras),
		transform:  scene.Transform,
	}
	m.sched = NewScheduler(m.opts[GroupMeans], cfg.LR.Means, cfg.LR.MeansFinal, cfg.Train.MaxSteps)
	m.untrack = trackBackend(backend)

	distorted := 0
	for _, c := range scene.Cameras {
		if c.HasDistortion() {
			distorted++
		}
	}
	if distorted > 0 {
		Logger().Warn("splat: lens distortion is not modelled", "cameras", distorted)
	}
	Logger().Info("splat: model initialized",
		"gaussians", set.Len(),
		"cameras", len(scene.Cameras),
		"backend", backend.Name(),
		"sh_degree", cfg.SH.Degree)
	return m, nil
}

// initGaussians places one Gaussian on every point with an isotropic scale
// equal to the mean distance to its nearest neighbours.
func initGaussians(pts PointCloud, cfg Config, rng *rand.Rand) (*GaussianSet, error) {
	n := pts.Len()
	set, err := NewGaussianSet(n, cfg.SH.Degree)
	if err != nil {
		return nil, err
	}
	copy(set.Means, pts.XYZ)
	dists := knn.MeanDistances(pts.XYZ, cfg.Init.KNNNeighbors, 1)
	rawOpacity := logit(cfg.Init.Opacity)
	for i := range n {
		ls := math.Log(math.Max(dists[i], minInitScale))
		set.LogScales[3*i], set.LogScales[3*i+1], set.LogScales[3*i+2] = ls, ls, ls

		q := geom.RandomQuat(rng.Float64(), rng.Float64(), rng.Float64())
		set.Quats[4*i], set.Quats[4*i+1], set.Quats[4*i+2], set.Quats[4*i+3] = q.W, q.X, q.Y, q.Z

		for c := range 3 {
			set.SHDC[3*i+c] = gsplat.RGB2SH(pts.RGB[3*i+c])
		}
		set.RawOpacity[i] = rawOpacity
	}
	return set, nil
}

// Close unregisters the model from logger propagation. It does not close
// the backend.
func (m *Model) Close() {
	if m.untrack != nil {
		m.untrack()
		m.untrack = nil
	}
}

// Config returns the model's configuration.
func (m *Model) Config() Config { return m.cfg }

// Backend returns the executor the model renders with.
func (m *Model) Backend() Backend { return m.backend }

// Gaussians returns the live parameter set. Callers must not change its
// length.
func (m *Model) Gaussians() *GaussianSet { return m.set }

// NumGaussians returns the current number of Gaussians.
func (m *Model) NumGaussians() int { return m.set.Len() }

// MeansLR returns the learning rate the next optimizer step uses for means.
func (m *Model) MeansLR() float64 { return m.opts[GroupMeans].LR }

// Render renders cam at the resolution scheduled for step and keeps the
// state Backward needs.
func (m *Model) Render(cam *Camera, step int) (*Render, error) {
	ds := m.cfg.DownscaleFactor(step)
	gc := cam.pipelineCamera(ds, m.cfg.Render)
	if gc.Width <= 0 || gc.Height <= 0 {
		return nil, fmt.Errorf("%w: camera %q at 1/%d is %dx%d", ErrInvalidImageSize, cam.ID, ds, gc.Width, gc.Height)
	}
	set := m.set
	b := m.backend

	proj, err := b.Project(&gsplat.ProjectInput{
		Means:       set.Means,
		LogScales:   set.LogScales,
		Quats:       set.Quats,
		GlobalScale: m.cfg.Render.GlobalScale,
		ClipThresh:  m.cfg.Render.ClipThresh,
		Camera:      gc,
	})
	if err != nil {
		return nil, fmt.Errorf("projecting: %w", err)
	}
	shade, err := b.Shade(&gsplat.ShadeInput{
		Degree:       set.Degree,
		ActiveDegree: m.cfg.ActiveSHDegree(step),
		DC:           set.SHDC,
		Rest:         set.SHRest,
		Means:        set.Means,
		CameraPos:    gc.Position,
	})
	if err != nil {
		return nil, fmt.Errorf("shading: %w", err)
	}
	rs, err := b.Rasterize(&gsplat.RasterInput{
		Proj:       proj,
		Colors:     shade.Colors,
		Opacities:  set.Opacities(),
		Background: m.cfg.background(),
	})
	if err != nil {
		return nil, fmt.Errorf("rasterizing: %w", err)
	}
	m.fwd = &forward{step: step, n: set.Len(), proj: proj, shade: shade, raster: rs}
	m.grads = nil

	r := &Render{
		Width:         gc.Width,
		Height:        gc.Height,
		Downscale:     ds,
		Pix:           rs.Color,
		Visible:       proj.Visible(),
		Intersections: rs.Bins.Count(),
	}
	Logger().Debug("splat: render",
		"camera", cam.ID, "width", r.Width, "height", r.Height,
		"visible", r.Visible, "intersections", r.Intersections)
	return r, nil
}

// Backward propagates the image gradient vPix of the last Render onto every
// parameter group and feeds the density statistics.
func (m *Model) Backward(vPix []float64) (*Gradients, error) {
	f := m.fwd
	if f == nil || f.n != m.set.Len() {
		return nil, fmt.Errorf("%w: backward without a matching render", ErrStaleState)
	}
	b := m.backend
	rg, err := b.RasterizeBackward(f.raster, vPix, nil)
	if err != nil {
		return nil, fmt.Errorf("rasterize backward: %w", err)
	}
	sg, err := b.ShadeBackward(f.shade, rg.Colors)
	if err != nil {
		return nil, fmt.Errorf("shade backward: %w", err)
	}
	pg, err := b.ProjectBackward(f.proj, &gsplat.ProjectUpstream{XY: rg.XY, Conics: rg.Conics})
	if err != nil {
		return nil, fmt.Errorf("project backward: %w", err)
	}
	vRaw := make([]float64, f.n)
	for i, r := range m.set.RawOpacity {
		s := sigmoid(r)
		vRaw[i] = rg.Opacities[i] * s * (1 - s)
	}
	g := &Gradients{
		Means:      pg.Means,
		LogScales:  pg.LogScales,
		Quats:      pg.Quats,
		SHDC:       sg.DC,
		SHRest:     sg.Rest,
		RawOpacity: vRaw,
	}
	if f.step < m.cfg.stopSplitAt() {
		m.density.observe(f.proj, rg.XY)
	}
	m.grads = g
	return g, nil
}

// OptimizerStep applies one Adam update per group from the last Backward
// and advances the means learning-rate schedule.
func (m *Model) OptimizerStep(step int) error {
	if m.grads == nil {
		return fmt.Errorf("%w: optimizer step without gradients", ErrStaleState)
	}
	for g := range numGroups {
		if err := m.opts[g].Step(m.set.Tensor(g), m.grads.Tensor(g)); err != nil {
			return err
		}
	}
	m.sched.Step(step)
	m.fwd, m.grads = nil, nil
	return nil
}

// Refine runs density control if step is a refinement step.
func (m *Model) Refine(step int) (RefineStats, bool) {
	stats, ok := m.density.refine(step, m.set, &m.opts, m.numCameras)
	if !ok {
		return stats, false
	}
	m.set.checkAligned()
	Logger().Info("splat: refine",
		"step", step,
		"split", stats.Split,
		"cloned", stats.Cloned,
		"culled", stats.Culled,
		"opacity_reset", stats.OpacityReset,
		"gaussians", stats.After)
	return stats, true
}
