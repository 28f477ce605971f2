package splat

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/gsplat"
)

// RefineStats summarizes one refinement pass.
type RefineStats struct {
	Step   int
	Before int
	After  int

	Split  int // Gaussians replaced by SplitSamples children
	Cloned int
	Culled int // removed for low opacity or excessive size

	OpacityReset bool

	// Screen-space gradient statistics over the accumulation window.
	MeanGrad float64
	GradP90  float64

	// MaxScreenSize is the largest observed radius as a fraction of the
	// image size.
	MaxScreenSize float64
}

// densityController accumulates per-Gaussian screen-space statistics between
// refinements and applies split, clone, cull and opacity reset.
type densityController struct {
	cfg Config
	rng *rand.Rand

	gradNorm []float64
	visCount []float64
	max2D    []float64
	lastSize float64
}

func newDensityController(cfg Config, rng *rand.Rand) *densityController {
	return &densityController{cfg: cfg, rng: rng}
}

func (d *densityController) resize(n int) {
	d.gradNorm = make([]float64, n)
	d.visCount = make([]float64, n)
	d.max2D = make([]float64, n)
}

// observe adds one render's screen-space mean gradients for the visible
// Gaussians of p.
func (d *densityController) observe(p *gsplat.Projection, vXY []geom.Vec2) {
	n := p.Len()
	if len(d.gradNorm) != n {
		d.resize(n)
	}
	size := float64(max(p.Grid.Width(), p.Grid.Height()))
	d.lastSize = size
	for i, r := range p.Radii {
		if r <= 0 {
			continue
		}
		d.gradNorm[i] += vXY[i].Length()
		d.visCount[i]++
		d.max2D[i] = math.Max(d.max2D[i], float64(r)/size)
	}
}

// refine runs a refinement pass if step is a refinement step. It reports
// whether the set was touched.
func (d *densityController) refine(step int, set *GaussianSet, opts *optimizers, numCameras int) (RefineStats, bool) {
	cfg := d.cfg.Density
	if step >= d.cfg.stopSplitAt() || step <= cfg.WarmupLength || step%cfg.RefineEvery != 0 {
		return RefineStats{}, false
	}
	stats := RefineStats{Step: step, Before: set.Len()}
	if len(d.gradNorm) != set.Len() {
		d.resize(set.Len())
	}

	// Densification waits for opacities to recover after a reset.
	phase := step % cfg.ResetAlphaEvery
	if phase > numCameras+cfg.RefineEvery {
		d.densify(step, set, opts, &stats)
	}
	if phase == cfg.RefineEvery {
		d.resetOpacity(set, opts)
		stats.OpacityReset = true
	}
	stats.After = set.Len()
	d.gradNorm, d.visCount, d.max2D = nil, nil, nil
	return stats, true
}

// averageGrads returns the mean screen-space gradient norm per Gaussian,
// scaled by half the image size.
func (d *densityController) averageGrads() []float64 {
	avg := make([]float64, len(d.gradNorm))
	for i, g := range d.gradNorm {
		if d.visCount[i] > 0 {
			avg[i] = g / d.visCount[i] * 0.5 * d.lastSize
		}
	}
	return avg
}

func (d *densityController) densify(step int, set *GaussianSet, opts *optimizers, stats *RefineStats) {
	cfg := d.cfg.Density
	n := set.Len()
	if n == 0 {
		return
	}
	avg := d.averageGrads()
	stats.MeanGrad = stat.Mean(avg, nil)
	sorted := slices.Clone(avg)
	slices.Sort(sorted)
	stats.GradP90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	stats.MaxScreenSize = floats.Max(d.max2D)

	screenSizeActive := step < cfg.StopScreenSizeAt
	splitParent := make([]bool, n)
	var splits, clones []int
	for i, g := range avg {
		if g <= cfg.DensifyGradThresh {
			continue
		}
		maxScale := set.Scale(i).MaxComponent()
		if maxScale > cfg.DensifySizeThresh || (screenSizeActive && d.max2D[i] > cfg.SplitScreenSize) {
			splits = append(splits, i)
			splitParent[i] = true
		} else {
			clones = append(clones, i)
		}
	}
	stats.Split, stats.Cloned = len(splits), len(clones)

	rows := make([]int, 0, len(splits)*cfg.SplitSamples+len(clones))
	for _, i := range splits {
		for range cfg.SplitSamples {
			rows = append(rows, i)
		}
	}
	rows = append(rows, clones...)
	if len(rows) > 0 {
		added := &GaussianSet{Degree: set.Degree}
		for g := range numGroups {
			*added.group(g) = gatherRows(set.Tensor(g), set.Shape(g).Width(), rows)
		}
		d.sampleChildren(set, added, len(splits)*cfg.SplitSamples, rows)
		set.Append(added)
		opts.grow(added.Len())
	}

	// Cull over the grown set. Split parents always go.
	resetDone := step > cfg.ResetAlphaEvery
	keep := make([]int, 0, set.Len())
	for i := range set.Len() {
		parent := i < n && splitParent[i]
		cull := set.Opacity(i) < cfg.CullAlphaThresh
		if resetDone {
			huge := set.Scale(i).MaxComponent() > cfg.CullScaleThresh
			if screenSizeActive && i < n && d.max2D[i] > cfg.CullScreenSize {
				huge = true
			}
			cull = cull || huge
		}
		switch {
		case parent:
		case cull:
			stats.Culled++
		default:
			keep = append(keep, i)
		}
	}
	if len(keep) < set.Len() {
		set.Gather(keep)
		opts.gather(keep)
	}
}

// sampleChildren moves the first nSplit rows of added to positions drawn
// from their parent's distribution and shrinks their scales.
func (d *densityController) sampleChildren(parent, added *GaussianSet, nSplit int, rows []int) {
	shrink := math.Log(d.cfg.Density.SplitScaleFactor)
	for c := range nSplit {
		p := rows[c]
		scale := parent.Scale(p)
		rot := parent.Quat(p).Normalize().Rotation()
		z := geom.V3(d.rng.NormFloat64(), d.rng.NormFloat64(), d.rng.NormFloat64()).Hadamard(scale)
		m := rot.MulVec(z).Add(parent.Mean(p))
		added.Means[3*c], added.Means[3*c+1], added.Means[3*c+2] = m.X, m.Y, m.Z
		for k := range 3 {
			added.LogScales[3*c+k] -= shrink
		}
	}
}

// resetOpacity clamps every opacity to at most twice the cull threshold and
// clears the opacity optimizer's moments.
func (d *densityController) resetOpacity(set *GaussianSet, opts *optimizers) {
	ceiling := logit(2 * d.cfg.Density.CullAlphaThresh)
	for i, r := range set.RawOpacity {
		set.RawOpacity[i] = math.Min(r, ceiling)
	}
	opts[GroupOpacity].ResetState()
}
