package splat

import (
	"fmt"
	"math"
)

// Adam is a per-group Adam optimizer over one flat tensor. Its moment
// buffers stay index-aligned with the tensor through Gather and Grow.
type Adam struct {
	Group Group
	Shape TensorShape

	// LR is the learning rate used by the next Step.
	LR float64

	cfg  AdamConfig
	t    int
	m, v []float64
}

// NewAdam returns an optimizer for rows Gaussians of the given shape.
func NewAdam(group Group, shape TensorShape, lr float64, cfg AdamConfig, rows int) *Adam {
	n := rows * shape.Width()
	return &Adam{
		Group: group,
		Shape: shape,
		LR:    lr,
		cfg:   cfg,
		m:     make([]float64, n),
		v:     make([]float64, n),
	}
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int { return a.t }

// Len returns the number of rows the optimizer tracks.
func (a *Adam) Len() int { return len(a.m) / a.Shape.Width() }

// Step applies one update to params given grads, element-wise:
//
//	m ← β1·m + (1-β1)·g
//	v ← β2·v + (1-β2)·g²
//	lr' = lr·√(1-β2^t) / (1-β1^t)
//	p ← p - lr'·(m/(1-β1^t)) / (√(v/(1-β2^t)) + ε)
func (a *Adam) Step(params, grads []float64) error {
	if len(params) != len(a.m) || len(grads) != len(a.m) {
		return fmt.Errorf("%w: %s optimizer tracks %d values, params=%d grads=%d",
			ErrLengthMismatch, a.Group, len(a.m), len(params), len(grads))
	}
	a.t++
	b1, b2 := a.cfg.Beta1, a.cfg.Beta2
	bc1 := 1 - math.Pow(b1, float64(a.t))
	bc2 := 1 - math.Pow(b2, float64(a.t))
	lr := a.LR * math.Sqrt(bc2) / bc1
	for i, g := range grads {
		a.m[i] = b1*a.m[i] + (1-b1)*g
		a.v[i] = b2*a.v[i] + (1-b2)*g*g
		mHat := a.m[i] / bc1
		vHat := a.v[i] / bc2
		params[i] -= lr * mHat / (math.Sqrt(vHat) + a.cfg.Epsilon)
	}
	return nil
}

// Gather keeps the moments of the given rows, in order. It mirrors
// GaussianSet.Gather.
func (a *Adam) Gather(rows []int) {
	w := a.Shape.Width()
	a.m = gatherRows(a.m, w, rows)
	a.v = gatherRows(a.v, w, rows)
}

// Grow appends zeroed moments for n new rows.
func (a *Adam) Grow(n int) {
	z := make([]float64, n*a.Shape.Width())
	a.m = append(a.m, z...)
	a.v = append(a.v, z...)
}

// ResetState zeroes both moments. The step count is kept.
func (a *Adam) ResetState() {
	clear(a.m)
	clear(a.v)
}

// Scheduler decays an optimizer's learning rate exponentially from init to
// final over maxSteps.
type Scheduler struct {
	opt         *Adam
	init, final float64
	maxSteps    int
}

// NewScheduler binds a schedule to opt.
func NewScheduler(opt *Adam, init, final float64, maxSteps int) *Scheduler {
	return &Scheduler{opt: opt, init: init, final: final, maxSteps: maxSteps}
}

// LR returns exp(log(init)·(1-t) + log(final)·t) with t = step/maxSteps
// clamped to [0, 1].
func (s *Scheduler) LR(step int) float64 {
	t := 1.0
	if s.maxSteps > 0 {
		t = min(max(float64(step)/float64(s.maxSteps), 0), 1)
	}
	return math.Exp(math.Log(s.init)*(1-t) + math.Log(s.final)*t)
}

// Step sets the optimizer's learning rate for the step after step.
func (s *Scheduler) Step(step int) {
	s.opt.LR = s.LR(step)
}

// optimizers holds one Adam per tensor group.
type optimizers [numGroups]*Adam

func newOptimizers(set *GaussianSet, cfg Config) optimizers {
	lrs := [numGroups]float64{
		GroupMeans:     cfg.LR.Means,
		GroupLogScales: cfg.LR.LogScales,
		GroupQuats:     cfg.LR.Quats,
		GroupSHDC:      cfg.LR.SHDC,
		GroupSHRest:    cfg.LR.SHRest,
		GroupOpacity:   cfg.LR.Opacity,
	}
	var o optimizers
	for g := range numGroups {
		o[g] = NewAdam(g, set.Shape(g), lrs[g], cfg.Adam, set.Len())
	}
	return o
}

func (o *optimizers) gather(rows []int) {
	for _, a := range o {
		a.Gather(rows)
	}
}

func (o *optimizers) grow(n int) {
	for _, a := range o {
		a.Grow(n)
	}
}
