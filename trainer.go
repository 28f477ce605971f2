package splat

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Trainer drives a Model over a scene's cameras in shuffled epochs.
type Trainer struct {
	model     *Model
	cams      []*Camera
	order     []int
	next      int
	rng       *rand.Rand
	telemetry *Telemetry
	start     time.Time
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithTelemetry records every step and refinement to t.
func WithTelemetry(t *Telemetry) TrainerOption {
	return func(tr *Trainer) { tr.telemetry = t }
}

// NewTrainer returns a trainer that visits every camera of scene once per
// epoch in a freshly shuffled order.
func NewTrainer(m *Model, scene *Scene, opts ...TrainerOption) *Trainer {
	seed := m.cfg.Train.Seed
	t := &Trainer{
		model: m,
		cams:  scene.Cameras,
		rng:   rand.New(rand.NewPCG(seed^0xda3e39cb94b95bdb, seed)),
		start: time.Now(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Trainer) nextCamera() *Camera {
	if t.next >= len(t.order) {
		t.order = t.rng.Perm(len(t.cams))
		t.next = 0
	}
	c := t.cams[t.order[t.next]]
	t.next++
	return c
}

// Step runs one training iteration: render the next camera, compare it to
// its image, backpropagate, update the parameters and refine.
func (t *Trainer) Step(step int) (StepRecord, error) {
	m := t.model
	cam := t.nextCamera()
	if cam.Source == nil {
		return StepRecord{}, fmt.Errorf("%w: %q has no image source", ErrInvalidCamera, cam.ID)
	}

	r, err := m.Render(cam, step)
	if err != nil {
		return StepRecord{}, err
	}
	img, err := cam.Source.Image(r.Downscale)
	if err != nil {
		return StepRecord{}, fmt.Errorf("loading image of %q: %w", cam.ID, err)
	}
	if img.Width != r.Width || img.Height != r.Height {
		return StepRecord{}, fmt.Errorf("%w: image of %q is %dx%d, render is %dx%d",
			ErrInvalidImageSize, cam.ID, img.Width, img.Height, r.Width, r.Height)
	}

	loss, err := ComputeLoss(r.Pix, img.Pix, r.Width, r.Height, m.cfg.Train.SSIMWeight, m.cfg.Train.SSIMWindow)
	if err != nil {
		return StepRecord{}, err
	}
	if _, err := m.Backward(loss.Grad); err != nil {
		return StepRecord{}, err
	}
	if err := m.OptimizerStep(step); err != nil {
		return StepRecord{}, err
	}
	if stats, ok := m.Refine(step); ok {
		if err := t.telemetry.WriteRefine(stats); err != nil {
			return StepRecord{}, err
		}
	}

	rec := StepRecord{
		Step:          step,
		Camera:        cam.ID,
		Downscale:     r.Downscale,
		Loss:          loss.Total,
		L1:            loss.L1,
		SSIM:          loss.SSIM,
		PSNR:          loss.PSNR,
		Gaussians:     m.NumGaussians(),
		Visible:       r.Visible,
		Intersections: r.Intersections,
		MeansLR:       m.MeansLR(),
		ElapsedMS:     time.Since(t.start).Milliseconds(),
	}
	if err := t.telemetry.WriteStep(rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// Run trains from step 1 through Config.Train.MaxSteps, calling after (when
// non-nil) once per step. It stops early when ctx is done or after returns
// an error.
func (t *Trainer) Run(ctx context.Context, after func(StepRecord) error) error {
	for step := 1; step <= t.model.cfg.Train.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := t.Step(step)
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		if after != nil {
			if err := after(rec); err != nil {
				return err
			}
		}
	}
	return nil
}
