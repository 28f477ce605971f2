package splat

import (
	"fmt"
	"math"
)

// Loss is the photometric loss of one rendered view.
type Loss struct {
	Total float64
	L1    float64
	SSIM  float64
	PSNR  float64

	// Grad is dTotal/d(rendered), interleaved RGB like the image.
	Grad []float64
}

// ComputeLoss returns (1-λ)·L1 + λ·(1-SSIM) between rendered and target
// together with its gradient on rendered. Both images are interleaved RGB of
// w*h pixels.
func ComputeLoss(rendered, target []float64, w, h int, ssimWeight float64, window int) (*Loss, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidImageSize, w, h)
	}
	if len(rendered) != 3*w*h || len(target) != 3*w*h {
		return nil, fmt.Errorf("%w: rendered=%d target=%d for %dx%d", ErrInvalidImageSize, len(rendered), len(target), w, h)
	}
	n := float64(len(rendered))
	l := &Loss{Grad: make([]float64, len(rendered))}

	mse := 0.0
	for i, r := range rendered {
		d := r - target[i]
		l.L1 += math.Abs(d)
		mse += d * d
		switch {
		case d > 0:
			l.Grad[i] = (1 - ssimWeight) / n
		case d < 0:
			l.Grad[i] = -(1 - ssimWeight) / n
		}
	}
	l.L1 /= n
	mse /= n
	l.PSNR = psnr(mse)

	l.SSIM = ssim(rendered, target, w, h, window, l.Grad, -ssimWeight)
	l.Total = (1-ssimWeight)*l.L1 + ssimWeight*(1-l.SSIM)
	return l, nil
}

// psnr returns the peak signal-to-noise ratio in dB for unit-range images.
func psnr(mse float64) float64 {
	if mse <= 0 {
		return math.Inf(1)
	}
	return -10 * math.Log10(mse)
}
