package splat

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func randomImage(w, h int, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, 3))
	img := make([]float64, 3*w*h)
	for i := range img {
		img[i] = r.Float64()
	}
	return img
}

func TestLossIdenticalImages(t *testing.T) {
	img := randomImage(9, 7, 1)
	l, err := ComputeLoss(img, img, 9, 7, 0.2, 11)
	if err != nil {
		t.Fatal(err)
	}
	if l.L1 != 0 {
		t.Errorf("L1 = %v, want 0", l.L1)
	}
	if math.Abs(l.SSIM-1) > 1e-12 {
		t.Errorf("SSIM = %v, want 1", l.SSIM)
	}
	if math.Abs(l.Total) > 1e-12 {
		t.Errorf("Total = %v, want 0", l.Total)
	}
	if !math.IsInf(l.PSNR, 1) {
		t.Errorf("PSNR = %v, want +Inf", l.PSNR)
	}
}

func TestLossPureL1(t *testing.T) {
	a := []float64{0.5, 0.5, 0.5, 0.2, 0.2, 0.2}
	b := []float64{0.25, 0.5, 1, 0.2, 0.4, 0}
	l, err := ComputeLoss(a, b, 2, 1, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if want := (0.25 + 0 + 0.5 + 0 + 0.2 + 0.2) / 6; math.Abs(l.L1-want) > 1e-12 || math.Abs(l.Total-want) > 1e-12 {
		t.Errorf("L1 = %v, Total = %v, want %v", l.L1, l.Total, want)
	}
	wantGrad := []float64{1.0 / 6, 0, -1.0 / 6, 0, -1.0 / 6, 1.0 / 6}
	for i, w := range wantGrad {
		if math.Abs(l.Grad[i]-w) > 1e-12 {
			t.Errorf("Grad[%d] = %v, want %v", i, l.Grad[i], w)
		}
	}
}

func TestLossPSNR(t *testing.T) {
	a := []float64{0.1, 0.1, 0.1}
	b := []float64{0.2, 0.2, 0.2}
	l, err := ComputeLoss(a, b, 1, 1, 0.2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(l.PSNR-20) > 1e-9 {
		t.Errorf("PSNR = %v, want 20", l.PSNR)
	}
}

func TestLossGradientFiniteDifference(t *testing.T) {
	const w, h = 12, 10
	rendered := randomImage(w, h, 2)
	target := randomImage(w, h, 3)
	for _, window := range []int{5, 11} {
		l, err := ComputeLoss(rendered, target, w, h, 0.2, window)
		if err != nil {
			t.Fatal(err)
		}
		const eps = 1e-6
		for i := 0; i < len(rendered); i += 7 {
			orig := rendered[i]
			rendered[i] = orig + eps
			plus, _ := ComputeLoss(rendered, target, w, h, 0.2, window)
			rendered[i] = orig - eps
			minus, _ := ComputeLoss(rendered, target, w, h, 0.2, window)
			rendered[i] = orig
			fd := (plus.Total - minus.Total) / (2 * eps)
			if math.Abs(fd-l.Grad[i]) > 1e-7+1e-4*math.Abs(fd) {
				t.Errorf("window %d: Grad[%d] = %v, finite difference %v", window, i, l.Grad[i], fd)
			}
		}
	}
}

func TestLossRejectsBadSizes(t *testing.T) {
	if _, err := ComputeLoss(make([]float64, 12), make([]float64, 12), 2, 3, 0.2, 11); !errors.Is(err, ErrInvalidImageSize) {
		t.Errorf("mismatched size error = %v, want ErrInvalidImageSize", err)
	}
	if _, err := ComputeLoss(nil, nil, 0, 0, 0.2, 11); !errors.Is(err, ErrInvalidImageSize) {
		t.Errorf("empty image error = %v, want ErrInvalidImageSize", err)
	}
}

func TestGaussianKernelNormalized(t *testing.T) {
	k := gaussianKernel(11, 1.5)
	sum := 0.0
	for _, v := range k {
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("kernel sum = %v, want 1", sum)
	}
	if k[0] != k[10] || k[5] <= k[4] {
		t.Errorf("kernel not symmetric and peaked: %v", k)
	}
}
