package splat

import "math"

// SSIM stabilizers for images in [0, 1].
const (
	ssimC1 = 0.01 * 0.01
	ssimC2 = 0.03 * 0.03

	ssimSigma = 1.5
)

// gaussianKernel returns a normalized 1D Gaussian of the given odd size.
func gaussianKernel(size int, sigma float64) []float64 {
	k := make([]float64, size)
	r := size / 2
	sum := 0.0
	for i := range k {
		x := float64(i - r)
		k[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// blurrer applies a separable Gaussian filter with zero padding. With a
// symmetric kernel the operator is self-adjoint, so the same filter maps
// gradients back.
type blurrer struct {
	k    []float64
	w, h int
	tmp  []float64
}

func newBlurrer(k []float64, w, h int) *blurrer {
	return &blurrer{k: k, w: w, h: h, tmp: make([]float64, w*h)}
}

// blur writes the filtered src into dst. src and dst are w*h planes.
func (b *blurrer) blur(dst, src []float64) {
	r := len(b.k) / 2
	w, h := b.w, b.h
	for y := range h {
		row := src[y*w : (y+1)*w]
		for x := range w {
			s := 0.0
			for j, kv := range b.k {
				if xx := x + j - r; xx >= 0 && xx < w {
					s += kv * row[xx]
				}
			}
			b.tmp[y*w+x] = s
		}
	}
	for y := range h {
		for x := range w {
			s := 0.0
			for j, kv := range b.k {
				if yy := y + j - r; yy >= 0 && yy < h {
					s += kv * b.tmp[yy*w+x]
				}
			}
			dst[y*w+x] = s
		}
	}
}

// ssim returns the mean SSIM of two interleaved RGB images and, when grad
// is non-nil, adds d(mean SSIM)/d(x) scaled by gradScale into it.
func ssim(x, y []float64, w, h, window int, grad []float64, gradScale float64) float64 {
	n := w * h
	b := newBlurrer(gaussianKernel(window, ssimSigma), w, h)
	plane := func() []float64 { return make([]float64, n) }
	xc, yc := plane(), plane()
	sq := plane()
	mx, my, exx, eyy, exy := plane(), plane(), plane(), plane(), plane()
	dmx, dexx, dexy := plane(), plane(), plane()

	total := 0.0
	norm := 1 / float64(3*n)
	for c := range 3 {
		for i := range n {
			xc[i] = x[3*i+c]
			yc[i] = y[3*i+c]
		}
		b.blur(mx, xc)
		b.blur(my, yc)
		for i := range n {
			sq[i] = xc[i] * xc[i]
		}
		b.blur(exx, sq)
		for i := range n {
			sq[i] = yc[i] * yc[i]
		}
		b.blur(eyy, sq)
		for i := range n {
			sq[i] = xc[i] * yc[i]
		}
		b.blur(exy, sq)

		for i := range n {
			ux, uy := mx[i], my[i]
			a1 := 2*ux*uy + ssimC1
			a2 := 2*(exy[i]-ux*uy) + ssimC2
			b1 := ux*ux + uy*uy + ssimC1
			b2 := (exx[i] - ux*ux) + (eyy[i] - uy*uy) + ssimC2
			s := a1 * a2 / (b1 * b2)
			total += s
			if grad != nil {
				dmx[i] = s * (2*uy/a1 - 2*uy/a2 - 2*ux/b1 + 2*ux/b2)
				dexx[i] = -s / b2
				dexy[i] = 2 * s / a2
			}
		}
		if grad == nil {
			continue
		}
		b.blur(dmx, dmx)
		b.blur(dexx, dexx)
		b.blur(dexy, dexy)
		for i := range n {
			d := dmx[i] + 2*xc[i]*dexx[i] + yc[i]*dexy[i]
			grad[3*i+c] += gradScale * norm * d
		}
	}
	return total * norm
}
