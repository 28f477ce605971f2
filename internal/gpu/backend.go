//go:build !nogpu

package gpu

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/splat/internal/gsplat"
)

// Backend executes projection, shading and rasterization on the GPU.
// Binning and the backward stages run on the embedded CPU executor. The
// rasterization backward recomposites in float64 first, so its gradients are
// those of the CPU forward over the same bins; the GPU image differs from
// that forward by float32 rounding.
//
// A Backend serializes its dispatches; it is safe for concurrent use but
// gains nothing from it.
type Backend struct {
	*gsplat.CPU

	log     backendLog
	mu      sync.Mutex
	dev     *halDevice
	project *kernel
	shade   *kernel
	raster  *kernel
}

var _ gsplat.Backend = (*Backend)(nil)

// New opens a private GPU device. workers sizes the CPU pool used for
// binning and backward stages (0 means GOMAXPROCS). There is no CPU
// fallback: any initialization failure is returned.
func New(workers int) (*Backend, error) {
	dev, err := openDevice()
	if err != nil {
		return nil, err
	}
	return newBackend(dev, workers)
}

// NewShared builds a backend on the device of an external provider. The
// provider must expose HalDevice() any and HalQueue() any; its device is
// left open by Close.
func NewShared(provider any, workers int) (*Backend, error) {
	dev, err := sharedDevice(provider)
	if err != nil {
		return nil, err
	}
	return newBackend(dev, workers)
}

func newBackend(dev *halDevice, workers int) (*Backend, error) {
	b := &Backend{dev: dev}
	var err error
	if b.project, err = newKernel(dev.device, "project", projectShaderWGSL, 3, 1); err != nil {
		b.release()
		return nil, err
	}
	if b.shade, err = newKernel(dev.device, "shade", shadeShaderWGSL, 3, 1); err != nil {
		b.release()
		return nil, err
	}
	if b.raster, err = newKernel(dev.device, "rasterize", rasterizeShaderWGSL, 3, 3); err != nil {
		b.release()
		return nil, err
	}
	b.CPU = gsplat.NewCPU(workers)
	b.log.get().Info("gpu: backend initialized", "adapter", dev.adapter, "shared", dev.external)
	return b, nil
}

// Name returns "gpu".
func (b *Backend) Name() string { return "gpu" }

// Adapter returns the name of the GPU adapter in use.
func (b *Backend) Adapter() string { return b.dev.adapter }

// SetLogger receives the logger propagated by splat.SetLogger.
func (b *Backend) SetLogger(l *slog.Logger) { b.log.set(l) }

// Close releases the pipelines, the device when owned, and the CPU pool.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release()
	if b.CPU != nil {
		return b.CPU.Close()
	}
	return nil
}

func (b *Backend) release() {
	if b.dev == nil || b.dev.device == nil {
		return
	}
	for _, k := range []*kernel{b.project, b.shade, b.raster} {
		if k != nil {
			k.destroy(b.dev.device)
		}
	}
	b.project, b.shade, b.raster = nil, nil, nil
	b.dev.destroy()
}

func (b *Backend) run(k *kernel, uniform []byte, inputs [][]byte, outSizes []int, groups [3]uint32) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if k == nil || b.dev.device == nil {
		return nil, fmt.Errorf("gpu: backend closed")
	}
	return b.dev.dispatch(k, uniform, inputs, outSizes, groups)
}

// Project computes every footprint in one dispatch.
func (b *Backend) Project(in *gsplat.ProjectInput) (*gsplat.Projection, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	n := in.Len()
	p := gsplat.NewProjection(in, n)
	if n == 0 {
		return p, nil
	}
	out, err := b.run(b.project, projectParams(in),
		[][]byte{f32Bytes(in.Means), f32Bytes(in.LogScales), f32Bytes(in.Quats)},
		[]int{4 * projectStride * n},
		[3]uint32{workgroups(n, gaussianWorkgroup), 1, 1})
	if err != nil {
		return nil, fmt.Errorf("gpu: project: %w", err)
	}
	unpackProjection(out[0], p)
	return p, nil
}

// Shade evaluates every Gaussian's color in one dispatch.
func (b *Backend) Shade(in *gsplat.ShadeInput) (*gsplat.Shading, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	n := in.Len()
	if n == 0 {
		return &gsplat.Shading{Input: in}, nil
	}
	out, err := b.run(b.shade, shadeParams(in),
		[][]byte{f32Bytes(in.DC), f32Bytes(in.Rest), f32Bytes(in.Means)},
		[]int{4 * 3 * n},
		[3]uint32{workgroups(n, gaussianWorkgroup), 1, 1})
	if err != nil {
		return nil, fmt.Errorf("gpu: shade: %w", err)
	}
	return &gsplat.Shading{Input: in, Colors: unpackColors(out[0], n)}, nil
}

// Rasterize bins on the CPU and composites every tile on the GPU.
func (b *Backend) Rasterize(in *gsplat.RasterInput) (*gsplat.RasterState, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	bins := gsplat.BinGaussians(in.Proj, b.Pool())
	s := gsplat.NewRasterState(in, bins)
	pixels := len(s.FinalT)
	out, err := b.run(b.raster, rasterParams(in),
		[][]byte{packSplats(in), packSorted(bins), packRanges(bins)},
		[]int{4 * 3 * pixels, 4 * pixels, 4 * pixels},
		[3]uint32{uint32(bins.Grid.TilesX()), uint32(bins.Grid.TilesY()), 1})
	if err != nil {
		return nil, fmt.Errorf("gpu: rasterize: %w", err)
	}
	unpackRaster(out[0], out[1], out[2], s)
	b.log.get().Debug("gpu: rasterized", "intersections", bins.Count(), "tiles", bins.Grid.TileCount())
	return s, nil
}

// RasterizeBackward composites the saved bins again in float64 before the
// CPU replay. The kernel decides skips and early stops in float32, so its
// FinalT and FinalEnd can disagree with the replay near the alpha and
// transmittance thresholds.
func (b *Backend) RasterizeBackward(st *gsplat.RasterState, vColor, vAlpha []float64) (*gsplat.RasterGrads, error) {
	replay := gsplat.Composite(st.Input, st.Bins, b.Pool())
	return b.CPU.RasterizeBackward(replay, vColor, vAlpha)
}
