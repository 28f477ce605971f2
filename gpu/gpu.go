// Package gpu provides the WebGPU training backend.
//
// The backend runs projection, shading and rasterization as compute shaders
// on a Vulkan device through gogpu/wgpu; binning and every backward stage
// run on a CPU worker pool. Initialization failures are returned to the
// caller; there is no silent fallback to the CPU backend.
//
// Usage:
//
//	backend, err := gpu.New(cfg.Parallel.Workers)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	model, err := splat.NewModel(scene, cfg, backend)
//
// Builds with -tags nogpu keep this API but New always returns
// ErrUnavailable.
package gpu

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/splat"
	gpuimpl "github.com/gogpu/splat/internal/gpu"
)

var (
	// ErrUnavailable is returned when no GPU device can be opened.
	ErrUnavailable = gpuimpl.ErrUnavailable

	// ErrProvider is returned by NewShared for providers without HAL access.
	ErrProvider = gpuimpl.ErrProvider
)

// New opens a private GPU device. workers sizes the CPU pool used for
// binning and the backward stages (0 means GOMAXPROCS).
func New(workers int) (splat.Backend, error) {
	b, err := gpuimpl.New(workers)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewShared builds a backend on the device of an existing gogpu application,
// avoiding a second GPU instance. The provider must also implement
// HalDevice() any and HalQueue() any. Closing the backend leaves the shared
// device open.
func NewShared(provider gpucontext.DeviceProvider, workers int) (splat.Backend, error) {
	if provider == nil {
		return nil, ErrProvider
	}
	b, err := gpuimpl.NewShared(provider, workers)
	if err != nil {
		return nil, err
	}
	return b, nil
}
