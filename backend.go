package splat

import "github.com/gogpu/splat/internal/gsplat"

// Backend executes projection, shading and rasterization together with
// their backward passes. Package gpu provides a GPU implementation; the
// CPU reference executor is returned by NewCPUBackend.
type Backend = gsplat.Backend

// NewCPUBackend returns the reference CPU executor backed by a worker pool
// of the given size (0 means GOMAXPROCS).
func NewCPUBackend(workers int) Backend {
	return gsplat.NewCPU(workers)
}
