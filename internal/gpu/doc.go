// Package gpu runs the forward stages of the splatting pipeline as WebGPU
// compute shaders through the gogpu/wgpu HAL (Pure Go, zero CGO).
//
// # Architecture
//
// Backend embeds the CPU executor and replaces three of its stages:
//
//	Project   -> project.wgsl, one invocation per Gaussian
//	Shade     -> shade.wgsl, one invocation per Gaussian
//	Rasterize -> host binning, then rasterize.wgsl with one workgroup per tile
//
// Binning and every backward stage stay on the CPU worker pool. The GPU
// stages read and write float32; results are widened to float64 on readback
// so the backward passes see the same state types as with the CPU executor.
//
// # Device ownership
//
// New opens a private Vulkan device. NewShared borrows the device and queue
// of an external provider (for example a gogpu application) and never
// destroys them.
//
// # Build tags
//
// Building with -tags nogpu compiles a stub whose constructors return
// ErrUnavailable.
package gpu
