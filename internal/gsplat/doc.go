// Package gsplat implements the differentiable stages of tile-based Gaussian
// splatting: projection, spherical-harmonic shading, tile binning and
// front-to-back alpha compositing, each with its backward pass.
//
// The per-element math (one Gaussian, one pixel) lives in plain functions so
// that every executor shares it. The CPU executor fans those functions out
// over a worker pool; the GPU executor in internal/gpu runs WGSL ports of the
// forward kernels and reuses the host math for binning and the backward
// stages.
//
// Buffers are flat float64 slices with fixed strides:
//
//	means      3 per Gaussian
//	logScales  3 per Gaussian
//	quats      4 per Gaussian (w, x, y, z), not necessarily normalized
//	shDC       3 per Gaussian
//	shRest     3*(B-1) per Gaussian, basis-major then channel
//
// A forward call returns a state value that owns everything its backward
// needs. States are immutable once returned and must be consumed before the
// Gaussian set is restructured.
package gsplat
