// Package splat trains a 3D Gaussian splatting scene representation from
// posed photographs.
//
// # Overview
//
// A scene is a set of anisotropic 3D Gaussians, each with a position, an
// oriented scale, an opacity and a view-dependent color expressed in
// spherical harmonics. One training step renders the set from a camera,
// compares the result with the photograph and moves every parameter along
// its gradient:
//
//	project  -> 2D footprint (mean, conic, radius, depth) per Gaussian
//	shade    -> RGB per Gaussian from SH and the view direction
//	bin      -> (tile, depth) sorted intersections and per-tile ranges
//	raster   -> front-to-back alpha compositing per 16x16 tile
//	loss     -> (1-λ)·L1 + λ·(1-SSIM)
//	backward -> the same stages in reverse
//	adam     -> per-group parameter update, exponential LR on means
//	density  -> periodic split, clone, prune and opacity reset
//
// # Backends
//
// Stages execute on a Backend selected by the caller: NewCPUBackend runs
// them on a worker pool, and package gpu runs the forward kernels through
// WebGPU compute shaders. Initialization errors are returned, never masked
// by a fallback.
//
// # Quick start
//
//	cfg := splat.DefaultConfig()
//	backend := splat.NewCPUBackend(cfg.Parallel.Workers)
//	defer backend.Close()
//
//	model, err := splat.NewModel(scene, cfg, backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//	trainer := splat.NewTrainer(model, scene)
//	for step := 1; step <= cfg.Train.MaxSteps; step++ {
//	    if _, err := trainer.Step(step); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	err = model.SavePLY("scene.ply", false)
//
// # Logging
//
// The package is silent by default. Call SetLogger to enable structured
// logging through log/slog.
package splat
