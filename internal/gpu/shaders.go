package gpu

import _ "embed"

//go:embed shaders/project.wgsl
var projectShaderWGSL string

//go:embed shaders/shade.wgsl
var shadeShaderWGSL string

//go:embed shaders/rasterize.wgsl
var rasterizeShaderWGSL string

// Per-Gaussian record widths shared with the shaders.
const (
	projectStride = 14 // PROJECT_STRIDE in project.wgsl
	splatStride   = 9  // SPLAT_STRIDE in rasterize.wgsl

	gaussianWorkgroup = 256
)

// Sources returns every embedded shader keyed by name.
func Sources() map[string]string {
	return map[string]string{
		"project":   projectShaderWGSL,
		"shade":     shadeShaderWGSL,
		"rasterize": rasterizeShaderWGSL,
	}
}
