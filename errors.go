package splat

import (
	"errors"

	"github.com/gogpu/splat/internal/gsplat"
)

// Configuration errors, reported by LoadConfig, Config.Validate and NewModel.
var (
	ErrInvalidConfig   = errors.New("splat: invalid configuration")
	ErrEmptyPointCloud = errors.New("splat: empty point cloud")
	ErrNoCameras       = errors.New("splat: scene has no cameras")
	ErrInvalidCamera   = errors.New("splat: invalid camera")

	// ErrLengthMismatch is returned when per-Gaussian arrays are not index-aligned.
	ErrLengthMismatch = gsplat.ErrLengthMismatch

	// ErrInvalidDegree is returned for SH degrees outside [0, 4].
	ErrInvalidDegree = gsplat.ErrInvalidDegree
)

// ErrInvalidImageSize is returned when an image does not match the size a
// camera renders at.
var ErrInvalidImageSize = gsplat.ErrInvalidImageSize
