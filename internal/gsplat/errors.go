package gsplat

import "errors"

var (
	// ErrLengthMismatch is returned when per-Gaussian buffers are not index-aligned.
	ErrLengthMismatch = errors.New("gsplat: buffer length mismatch")

	// ErrInvalidImageSize is returned for non-positive image dimensions.
	ErrInvalidImageSize = errors.New("gsplat: invalid image size")

	// ErrStaleState is returned when a backward pass receives a state whose
	// upstream gradient does not match its shape.
	ErrStaleState = errors.New("gsplat: upstream gradient does not match saved state")
)
