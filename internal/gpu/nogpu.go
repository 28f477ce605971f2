//go:build nogpu

package gpu

import "github.com/gogpu/splat/internal/gsplat"

// Backend is unavailable in nogpu builds.
type Backend struct {
	*gsplat.CPU
}

// New always fails in nogpu builds.
func New(int) (*Backend, error) { return nil, ErrUnavailable }

// NewShared always fails in nogpu builds.
func NewShared(any, int) (*Backend, error) { return nil, ErrUnavailable }

// Adapter returns the empty string.
func (b *Backend) Adapter() string { return "" }
