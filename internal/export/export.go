// Package export writes trained Gaussians in the PLY layout read by common
// splat viewers and in the compact 32-byte .splat format.
package export

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is returned for inconsistent Gaussian buffers or unreadable files.
var ErrMalformed = errors.New("export: malformed gaussians")

// Gaussians is a flat, index-aligned parameter set in training layout.
// SHRest is basis-major then channel.
type Gaussians struct {
	Degree     int
	Means      []float64
	LogScales  []float64
	Quats      []float64
	SHDC       []float64
	SHRest     []float64
	RawOpacity []float64
}

// Len returns the number of Gaussians.
func (g *Gaussians) Len() int { return len(g.RawOpacity) }

// restBases returns the number of non-DC SH bases per channel.
func (g *Gaussians) restBases() int { return (g.Degree+1)*(g.Degree+1) - 1 }

func (g *Gaussians) validate() error {
	n := g.Len()
	if g.Degree < 0 || g.Degree > 4 {
		return fmt.Errorf("%w: degree %d", ErrMalformed, g.Degree)
	}
	if len(g.Means) != 3*n || len(g.LogScales) != 3*n || len(g.Quats) != 4*n ||
		len(g.SHDC) != 3*n || len(g.SHRest) != 3*g.restBases()*n {
		return fmt.Errorf("%w: buffers do not describe %d gaussians", ErrMalformed, n)
	}
	return nil
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
