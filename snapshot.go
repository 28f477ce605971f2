package splat

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/gogpu/splat/internal/export"
)

// exportable returns the Gaussians in export layout. With keepCRS the means
// and scales are mapped back into the source coordinate system.
func (m *Model) exportable(keepCRS bool) *export.Gaussians {
	s := m.set.Clone()
	if keepCRS && m.transform.Scale != 0 {
		logScale := math.Log(m.transform.Scale)
		for i := range s.Len() {
			p := m.transform.Inverse([3]float64{s.Means[3*i], s.Means[3*i+1], s.Means[3*i+2]})
			copy(s.Means[3*i:3*i+3], p[:])
			for c := range 3 {
				s.LogScales[3*i+c] -= logScale
			}
		}
	}
	return &export.Gaussians{
		Degree:     s.Degree,
		Means:      s.Means,
		LogScales:  s.LogScales,
		Quats:      s.Quats,
		SHDC:       s.SHDC,
		SHRest:     s.SHRest,
		RawOpacity: s.RawOpacity,
	}
}

// WritePLY writes the Gaussians as a binary PLY.
func (m *Model) WritePLY(w io.Writer, keepCRS bool) error {
	return export.WritePLY(w, m.exportable(keepCRS))
}

// WriteSplat writes the Gaussians in the 32-byte .splat layout.
func (m *Model) WriteSplat(w io.Writer, keepCRS bool) error {
	return export.WriteSplat(w, m.exportable(keepCRS))
}

// SavePLY writes a PLY snapshot to path.
func (m *Model) SavePLY(path string, keepCRS bool) error {
	return saveFile(path, func(w io.Writer) error { return m.WritePLY(w, keepCRS) })
}

// SaveSplat writes a .splat snapshot to path.
func (m *Model) SaveSplat(path string, keepCRS bool) error {
	return saveFile(path, func(w io.Writer) error { return m.WriteSplat(w, keepCRS) })
}

func saveFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	if err := write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	Logger().Info("splat: snapshot saved", "path", path)
	return nil
}
