package export

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

// plyProperties returns the vertex property names in file order.
func plyProperties(restBases int) []string {
	props := []string{"x", "y", "z", "nx", "ny", "nz", "f_dc_0", "f_dc_1", "f_dc_2"}
	for i := range 3 * restBases {
		props = append(props, "f_rest_"+strconv.Itoa(i))
	}
	props = append(props, "opacity", "scale_0", "scale_1", "scale_2", "rot_0", "rot_1", "rot_2", "rot_3")
	return props
}

// WritePLY writes g as a binary little-endian PLY. Scales and opacity stay
// in log and logit space; f_rest is channel-major as viewers expect.
func WritePLY(w io.Writer, g *Gaussians) error {
	if err := g.validate(); err != nil {
		return err
	}
	n := g.Len()
	rb := g.restBases()
	props := plyProperties(rb)

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ply\nformat binary_little_endian 1.0\ncomment Generated by splat\nelement vertex %d\n", n)
	for _, p := range props {
		fmt.Fprintf(bw, "property float %s\n", p)
	}
	bw.WriteString("end_header\n")

	row := make([]float32, len(props))
	buf := make([]byte, 4*len(row))
	for i := range n {
		k := 0
		put := func(v float64) {
			row[k] = float32(v)
			k++
		}
		for c := range 3 {
			put(g.Means[3*i+c])
		}
		put(0)
		put(0)
		put(0)
		for c := range 3 {
			put(g.SHDC[3*i+c])
		}
		for c := range 3 {
			for b := range rb {
				put(g.SHRest[(i*rb+b)*3+c])
			}
		}
		put(g.RawOpacity[i])
		for c := range 3 {
			put(g.LogScales[3*i+c])
		}
		for c := range 4 {
			put(g.Quats[4*i+c])
		}
		for j, v := range row {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(v))
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("writing ply vertex %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ReadPLY reads a file written by WritePLY.
func ReadPLY(r io.Reader) (*Gaussians, error) {
	br := bufio.NewReader(r)
	n := -1
	var props []string
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: reading ply header: %v", ErrMalformed, err)
		}
		line = strings.TrimSpace(line)
		if line == "end_header" {
			break
		}
		f := strings.Fields(line)
		switch {
		case len(f) == 3 && f[0] == "format" && f[1] != "binary_little_endian":
			return nil, fmt.Errorf("%w: unsupported ply format %q", ErrMalformed, f[1])
		case len(f) == 3 && f[0] == "element" && f[1] == "vertex":
			if n, err = strconv.Atoi(f[2]); err != nil || n < 0 {
				return nil, fmt.Errorf("%w: vertex count %q", ErrMalformed, f[2])
			}
		case len(f) == 3 && f[0] == "property":
			if f[1] != "float" {
				return nil, fmt.Errorf("%w: property %s has type %s", ErrMalformed, f[2], f[1])
			}
			props = append(props, f[2])
		}
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: missing vertex element", ErrMalformed)
	}
	rest := 0
	for _, p := range props {
		if strings.HasPrefix(p, "f_rest_") {
			rest++
		}
	}
	if rest%3 != 0 {
		return nil, fmt.Errorf("%w: %d f_rest properties", ErrMalformed, rest)
	}
	rb := rest / 3
	degree := int(math.Round(math.Sqrt(float64(rb+1)))) - 1
	if (degree+1)*(degree+1)-1 != rb {
		return nil, fmt.Errorf("%w: %d rest bases is not a full SH degree", ErrMalformed, rb)
	}
	if want := plyProperties(rb); !slices.Equal(props, want) {
		return nil, fmt.Errorf("%w: unexpected property layout", ErrMalformed)
	}

	g := &Gaussians{
		Degree:     degree,
		Means:      make([]float64, 3*n),
		LogScales:  make([]float64, 3*n),
		Quats:      make([]float64, 4*n),
		SHDC:       make([]float64, 3*n),
		SHRest:     make([]float64, 3*rb*n),
		RawOpacity: make([]float64, n),
	}
	buf := make([]byte, 4*len(props))
	for i := range n {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("%w: reading vertex %d: %v", ErrMalformed, i, err)
		}
		k := 0
		next := func() float64 {
			v := math.Float32frombits(binary.LittleEndian.Uint32(buf[4*k:]))
			k++
			return float64(v)
		}
		for c := range 3 {
			g.Means[3*i+c] = next()
		}
		k += 3
		for c := range 3 {
			g.SHDC[3*i+c] = next()
		}
		for c := range 3 {
			for b := range rb {
				g.SHRest[(i*rb+b)*3+c] = next()
			}
		}
		g.RawOpacity[i] = next()
		for c := range 3 {
			g.LogScales[3*i+c] = next()
		}
		for c := range 4 {
			g.Quats[4*i+c] = next()
		}
	}
	return g, nil
}
