package scene

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/splat"
)

type plyFormat int

const (
	plyASCII plyFormat = iota
	plyBinaryLE
	plyBinaryBE
)

// plyProperty is one scalar property of the vertex element.
type plyProperty struct {
	name string
	size int
	kind byte // 'i' signed, 'u' unsigned, 'f' float
}

var plyTypes = map[string]plyProperty{
	"char": {size: 1, kind: 'i'}, "int8": {size: 1, kind: 'i'},
	"uchar": {size: 1, kind: 'u'}, "uint8": {size: 1, kind: 'u'},
	"short": {size: 2, kind: 'i'}, "int16": {size: 2, kind: 'i'},
	"ushort": {size: 2, kind: 'u'}, "uint16": {size: 2, kind: 'u'},
	"int": {size: 4, kind: 'i'}, "int32": {size: 4, kind: 'i'},
	"uint": {size: 4, kind: 'u'}, "uint32": {size: 4, kind: 'u'},
	"float": {size: 4, kind: 'f'}, "float32": {size: 4, kind: 'f'},
	"double": {size: 8, kind: 'f'}, "float64": {size: 8, kind: 'f'},
}

// ReadPointCloudFile reads a point cloud PLY from path.
func ReadPointCloudFile(path string) (splat.PointCloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return splat.PointCloud{}, fmt.Errorf("opening point cloud: %w", err)
	}
	defer f.Close()
	pc, err := ReadPointCloud(f)
	if err != nil {
		return splat.PointCloud{}, fmt.Errorf("%s: %w", path, err)
	}
	return pc, nil
}

// ReadPointCloud reads the x, y, z and optional red, green, blue
// properties of the vertex element of an ASCII or binary PLY. Integer
// colors are scaled by their type's maximum; points without colors are
// mid-gray. The vertex element must come first.
func ReadPointCloud(r io.Reader) (splat.PointCloud, error) {
	br := bufio.NewReader(r)
	format, n, props, err := readPLYHeader(br)
	if err != nil {
		return splat.PointCloud{}, err
	}

	idx := map[string]int{}
	for i, p := range props {
		idx[p.name] = i
	}
	for _, name := range []string{"x", "y", "z"} {
		if _, ok := idx[name]; !ok {
			return splat.PointCloud{}, fmt.Errorf("%w: vertex has no %q property", ErrInvalidProject, name)
		}
	}
	ri, hasR := idx["red"]
	gi, hasG := idx["green"]
	bi, hasB := idx["blue"]
	hasColor := hasR && hasG && hasB

	pc := splat.PointCloud{XYZ: make([]float64, 3*n), RGB: make([]float64, 3*n)}
	vals := make([]float64, len(props))
	next := rowReader(br, format, props)
	for i := range n {
		if err := next(vals); err != nil {
			return splat.PointCloud{}, fmt.Errorf("%w: vertex %d: %v", ErrInvalidProject, i, err)
		}
		pc.XYZ[3*i] = vals[idx["x"]]
		pc.XYZ[3*i+1] = vals[idx["y"]]
		pc.XYZ[3*i+2] = vals[idx["z"]]
		if !hasColor {
			pc.RGB[3*i], pc.RGB[3*i+1], pc.RGB[3*i+2] = 0.5, 0.5, 0.5
			continue
		}
		for c, j := range [3]int{ri, gi, bi} {
			pc.RGB[3*i+c] = unitColor(vals[j], props[j])
		}
	}
	return pc, nil
}

func readPLYHeader(br *bufio.Reader) (plyFormat, int, []plyProperty, error) {
	line, err := br.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "ply" {
		return 0, 0, nil, fmt.Errorf("%w: not a PLY file", ErrInvalidProject)
	}
	var (
		format   plyFormat
		n        = -1
		props    []plyProperty
		inVertex bool
	)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return 0, 0, nil, fmt.Errorf("%w: truncated PLY header", ErrInvalidProject)
		}
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "end_header":
			if n < 0 {
				return 0, 0, nil, fmt.Errorf("%w: PLY has no vertex element", ErrInvalidProject)
			}
			return format, n, props, nil
		case "format":
			if len(f) < 2 {
				return 0, 0, nil, fmt.Errorf("%w: malformed format line", ErrInvalidProject)
			}
			switch f[1] {
			case "ascii":
				format = plyASCII
			case "binary_little_endian":
				format = plyBinaryLE
			case "binary_big_endian":
				format = plyBinaryBE
			default:
				return 0, 0, nil, fmt.Errorf("%w: unknown PLY format %q", ErrInvalidProject, f[1])
			}
		case "element":
			if len(f) != 3 {
				return 0, 0, nil, fmt.Errorf("%w: malformed element line", ErrInvalidProject)
			}
			if f[1] == "vertex" {
				if n >= 0 {
					return 0, 0, nil, fmt.Errorf("%w: duplicate vertex element", ErrInvalidProject)
				}
				if n, err = strconv.Atoi(f[2]); err != nil || n < 0 {
					return 0, 0, nil, fmt.Errorf("%w: vertex count %q", ErrInvalidProject, f[2])
				}
				inVertex = true
			} else {
				if n < 0 {
					return 0, 0, nil, fmt.Errorf("%w: element %q precedes vertex", ErrInvalidProject, f[1])
				}
				inVertex = false
			}
		case "property":
			if !inVertex {
				continue
			}
			if len(f) != 3 {
				return 0, 0, nil, fmt.Errorf("%w: unsupported vertex property %q", ErrInvalidProject, strings.TrimSpace(line))
			}
			p, ok := plyTypes[f[1]]
			if !ok {
				return 0, 0, nil, fmt.Errorf("%w: unknown property type %q", ErrInvalidProject, f[1])
			}
			p.name = f[2]
			props = append(props, p)
		}
	}
}

// rowReader returns a func that decodes one vertex into vals.
func rowReader(br *bufio.Reader, format plyFormat, props []plyProperty) func(vals []float64) error {
	if format == plyASCII {
		return func(vals []float64) error {
			line, err := br.ReadString('\n')
			if err != nil && line == "" {
				return err
			}
			f := strings.Fields(line)
			if len(f) < len(props) {
				return fmt.Errorf("%d values, want %d", len(f), len(props))
			}
			for i := range props {
				v, err := strconv.ParseFloat(f[i], 64)
				if err != nil {
					return err
				}
				vals[i] = v
			}
			return nil
		}
	}
	var order binary.ByteOrder = binary.LittleEndian
	if format == plyBinaryBE {
		order = binary.BigEndian
	}
	size := 0
	for _, p := range props {
		size += p.size
	}
	buf := make([]byte, size)
	return func(vals []float64) error {
		if _, err := io.ReadFull(br, buf); err != nil {
			return err
		}
		off := 0
		for i, p := range props {
			vals[i] = decodeScalar(buf[off:off+p.size], p, order)
			off += p.size
		}
		return nil
	}
}

func decodeScalar(b []byte, p plyProperty, order binary.ByteOrder) float64 {
	switch {
	case p.kind == 'f' && p.size == 4:
		return float64(math.Float32frombits(order.Uint32(b)))
	case p.kind == 'f':
		return math.Float64frombits(order.Uint64(b))
	case p.size == 1 && p.kind == 'u':
		return float64(b[0])
	case p.size == 1:
		return float64(int8(b[0]))
	case p.size == 2 && p.kind == 'u':
		return float64(order.Uint16(b))
	case p.size == 2:
		return float64(int16(order.Uint16(b)))
	case p.kind == 'u':
		return float64(order.Uint32(b))
	default:
		return float64(int32(order.Uint32(b)))
	}
}

// unitColor maps a color property to [0, 1].
func unitColor(v float64, p plyProperty) float64 {
	if p.kind == 'f' {
		return min(max(v, 0), 1)
	}
	return min(max(v/float64(uint64(1)<<(8*p.size)-1), 0), 1)
}
