package export

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
)

// SplatRecordSize is the byte size of one .splat record.
const SplatRecordSize = 32

const shC0 = 0.28209479177387814

// WriteSplat writes g in the .splat layout: position and scale as float32,
// RGBA and the normalized quaternion (w, x, y, z) as bytes. Records are
// ordered by decreasing exp(sum of log scales) * opacity so viewers can
// stream the most visible splats first. Only the DC color is kept.
func WriteSplat(w io.Writer, g *Gaussians) error {
	if err := g.validate(); err != nil {
		return err
	}
	n := g.Len()
	order := make([]int, n)
	weight := make([]float64, n)
	for i := range n {
		order[i] = i
		weight[i] = math.Exp(g.LogScales[3*i]+g.LogScales[3*i+1]+g.LogScales[3*i+2]) * sigmoid(g.RawOpacity[i])
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case weight[a] > weight[b]:
			return -1
		case weight[a] < weight[b]:
			return 1
		}
		return 0
	})

	bw := bufio.NewWriter(w)
	var rec [SplatRecordSize]byte
	for _, i := range order {
		for c := range 3 {
			binary.LittleEndian.PutUint32(rec[4*c:], math.Float32bits(float32(g.Means[3*i+c])))
			binary.LittleEndian.PutUint32(rec[12+4*c:], math.Float32bits(float32(math.Exp(g.LogScales[3*i+c]))))
			rec[24+c] = unitByte(0.5 + shC0*g.SHDC[3*i+c])
		}
		rec[27] = unitByte(sigmoid(g.RawOpacity[i]))

		q := g.Quats[4*i : 4*i+4]
		norm := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
		for c := range 4 {
			v := 0.0
			if norm > 0 {
				v = q[c] / norm
			} else if c == 0 {
				v = 1
			}
			rec[28+c] = byte(math.Max(0, math.Min(255, math.Round(v*128+128))))
		}
		if _, err := bw.Write(rec[:]); err != nil {
			return fmt.Errorf("writing splat record: %w", err)
		}
	}
	return bw.Flush()
}

// unitByte maps [0, 1] to [0, 255] with clamping.
func unitByte(v float64) byte {
	return byte(math.Max(0, math.Min(255, math.Round(v*255))))
}
