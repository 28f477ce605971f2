package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/gsplat"
)

// Uniform block sizes. Every field is a 16-byte vector or a mat4x4, so the
// WGSL layout has no implicit padding.
const (
	projectParamsSize = 176
	shadeParamsSize   = 32
	rasterParamsSize  = 32
)

// minBufferSize keeps zero-length inputs bindable.
const minBufferSize = 16

func bufferSize(n int) uint64 {
	return uint64(max(n, minBufferSize)+3) &^ 3
}

func putF32(b []byte, i int, v float64) {
	binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(float32(v)))
}

func putU32(b []byte, i int, v uint32) {
	binary.LittleEndian.PutUint32(b[4*i:], v)
}

func getF32(b []byte, i int) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
}

func getU32(b []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(b[4*i:])
}

// f32Bytes narrows v to little-endian float32.
func f32Bytes(v []float64) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		putF32(b, i, x)
	}
	return b
}

func putMat4(b []byte, word int, m geom.Mat4) {
	for k, v := range m.ColumnMajor32() {
		binary.LittleEndian.PutUint32(b[4*(word+k):], math.Float32bits(v))
	}
}

// projectParams encodes ProjectParams from project.wgsl.
func projectParams(in *gsplat.ProjectInput) []byte {
	cam := &in.Camera
	grid := cam.Grid()
	b := make([]byte, projectParamsSize)
	putMat4(b, 0, cam.View)
	putMat4(b, 16, cam.Proj)
	putF32(b, 32, cam.Fx)
	putF32(b, 33, cam.Fy)
	putF32(b, 34, cam.Cx)
	putF32(b, 35, cam.Cy)
	putF32(b, 36, in.GlobalScale)
	putF32(b, 37, in.ClipThresh)
	putF32(b, 38, float64(cam.Width))
	putF32(b, 39, float64(cam.Height))
	putU32(b, 40, uint32(grid.TilesX()))
	putU32(b, 41, uint32(grid.TilesY()))
	putU32(b, 42, uint32(in.Len()))
	return b
}

// unpackProjection widens the footprints written by project.wgsl into p.
// Tile counts are recomputed on the host so that binning emits exactly the
// rectangle it later walks.
func unpackProjection(b []byte, p *gsplat.Projection) {
	for i := range p.Len() {
		w := i * projectStride
		radius := int(getF32(b, w+6))
		if radius <= 0 {
			continue
		}
		g := gsplat.Projected{
			XY:     geom.Vec2{X: getF32(b, w), Y: getF32(b, w+1)},
			Depth:  getF32(b, w+2),
			Conic:  geom.V3(getF32(b, w+3), getF32(b, w+4), getF32(b, w+5)),
			Radius: radius,
		}
		for k := range 6 {
			g.Cov3D[k] = getF32(b, w+8+k)
		}
		minX, minY, maxX, maxY := gsplat.TileRect(g.XY, radius, p.Grid)
		g.TilesHit = (maxX - minX) * (maxY - minY)
		if g.TilesHit <= 0 {
			continue
		}
		p.Set(i, g)
	}
}

// shadeParams encodes ShadeParams from shade.wgsl.
func shadeParams(in *gsplat.ShadeInput) []byte {
	b := make([]byte, shadeParamsSize)
	putF32(b, 0, in.CameraPos.X)
	putF32(b, 1, in.CameraPos.Y)
	putF32(b, 2, in.CameraPos.Z)
	putU32(b, 4, uint32(in.Len()))
	putU32(b, 5, uint32(gsplat.NumBases(in.Degree)-1))
	putU32(b, 6, uint32(in.ActiveDegree))
	return b
}

func unpackColors(b []byte, n int) []geom.Vec3 {
	out := make([]geom.Vec3, n)
	for i := range out {
		out[i] = geom.V3(getF32(b, 3*i), getF32(b, 3*i+1), getF32(b, 3*i+2))
	}
	return out
}

// rasterParams encodes RasterParams from rasterize.wgsl.
func rasterParams(in *gsplat.RasterInput) []byte {
	grid := in.Proj.Grid
	b := make([]byte, rasterParamsSize)
	putU32(b, 0, uint32(grid.Width()))
	putU32(b, 1, uint32(grid.Height()))
	putU32(b, 2, uint32(grid.TilesX()))
	putF32(b, 4, in.Background.X)
	putF32(b, 5, in.Background.Y)
	putF32(b, 6, in.Background.Z)
	return b
}

// packSplats interleaves what rasterize.wgsl reads per Gaussian.
func packSplats(in *gsplat.RasterInput) []byte {
	p := in.Proj
	b := make([]byte, 4*splatStride*p.Len())
	for i := range p.Len() {
		w := i * splatStride
		putF32(b, w, p.XY[i].X)
		putF32(b, w+1, p.XY[i].Y)
		putF32(b, w+2, p.Conics[i].X)
		putF32(b, w+3, p.Conics[i].Y)
		putF32(b, w+4, p.Conics[i].Z)
		putF32(b, w+5, in.Opacities[i])
		putF32(b, w+6, in.Colors[i].X)
		putF32(b, w+7, in.Colors[i].Y)
		putF32(b, w+8, in.Colors[i].Z)
	}
	return b
}

func packSorted(bins *gsplat.Bins) []byte {
	b := make([]byte, 4*bins.Count())
	for k, s := range bins.Sorted {
		putU32(b, k, uint32(s.Gaussian))
	}
	return b
}

func packRanges(bins *gsplat.Bins) []byte {
	b := make([]byte, 8*len(bins.Ranges))
	for t, r := range bins.Ranges {
		putU32(b, 2*t, uint32(r.Start))
		putU32(b, 2*t+1, uint32(r.End))
	}
	return b
}

// unpackRaster copies the three raster outputs into s.
func unpackRaster(color, finalT, finalEnd []byte, s *gsplat.RasterState) {
	for i := range s.Color {
		s.Color[i] = getF32(color, i)
	}
	for i := range s.FinalT {
		s.FinalT[i] = getF32(finalT, i)
		s.FinalEnd[i] = int32(getU32(finalEnd, i))
	}
}
