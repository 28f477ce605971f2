package geom

// Mat3 is a row-major 3x3 matrix: m[row][col].
type Mat3 [3][3]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Diag3 returns a diagonal matrix with v on the diagonal.
func Diag3(v Vec3) Mat3 {
	return Mat3{{v.X, 0, 0}, {0, v.Y, 0}, {0, 0, v.Z}}
}

// Mul returns the matrix product m * n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var r Mat3
	for i := range 3 {
		for j := range 3 {
			r[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return r
}

// Transpose returns mᵀ.
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		{m[0][0], m[1][0], m[2][0]},
		{m[0][1], m[1][1], m[2][1]},
		{m[0][2], m[1][2], m[2][2]},
	}
}

// MulVec returns m * v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Add returns m + n.
func (m Mat3) Add(n Mat3) Mat3 {
	var r Mat3
	for i := range 3 {
		for j := range 3 {
			r[i][j] = m[i][j] + n[i][j]
		}
	}
	return r
}

// Scale returns m with every element multiplied by s.
func (m Mat3) Scale(s float64) Mat3 {
	var r Mat3
	for i := range 3 {
		for j := range 3 {
			r[i][j] = m[i][j] * s
		}
	}
	return r
}

// Row returns row i as a vector.
func (m Mat3) Row(i int) Vec3 { return Vec3{m[i][0], m[i][1], m[i][2]} }

// Mat4 is a row-major 4x4 matrix: m[row][col].
type Mat4 [4][4]float64

// Identity4 returns the 4x4 identity matrix.
func Identity4() Mat4 {
	return Mat4{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// Mul returns the matrix product m * n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var r Mat4
	for i := range 4 {
		for j := range 4 {
			r[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j] + m[i][3]*n[3][j]
		}
	}
	return r
}

// MulPoint returns m * (p, 1).
func (m Mat4) MulPoint(p Vec3) Vec4 {
	return Vec4{
		m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z + m[0][3],
		m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z + m[1][3],
		m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z + m[2][3],
		m[3][0]*p.X + m[3][1]*p.Y + m[3][2]*p.Z + m[3][3],
	}
}

// TransformPoint returns the first three components of m * (p, 1).
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	h := m.MulPoint(p)
	return Vec3{h.X, h.Y, h.Z}
}

// Rotation returns the upper-left 3x3 block.
func (m Mat4) Rotation() Mat3 {
	return Mat3{
		{m[0][0], m[0][1], m[0][2]},
		{m[1][0], m[1][1], m[1][2]},
		{m[2][0], m[2][1], m[2][2]},
	}
}

// Translation returns the last column's first three components.
func (m Mat4) Translation() Vec3 { return Vec3{m[0][3], m[1][3], m[2][3]} }

// Affine assembles a 4x4 transform from a rotation block and translation.
func Affine(r Mat3, t Vec3) Mat4 {
	return Mat4{
		{r[0][0], r[0][1], r[0][2], t.X},
		{r[1][0], r[1][1], r[1][2], t.Y},
		{r[2][0], r[2][1], r[2][2], t.Z},
		{0, 0, 0, 1},
	}
}

// ColumnMajor32 flattens m in column-major float32 order, the layout WGSL
// expects for mat4x4<f32>.
func (m Mat4) ColumnMajor32() [16]float32 {
	var out [16]float32
	for c := range 4 {
		for r := range 4 {
			out[c*4+r] = float32(m[r][c])
		}
	}
	return out
}
