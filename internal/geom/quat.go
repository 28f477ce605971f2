package geom

import "math"

// Quat is a rotation quaternion with real part W.
type Quat struct {
	W, X, Y, Z float64
}

// Norm returns the quaternion's Euclidean norm.
func (q Quat) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalize returns q / |q|. A zero quaternion maps to the identity.
func (q Quat) Normalize() Quat {
	n := q.Norm()
	if n == 0 {
		return Quat{W: 1}
	}
	return Quat{q.W / n, q.X / n, q.Y / n, q.Z / n}
}

// Rotation returns the rotation matrix of the unit quaternion q.
// The caller normalizes q.
func (q Quat) Rotation() Mat3 {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return Mat3{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// RotationVJP maps a gradient on the rotation matrix of unit quaternion q
// back onto the four quaternion components.
func (q Quat) RotationVJP(g Mat3) Quat {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return Quat{
		W: 2 * (-z*g[0][1] + y*g[0][2] + z*g[1][0] - x*g[1][2] - y*g[2][0] + x*g[2][1]),
		X: 2 * (y*g[0][1] + z*g[0][2] + y*g[1][0] - 2*x*g[1][1] - w*g[1][2] + z*g[2][0] + w*g[2][1] - 2*x*g[2][2]),
		Y: 2 * (-2*y*g[0][0] + x*g[0][1] + w*g[0][2] + x*g[1][0] + z*g[1][2] - w*g[2][0] + z*g[2][1] - 2*y*g[2][2]),
		Z: 2 * (-2*z*g[0][0] - w*g[0][1] + x*g[0][2] + w*g[1][0] - 2*z*g[1][1] + y*g[1][2] + x*g[2][0] + y*g[2][1]),
	}
}

// NormalizeVJP maps a gradient taken at q/|q| back onto the unnormalized q.
func (q Quat) NormalizeVJP(g Quat) Quat {
	n := q.Norm()
	if n == 0 {
		return Quat{}
	}
	u := Quat{q.W / n, q.X / n, q.Y / n, q.Z / n}
	d := u.W*g.W + u.X*g.X + u.Y*g.Y + u.Z*g.Z
	return Quat{
		W: (g.W - u.W*d) / n,
		X: (g.X - u.X*d) / n,
		Y: (g.Y - u.Y*d) / n,
		Z: (g.Z - u.Z*d) / n,
	}
}

// RandomQuat returns a uniformly distributed unit quaternion from three
// uniform samples in [0,1).
func RandomQuat(u, v, w float64) Quat {
	su := math.Sqrt(1 - u)
	sv := math.Sqrt(u)
	return Quat{
		W: su * math.Sin(2*math.Pi*v),
		X: su * math.Cos(2*math.Pi*v),
		Y: sv * math.Sin(2*math.Pi*w),
		Z: sv * math.Cos(2*math.Pi*w),
	}
}
