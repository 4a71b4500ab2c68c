package geom

import (
	"math"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
)

// Matrix is a row major 4x4 affine transform acting on column vectors.
type Matrix [4][4]float64

func Identity() Matrix {
	return Matrix{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Displacement translates by v.
func Displacement(v Vector3) Matrix {
	m := Identity()
	m[0][3], m[1][3], m[2][3] = v.X, v.Y, v.Z
	return m
}

// Scaling scales uniformly by k about center.
func Scaling(k float64, center model.Point3) Matrix {
	m := Identity()
	m[0][0], m[1][1], m[2][2] = k, k, k
	m[0][3] = center.X * (1 - k)
	m[1][3] = center.Y * (1 - k)
	m[2][3] = center.Z * (1 - k)
	return m
}

// Rotation rotates by angle radians about axis through center, right hand
// rule. A zero axis yields the identity.
func Rotation(angle float64, axis Vector3, center model.Point3) Matrix {
	k := axis.Normalize()
	if k.IsZero() {
		return Identity()
	}
	c, s := math.Cos(angle), math.Sin(angle)
	t := 1 - c

	m := Identity()
	m[0][0] = c + k.X*k.X*t
	m[0][1] = k.X*k.Y*t - k.Z*s
	m[0][2] = k.X*k.Z*t + k.Y*s
	m[1][0] = k.Y*k.X*t + k.Z*s
	m[1][1] = c + k.Y*k.Y*t
	m[1][2] = k.Y*k.Z*t - k.X*s
	m[2][0] = k.Z*k.X*t - k.Y*s
	m[2][1] = k.Z*k.Y*t + k.X*s
	m[2][2] = c + k.Z*k.Z*t

	// keep center fixed: t = c - R·c
	rc := m.ApplyVector(Vector3{center.X, center.Y, center.Z})
	m[0][3] = center.X - rc.X
	m[1][3] = center.Y - rc.Y
	m[2][3] = center.Z - rc.Z
	return m
}

// Mul returns m·n, the transform that applies n first and then m.
func (m Matrix) Mul(n Matrix) Matrix {
	var out Matrix
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[i][k] * n[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

func (m Matrix) Apply(p model.Point3) model.Point3 {
	return model.Point3{
		X: m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z + m[0][3],
		Y: m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z + m[1][3],
		Z: m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z + m[2][3],
	}
}

// ApplyVector transforms a direction, ignoring translation.
func (m Matrix) ApplyVector(v Vector3) Vector3 {
	return Vector3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Origin is the image of the local origin.
func (m Matrix) Origin() model.Point3 {
	return model.Point3{X: m[0][3], Y: m[1][3], Z: m[2][3]}
}

// Equal compares element wise within tol.
func (m Matrix) Equal(n Matrix, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(m[i][j]-n[i][j]) > tol {
				return false
			}
		}
	}
	return true
}
