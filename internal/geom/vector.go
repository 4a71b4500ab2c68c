// Package geom holds the affine math used to stretch template blocks between
// two points.
package geom

import (
	"math"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
)

// Tolerance is the relative tolerance used for zero length and parallel tests.
const Tolerance = 1e-9

type Vector3 struct {
	X, Y, Z float64
}

var (
	XAxis = Vector3{1, 0, 0}
	YAxis = Vector3{0, 1, 0}
	ZAxis = Vector3{0, 0, 1}
)

// Between returns to - from.
func Between(from, to model.Point3) Vector3 {
	return Vector3{to.X - from.X, to.Y - from.Y, to.Z - from.Z}
}

func (v Vector3) Add(w Vector3) Vector3   { return Vector3{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }
func (v Vector3) Sub(w Vector3) Vector3   { return Vector3{v.X - w.X, v.Y - w.Y, v.Z - w.Z} }
func (v Vector3) Scale(k float64) Vector3 { return Vector3{v.X * k, v.Y * k, v.Z * k} }
func (v Vector3) Dot(w Vector3) float64   { return v.X*w.X + v.Y*w.Y + v.Z*w.Z }
func (v Vector3) Length() float64         { return math.Sqrt(v.Dot(v)) }
func (v Vector3) IsZero() bool            { return v.Length() <= Tolerance }
func (v Vector3) Offset(p model.Point3) model.Point3 {
	return model.Point3{X: p.X + v.X, Y: p.Y + v.Y, Z: p.Z + v.Z}
}

func (v Vector3) Cross(w Vector3) Vector3 {
	return Vector3{
		v.Y*w.Z - v.Z*w.Y,
		v.Z*w.X - v.X*w.Z,
		v.X*w.Y - v.Y*w.X,
	}
}

// Normalize returns the unit vector along v, or the zero vector.
func (v Vector3) Normalize() Vector3 {
	l := v.Length()
	if l == 0 {
		return Vector3{}
	}
	return v.Scale(1 / l)
}

// AngleTo returns the unsigned angle in [0, π] between v and w.
func (v Vector3) AngleTo(w Vector3) float64 {
	lv, lw := v.Length(), w.Length()
	if lv == 0 || lw == 0 {
		return 0
	}
	c := v.Dot(w) / (lv * lw)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c)
}
