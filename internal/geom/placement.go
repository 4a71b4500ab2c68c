package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
)

var ErrDegenerateSegment = errors.New("degenerate segment: endpoints coincide")

// Placement stretches a template whose reference direction is vb between
// two points. Rotation and scaling are about the template origin.
type Placement struct {
	Axis   Vector3
	Angle  float64
	Factor float64

	Rotate   Matrix
	Scale    Matrix
	Displace Matrix
}

// ComputePlacement returns the transforms that carry a template drawn at
// origin along vb onto the segment from -> to.
func ComputePlacement(vb Vector3, origin, from, to model.Point3) (Placement, error) {
	vr := Between(from, to)
	lr := vr.Length()
	if lr <= Tolerance {
		return Placement{}, fmt.Errorf("%w: %v", ErrDegenerateSegment, from)
	}
	lb := vb.Length()
	if lb <= Tolerance {
		return Placement{}, fmt.Errorf("reference vector is zero: %w", ErrDegenerateSegment)
	}

	axis := vb.Cross(vr)
	angle := vb.AngleTo(vr)
	if axis.Length() <= Tolerance*lb*lr {
		if vb.Dot(vr) > 0 {
			axis, angle = ZAxis, 0
		} else {
			axis, angle = halfTurnAxis(vb), math.Pi
		}
	}

	p := Placement{
		Axis:     axis,
		Angle:    angle,
		Factor:   lr / lb,
		Rotate:   Rotation(angle, axis, origin),
		Scale:    Scaling(lr/lb, origin),
		Displace: Displacement(Between(origin, from)),
	}
	return p, nil
}

// halfTurnAxis is +Z unless vb itself lies along Z.
func halfTurnAxis(vb Vector3) Vector3 {
	if ZAxis.Cross(vb).IsZero() {
		return XAxis
	}
	return ZAxis
}

// Body is D·S·R, applied to the template geometry.
func (p Placement) Body() Matrix {
	return p.Displace.Mul(p.Scale).Mul(p.Rotate)
}

// Attribute is D·R. Attribute text is oriented and moved but never stretched.
func (p Placement) Attribute() Matrix {
	return p.Displace.Mul(p.Rotate)
}
