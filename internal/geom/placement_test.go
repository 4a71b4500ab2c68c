package geom

import (
	"errors"
	"math"
	"testing"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
)

const eps = 1e-9

func near(a, b model.Point3) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps && math.Abs(a.Z-b.Z) < eps
}

var origin = model.Point3{}

func TestPlacement_ParallelIsPureScale(t *testing.T) {
	p, err := ComputePlacement(XAxis, origin, origin, model.Point3{X: 10})
	if err != nil {
		t.Fatalf("ComputePlacement: %v", err)
	}
	if p.Angle != 0 {
		t.Fatalf("angle=%v want 0", p.Angle)
	}
	if p.Factor != 10 {
		t.Fatalf("factor=%v want 10", p.Factor)
	}
	if !p.Rotate.Equal(Identity(), eps) {
		t.Fatalf("rotation not identity: %v", p.Rotate)
	}
	if got := p.Body().Apply(model.Point3{X: 1}); !near(got, model.Point3{X: 10}) {
		t.Fatalf("tip=%v want (10,0,0)", got)
	}
}

func TestPlacement_QuarterTurn(t *testing.T) {
	p, err := ComputePlacement(XAxis, origin, origin, model.Point3{Y: 10})
	if err != nil {
		t.Fatalf("ComputePlacement: %v", err)
	}
	if math.Abs(p.Angle-math.Pi/2) > eps {
		t.Fatalf("angle=%v want π/2", p.Angle)
	}
	if a := p.Axis.Normalize(); !near(model.Point3(a), model.Point3(ZAxis)) {
		t.Fatalf("axis=%v want +Z", p.Axis)
	}
	if p.Factor != 10 {
		t.Fatalf("factor=%v want 10", p.Factor)
	}
	if got := p.Body().Apply(model.Point3{X: 1}); !near(got, model.Point3{Y: 10}) {
		t.Fatalf("tip=%v want (0,10,0)", got)
	}
}

func TestPlacement_AntiParallelTurnsAboutZ(t *testing.T) {
	p, err := ComputePlacement(XAxis, origin, origin, model.Point3{X: -10})
	if err != nil {
		t.Fatalf("ComputePlacement: %v", err)
	}
	if p.Angle != math.Pi || p.Axis != ZAxis {
		t.Fatalf("angle=%v axis=%v want π about +Z", p.Angle, p.Axis)
	}
	body := p.Body()
	if got := body.Apply(model.Point3{X: 1}); !near(got, model.Point3{X: -10}) {
		t.Fatalf("tip=%v want (-10,0,0)", got)
	}
	// a point above the insertion plane must stay above it
	if got := body.Apply(model.Point3{Z: 1}); !near(got, model.Point3{Z: 10}) {
		t.Fatalf("up=%v want (0,0,10)", got)
	}
}

func TestPlacement_DisplacedEndpoints(t *testing.T) {
	from := model.Point3{X: 5, Y: 5}
	to := model.Point3{X: 5, Y: 15}
	p, err := ComputePlacement(XAxis, origin, from, to)
	if err != nil {
		t.Fatalf("ComputePlacement: %v", err)
	}
	body := p.Body()
	if got := body.Apply(origin); !near(got, from) {
		t.Fatalf("start=%v want %v", got, from)
	}
	if got := body.Apply(model.Point3{X: 1}); !near(got, to) {
		t.Fatalf("end=%v want %v", got, to)
	}
}

func TestPlacement_AttributeIsNotStretched(t *testing.T) {
	p, err := ComputePlacement(XAxis, origin, model.Point3{X: 1}, model.Point3{X: 1, Y: 20})
	if err != nil {
		t.Fatalf("ComputePlacement: %v", err)
	}
	m := p.Attribute()
	for _, v := range []Vector3{XAxis, YAxis, ZAxis} {
		if l := m.ApplyVector(v).Length(); math.Abs(l-1) > eps {
			t.Fatalf("|M·%v|=%v want 1", v, l)
		}
	}
	if got := m.ApplyVector(XAxis); !near(model.Point3(got), model.Point3(YAxis)) {
		t.Fatalf("attribute direction=%v want +Y", got)
	}
}

func TestPlacement_DegenerateSegment(t *testing.T) {
	pt := model.Point3{X: 3, Y: 4}
	_, err := ComputePlacement(XAxis, origin, pt, pt)
	if !errors.Is(err, ErrDegenerateSegment) {
		t.Fatalf("err=%v want ErrDegenerateSegment", err)
	}
}

func TestRotationKeepsCenterFixed(t *testing.T) {
	c := model.Point3{X: 2, Y: 3, Z: 1}
	m := Rotation(1.1, Vector3{1, 1, 0}, c)
	if got := m.Apply(c); !near(got, c) {
		t.Fatalf("center moved to %v", got)
	}
}

func TestMulOrder(t *testing.T) {
	d := Displacement(Vector3{X: 5})
	s := Scaling(2, origin)
	// scale first, then move
	if got := d.Mul(s).Apply(model.Point3{X: 1}); !near(got, model.Point3{X: 7}) {
		t.Fatalf("D·S=%v want (7,0,0)", got)
	}
	if got := s.Mul(d).Apply(model.Point3{X: 1}); !near(got, model.Point3{X: 12}) {
		t.Fatalf("S·D=%v want (12,0,0)", got)
	}
}
