package memdb

import (
	"maps"
	"math"
	"slices"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/filter"
	"github.com/mohammed-shakir/raceway-cad/internal/geom"
	"github.com/mohammed-shakir/raceway-cad/internal/host"
)

// object is implemented by every stored object. clone backs copy on write
// inside transactions.
type object interface {
	host.Object
	clone() object
}

type entity interface {
	object
	host.Entity
	dxfName() string
	setHandle(h, owner model.Handle)
	xdataMap() map[string]int32
}

type base struct {
	handle model.Handle
	owner  model.Handle
	layer  string
	xdata  map[string]int32
}

func (b *base) Handle() model.Handle  { return b.handle }
func (b *base) OwnerID() model.Handle { return b.owner }
func (b *base) Layer() string         { return b.layer }
func (b *base) SetLayer(name string)  { b.layer = name }

func (b *base) setHandle(h, owner model.Handle) {
	b.handle = h
	b.owner = owner
}

func (b *base) SetXData(app string, value int32) {
	if b.xdata == nil {
		b.xdata = map[string]int32{}
	}
	b.xdata[app] = value
}

func (b *base) XData(app string) (int32, bool) {
	v, ok := b.xdata[app]
	return v, ok
}

func (b *base) xdataMap() map[string]int32 { return b.xdata }

func (b base) copyBase() base {
	b.xdata = maps.Clone(b.xdata)
	return b
}

type blockRef struct {
	base
	name          string
	effectiveName string
	xform         geom.Matrix
	attrs         []model.Handle
	pending       []*attribute
}

func (r *blockRef) dxfName() string        { return filter.TypeInsert }
func (r *blockRef) Name() string           { return r.name }
func (r *blockRef) Position() model.Point3 { return r.xform.Origin() }

func (r *blockRef) EffectiveName() string {
	if r.effectiveName != "" {
		return r.effectiveName
	}
	return r.name
}

func (r *blockRef) Rotation() float64 {
	x := r.xform.ApplyVector(geom.XAxis)
	return normalizeAngle(math.Atan2(x.Y, x.X))
}

func (r *blockRef) ScaleFactor() float64 {
	return r.xform.ApplyVector(geom.XAxis).Length()
}

func (r *blockRef) AttributeHandles() []model.Handle { return slices.Clone(r.attrs) }

func (r *blockRef) TransformBy(m geom.Matrix) { r.xform = m.Mul(r.xform) }

func (r *blockRef) clone() object {
	c := *r
	c.base = r.copyBase()
	c.attrs = slices.Clone(r.attrs)
	c.pending = nil
	return &c
}

type attribute struct {
	base
	tag      string
	text     string
	position model.Point3
	rotation float64
	height   float64
}

func (a *attribute) dxfName() string        { return "ATTRIB" }
func (a *attribute) Tag() string            { return a.tag }
func (a *attribute) TextString() string     { return a.text }
func (a *attribute) SetTextString(s string) { a.text = s }
func (a *attribute) Position() model.Point3 { return a.position }
func (a *attribute) Rotation() float64      { return a.rotation }
func (a *attribute) Height() float64        { return a.height }

// TransformBy moves the insertion point and reorients the text baseline.
// Height follows the transformed text up direction.
func (a *attribute) TransformBy(m geom.Matrix) {
	s, c := math.Sincos(a.rotation)
	dir := m.ApplyVector(geom.Vector3{X: c, Y: s})
	up := m.ApplyVector(geom.Vector3{X: -s, Y: c})
	a.position = m.Apply(a.position)
	a.rotation = normalizeAngle(math.Atan2(dir.Y, dir.X))
	a.height *= up.Length()
}

func (a *attribute) clone() object {
	c := *a
	c.base = a.copyBase()
	return &c
}

type polyline struct {
	base
	vertices []model.Point3
	closed   bool
	linetype string
}

func (p *polyline) dxfName() string            { return filter.TypePolyline }
func (p *polyline) NumberOfVertices() int      { return len(p.vertices) }
func (p *polyline) PointAt(i int) model.Point3 { return p.vertices[i] }
func (p *polyline) Closed() bool               { return p.closed }
func (p *polyline) Linetype() string           { return p.linetype }

func (p *polyline) Length() float64 {
	var l float64
	for i := 1; i < len(p.vertices); i++ {
		l += geom.Between(p.vertices[i-1], p.vertices[i]).Length()
	}
	if p.closed && len(p.vertices) > 2 {
		l += geom.Between(p.vertices[len(p.vertices)-1], p.vertices[0]).Length()
	}
	return l
}

func (p *polyline) TransformBy(m geom.Matrix) {
	for i, v := range p.vertices {
		p.vertices[i] = m.Apply(v)
	}
}

func (p *polyline) clone() object {
	c := *p
	c.base = p.copyBase()
	c.vertices = slices.Clone(p.vertices)
	return &c
}

type line struct {
	base
	start, end model.Point3
	linetype   string
	color      string
}

func (l *line) dxfName() string     { return filter.TypeLine }
func (l *line) Start() model.Point3 { return l.start }
func (l *line) End() model.Point3   { return l.end }
func (l *line) Linetype() string    { return l.linetype }
func (l *line) Color() string       { return l.color }
func (l *line) Length() float64     { return geom.Between(l.start, l.end).Length() }

func (l *line) TransformBy(m geom.Matrix) {
	l.start, l.end = m.Apply(l.start), m.Apply(l.end)
}

func (l *line) clone() object {
	c := *l
	c.base = l.copyBase()
	return &c
}

type mtext struct {
	base
	location   model.Point3
	contents   string
	height     float64
	style      string
	attachment int
	color      string
	width      float64
}

func (t *mtext) dxfName() string        { return filter.TypeMText }
func (t *mtext) Location() model.Point3 { return t.location }
func (t *mtext) Contents() string       { return t.contents }
func (t *mtext) TextHeight() float64    { return t.height }
func (t *mtext) TextStyleName() string  { return t.style }
func (t *mtext) Attachment() int        { return t.attachment }
func (t *mtext) Color() string          { return t.color }
func (t *mtext) Width() float64         { return t.width }

func (t *mtext) TransformBy(m geom.Matrix) { t.location = m.Apply(t.location) }

func (t *mtext) clone() object {
	c := *t
	c.base = t.copyBase()
	return &c
}

// record is a block table record: a template definition or a layout.
type record struct {
	handle   model.Handle
	name     string
	layout   bool
	entities []model.Handle
	attdefs  []AttributeDef
}

func (r *record) Handle() model.Handle     { return r.handle }
func (r *record) Name() string             { return r.name }
func (r *record) IsLayout() bool           { return r.layout }
func (r *record) Entities() []model.Handle { return slices.Clone(r.entities) }

func (r *record) clone() object {
	c := *r
	c.entities = slices.Clone(r.entities)
	c.attdefs = slices.Clone(r.attdefs)
	return &c
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if math.Abs(a-2*math.Pi) < 1e-12 {
		a = 0
	}
	return a
}
