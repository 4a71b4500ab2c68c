package memdb

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/filter"
	"github.com/mohammed-shakir/raceway-cad/internal/geom"
)

// Snapshot is the on-disk form of a drawing.
type Snapshot struct {
	Templates  []TemplateDef `json:"templates,omitempty"`
	ModelSpace []EntityDef   `json:"modelSpace,omitempty"`
	PaperSpace []EntityDef   `json:"paperSpace,omitempty"`
	Apps       []string      `json:"apps,omitempty"`
}

type TemplateDef struct {
	Name       string         `json:"name"`
	Attributes []AttributeDef `json:"attributes,omitempty"`
}

// AttributeDef is an attribute definition of a template. Position is in
// template coordinates.
type AttributeDef struct {
	Tag      string       `json:"tag"`
	Text     string       `json:"text,omitempty"`
	Position model.Point3 `json:"position"`
	Height   float64      `json:"height"`
}

type AttributeValue struct {
	Handle   model.Handle `json:"handle,omitempty"`
	Tag      string       `json:"tag"`
	Text     string       `json:"text"`
	Layer    string       `json:"layer,omitempty"`
	Position model.Point3 `json:"position"`
	Rotation float64      `json:"rotation,omitempty"`
	Height   float64      `json:"height,omitempty"`
}

// EntityDef describes one entity. Type selects which fields apply. An
// entity listed in both spaces with the same handle is stored once and
// referenced from both.
type EntityDef struct {
	Handle model.Handle     `json:"handle,omitempty"`
	Type   string           `json:"type"`
	Layer  string           `json:"layer,omitempty"`
	XData  map[string]int32 `json:"xdata,omitempty"`

	Name          string           `json:"name,omitempty"`
	EffectiveName string           `json:"effectiveName,omitempty"`
	Position      model.Point3     `json:"position"`
	Rotation      float64          `json:"rotation,omitempty"`
	Scale         float64          `json:"scale,omitempty"`
	Transform     *geom.Matrix     `json:"transform,omitempty"`
	Attributes    []AttributeValue `json:"attributes,omitempty"`

	Vertices []model.Point3 `json:"vertices,omitempty"`
	Closed   bool           `json:"closed,omitempty"`
	Linetype string         `json:"linetype,omitempty"`

	Start *model.Point3 `json:"start,omitempty"`
	End   *model.Point3 `json:"end,omitempty"`
	Color string        `json:"color,omitempty"`

	Contents   string  `json:"contents,omitempty"`
	Height     float64 `json:"height,omitempty"`
	Style      string  `json:"style,omitempty"`
	Attachment int     `json:"attachment,omitempty"`
	Width      float64 `json:"width,omitempty"`
}

// FromSnapshot builds a writable database from s.
func FromSnapshot(name string, s Snapshot) (*DB, error) {
	db := New(name)
	for _, e := range append(append([]EntityDef{}, s.ModelSpace...), s.PaperSpace...) {
		if e.Handle != "" {
			db.reserve(e.Handle)
		}
		for _, a := range e.Attributes {
			if a.Handle != "" {
				db.reserve(a.Handle)
			}
		}
	}
	for _, t := range s.Templates {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("snapshot %s: template without name", name)
		}
		db.AddTemplate(t.Name, t.Attributes...)
	}
	for _, a := range s.Apps {
		db.apps[a] = struct{}{}
	}
	for i, e := range s.ModelSpace {
		if err := db.load(db.modelSpace, e); err != nil {
			return nil, fmt.Errorf("snapshot %s: model space entity %d: %w", name, i, err)
		}
	}
	for i, e := range s.PaperSpace {
		if err := db.load(db.paperSpace, e); err != nil {
			return nil, fmt.Errorf("snapshot %s: paper space entity %d: %w", name, i, err)
		}
	}
	return db, nil
}

func (db *DB) load(container model.Handle, d EntityDef) error {
	rec := db.objects[container].(*record)
	if d.Handle != "" {
		if o, exists := db.objects[d.Handle]; exists {
			if _, ok := o.(entity); !ok {
				return fmt.Errorf("handle %s is already in use", d.Handle)
			}
			rec.entities = append(rec.entities, d.Handle)
			return nil
		}
	}
	h := d.Handle
	if h == "" {
		h = db.newHandle()
	}
	b := base{handle: h, owner: container, layer: layerOr0(d.Layer)}
	for app, v := range d.XData {
		b.SetXData(app, v)
	}

	var e entity
	switch strings.ToUpper(d.Type) {
	case filter.TypeInsert:
		if d.Name == "" {
			return fmt.Errorf("%s without name", d.Type)
		}
		ref := &blockRef{base: b, name: d.Name, effectiveName: d.EffectiveName}
		if d.Transform != nil {
			ref.xform = *d.Transform
		} else {
			scale := d.Scale
			if scale == 0 {
				scale = 1
			}
			ref.xform = geom.Displacement(geom.Between(model.Point3{}, d.Position)).
				Mul(geom.Rotation(d.Rotation, geom.ZAxis, model.Point3{})).
				Mul(geom.Scaling(scale, model.Point3{}))
		}
		for _, av := range d.Attributes {
			ah := av.Handle
			if ah == "" {
				ah = db.newHandle()
			}
			db.objects[ah] = &attribute{
				base:     base{handle: ah, owner: h, layer: layerOr0(av.Layer)},
				tag:      av.Tag,
				text:     av.Text,
				position: av.Position,
				rotation: av.Rotation,
				height:   av.Height,
			}
			ref.attrs = append(ref.attrs, ah)
		}
		e = ref
	case filter.TypePolyline:
		e = &polyline{base: b, vertices: append([]model.Point3(nil), d.Vertices...), closed: d.Closed, linetype: d.Linetype}
	case filter.TypeLine:
		if d.Start == nil || d.End == nil {
			return fmt.Errorf("LINE %s without endpoints", h)
		}
		e = &line{base: b, start: *d.Start, end: *d.End, linetype: d.Linetype, color: d.Color}
	case filter.TypeMText:
		e = &mtext{
			base:       b,
			location:   d.Position,
			contents:   d.Contents,
			height:     d.Height,
			style:      d.Style,
			attachment: d.Attachment,
			color:      d.Color,
			width:      d.Width,
		}
	default:
		return fmt.Errorf("unsupported entity type %q", d.Type)
	}
	db.objects[h] = e
	rec.entities = append(rec.entities, h)
	return nil
}

func layerOr0(l string) string {
	if l == "" {
		return "0"
	}
	return l
}

// Snapshot captures the committed state.
func (db *DB) Snapshot() Snapshot {
	var s Snapshot
	names := make([]string, 0, len(db.templates))
	for k := range db.templates {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		rec := db.objects[db.templates[k]].(*record)
		s.Templates = append(s.Templates, TemplateDef{Name: rec.name, Attributes: rec.attdefs})
	}
	s.Apps = db.Apps()
	sort.Strings(s.Apps)
	s.ModelSpace = db.dump(db.modelSpace)
	s.PaperSpace = db.dump(db.paperSpace)
	return s
}

func (db *DB) dump(container model.Handle) []EntityDef {
	rec := db.objects[container].(*record)
	out := make([]EntityDef, 0, len(rec.entities))
	for _, h := range rec.entities {
		o, ok := db.objects[h]
		if !ok {
			continue
		}
		d := EntityDef{Handle: h}
		if e, ok := o.(entity); ok {
			d.Layer = e.Layer()
			d.XData = e.xdataMap()
		}
		switch v := o.(type) {
		case *blockRef:
			m := v.xform
			d.Type = filter.TypeInsert
			d.Name, d.EffectiveName = v.name, v.effectiveName
			d.Position, d.Rotation, d.Scale = v.Position(), v.Rotation(), v.ScaleFactor()
			d.Transform = &m
			for _, ah := range v.attrs {
				a, ok := db.objects[ah].(*attribute)
				if !ok {
					continue
				}
				d.Attributes = append(d.Attributes, AttributeValue{
					Handle: ah, Tag: a.tag, Text: a.text, Layer: a.layer,
					Position: a.position, Rotation: a.rotation, Height: a.height,
				})
			}
		case *polyline:
			d.Type = filter.TypePolyline
			d.Vertices, d.Closed, d.Linetype = v.vertices, v.closed, v.linetype
		case *line:
			s, e := v.start, v.end
			d.Type = filter.TypeLine
			d.Start, d.End, d.Linetype, d.Color = &s, &e, v.linetype, v.color
		case *mtext:
			d.Type = filter.TypeMText
			d.Position, d.Contents, d.Height = v.location, v.contents, v.height
			d.Style, d.Attachment, d.Color, d.Width = v.style, v.attachment, v.color, v.width
		default:
			continue
		}
		out = append(out, d)
	}
	return out
}

// Load decodes a snapshot from r.
func Load(name string, r io.Reader) (*DB, error) {
	var s Snapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode drawing %s: %w", name, err)
	}
	return FromSnapshot(name, s)
}

// LoadFile opens a snapshot file as a writable database.
func LoadFile(path string) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open drawing: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(path, f)
}

// Save writes the committed state to w as indented JSON.
func (db *DB) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(db.Snapshot()); err != nil {
		return fmt.Errorf("encode drawing %s: %w", db.name, err)
	}
	return nil
}

// SaveFile writes the committed state to path.
func (db *DB) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create drawing: %w", err)
	}
	if err := db.Save(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
