// Package model defines the records shared by the scanner, the renderer and
// the exporters.
package model

import "fmt"

// Handle identifies an object within one drawing. It is stable for the
// lifetime of the drawing and safe to copy and compare.
type Handle string

func (h Handle) String() string { return string(h) }

type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (p Point3) String() string {
	return fmt.Sprintf("(%g,%g,%g)", p.X, p.Y, p.Z)
}

type AttributeRecord struct {
	Tag        string `json:"tag"`
	TextString string `json:"textString"`
}

type Kind string

const (
	KindBlock    Kind = "block"
	KindPolyline Kind = "polyline"
	KindLine     Kind = "line"
	KindText     Kind = "text"
)

// EntityRecord is a serializable snapshot of one drawing entity. Exactly one
// of the kind specific fields is set, matching Kind.
type EntityRecord struct {
	Kind     Kind   `json:"kind"`
	ID       Handle `json:"id"`
	OwnerID  Handle `json:"ownerId"`
	Layer    string `json:"layer"`
	Position Point3 `json:"position"`

	Block    *BlockRecord    `json:"block,omitempty"`
	Polyline *PolylineRecord `json:"polyline,omitempty"`
	Line     *LineRecord     `json:"line,omitempty"`
	Text     *TextRecord     `json:"text,omitempty"`
}

type BlockRecord struct {
	Name          string            `json:"name"`
	EffectiveName string            `json:"effectiveName"`
	Rotation      float64           `json:"rotation"`
	Attributes    []AttributeRecord `json:"attributes"`
}

// Attribute returns the text of the attribute with the given tag.
func (b *BlockRecord) Attribute(tag string) (string, bool) {
	for _, a := range b.Attributes {
		if a.Tag == tag {
			return a.TextString, true
		}
	}
	return "", false
}

type PolylineRecord struct {
	Vertices []Point3 `json:"vertices"`
	Closed   bool     `json:"closed"`
	Linetype string   `json:"linetype"`
	Length   float64  `json:"length"`
}

type LineRecord struct {
	Start    Point3  `json:"start"`
	End      Point3  `json:"end"`
	Linetype string  `json:"linetype"`
	Color    string  `json:"color"`
	Length   float64 `json:"length"`
}

type TextRecord struct {
	Content    string  `json:"content"`
	Height     float64 `json:"height"`
	Style      string  `json:"style"`
	Attachment int     `json:"attachment"`
	Color      string  `json:"color"`
	Width      float64 `json:"width"`
}

// DrawingScanResult is produced exactly once per scanned file. A result is
// either an error (IsError with ErrorMessage) or a list of entities.
type DrawingScanResult struct {
	FileName     string         `json:"fileName"`
	FilePath     string         `json:"filePath"`
	Entities     []EntityRecord `json:"entities"`
	IsError      bool           `json:"isError"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// Blocks returns the block records of the result in order.
func (r DrawingScanResult) Blocks() []EntityRecord {
	out := make([]EntityRecord, 0, len(r.Entities))
	for _, e := range r.Entities {
		if e.Kind == KindBlock && e.Block != nil {
			out = append(out, e)
		}
	}
	return out
}
