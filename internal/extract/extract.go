// Package extract converts host entities into serializable records.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/host"
	"github.com/mohammed-shakir/raceway-cad/internal/session"
)

// Anonymous reports whether a block name belongs to an anonymous block.
func Anonymous(name string) bool { return strings.Contains(name, "*") }

// Extract reads every handle in read mode and returns one record per
// supported entity, in input order. Duplicate handles yield one record.
// Handles that do not resolve to a block reference, polyline, line or text
// are skipped, as are anonymous blocks.
func Extract(ctx context.Context, s *session.Session, handles []model.Handle) ([]model.EntityRecord, error) {
	return extract(ctx, s, handles, false)
}

// ExtractBlocks is Extract restricted to block references.
func ExtractBlocks(ctx context.Context, s *session.Session, handles []model.Handle) ([]model.EntityRecord, error) {
	return extract(ctx, s, handles, true)
}

func extract(ctx context.Context, s *session.Session, handles []model.Handle, blocksOnly bool) ([]model.EntityRecord, error) {
	out := make([]model.EntityRecord, 0, len(handles))
	seen := make(map[model.Handle]struct{}, len(handles))
	for _, h := range handles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}

		e, ok, err := session.Get[host.Entity](s, h, host.ForRead)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var rec *model.EntityRecord
		switch v := e.(type) {
		case host.BlockReference:
			rec, err = block(s, v)
		case host.Polyline:
			if !blocksOnly {
				rec = polyline(v)
			}
		case host.Line:
			if !blocksOnly {
				rec = line(v)
			}
		case host.MText:
			if !blocksOnly {
				rec = text(v)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", h, err)
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func common(e host.Entity, kind model.Kind, pos model.Point3) model.EntityRecord {
	return model.EntityRecord{
		Kind:     kind,
		ID:       e.Handle(),
		OwnerID:  e.OwnerID(),
		Layer:    e.Layer(),
		Position: pos,
	}
}

func block(s *session.Session, br host.BlockReference) (*model.EntityRecord, error) {
	if Anonymous(br.Name()) {
		return nil, nil
	}
	attrs, err := session.GetMany[host.AttributeReference](s, br.AttributeHandles(), host.ForRead)
	if err != nil {
		return nil, err
	}
	b := &model.BlockRecord{
		Name:          br.Name(),
		EffectiveName: br.EffectiveName(),
		Rotation:      br.Rotation(),
		Attributes:    make([]model.AttributeRecord, 0, len(attrs)),
	}
	for _, a := range attrs {
		b.Attributes = append(b.Attributes, model.AttributeRecord{Tag: a.Tag(), TextString: a.TextString()})
	}
	rec := common(br, model.KindBlock, br.Position())
	rec.Block = b
	return &rec, nil
}

func polyline(p host.Polyline) *model.EntityRecord {
	n := p.NumberOfVertices()
	pl := &model.PolylineRecord{
		Vertices: make([]model.Point3, 0, n),
		Closed:   p.Closed(),
		Linetype: p.Linetype(),
		Length:   p.Length(),
	}
	for i := 0; i < n; i++ {
		pl.Vertices = append(pl.Vertices, p.PointAt(i))
	}
	var pos model.Point3
	if n > 0 {
		pos = pl.Vertices[0]
	}
	rec := common(p, model.KindPolyline, pos)
	rec.Polyline = pl
	return &rec
}

func line(l host.Line) *model.EntityRecord {
	rec := common(l, model.KindLine, l.Start())
	rec.Line = &model.LineRecord{
		Start:    l.Start(),
		End:      l.End(),
		Linetype: l.Linetype(),
		Color:    l.Color(),
		Length:   l.Length(),
	}
	return &rec
}

func text(t host.MText) *model.EntityRecord {
	rec := common(t, model.KindText, t.Location())
	rec.Text = &model.TextRecord{
		Content:    t.Contents(),
		Height:     t.TextHeight(),
		Style:      t.TextStyleName(),
		Attachment: t.Attachment(),
		Color:      t.Color(),
		Width:      t.Width(),
	}
	return &rec
}
