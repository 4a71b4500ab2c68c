// Package render draws a raceway network into a drawing: node blocks at
// node positions and segment blocks stretched between their endpoints.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/events"
	"github.com/mohammed-shakir/raceway-cad/internal/geom"
	"github.com/mohammed-shakir/raceway-cad/internal/host"
	"github.com/mohammed-shakir/raceway-cad/internal/session"
)

const (
	DefaultAppName = "RACEWAY"

	TagName = "NAME"
	TagID   = "ID"
)

type Config struct {
	Categories []Category
	// NodeScale is the uniform scale of node blocks.
	NodeScale float64
	// Reference is the direction along which segment templates are drawn.
	Reference geom.Vector3
	// AppName tags every inserted block with its network id.
	AppName string
}

func (c Config) withDefaults() Config {
	if len(c.Categories) == 0 {
		c.Categories = DefaultCategories()
	}
	if c.NodeScale <= 0 {
		c.NodeScale = 1
	}
	if c.Reference.IsZero() {
		c.Reference = geom.XAxis
	}
	if c.AppName == "" {
		c.AppName = DefaultAppName
	}
	return c
}

type EventSink interface {
	Publish(ev events.Event)
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	Events   EventSink
	RunID    string
}

type Summary struct {
	Nodes      int            `json:"nodes"`
	Segments   int            `json:"segments"`
	Skipped    int            `json:"skipped"`
	ByCategory map[string]int `json:"byCategory"`
}

type Renderer struct {
	cfg    Config
	log    *slog.Logger
	events EventSink
	runID  string
	ms     *metricSet
}

func New(cfg Config, opts Options) *Renderer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Renderer{
		cfg:    cfg.withDefaults(),
		log:    opts.Logger,
		events: opts.Events,
		runID:  opts.RunID,
		ms:     newMetricSet(opts.Register),
	}
}

// Render validates net, then inserts all blocks under the document lock in
// one transaction. Either every block is committed or none is.
func (r *Renderer) Render(ctx context.Context, doc host.Document, net model.Network) (sum Summary, err error) {
	start := time.Now()
	log := r.log.With("file", doc.Name())
	defer func() { r.finish(log, doc.Name(), sum, err, time.Since(start)) }()

	if err := net.Validate(); err != nil {
		return Summary{}, err
	}

	unlock, err := doc.Lock()
	if err != nil {
		return Summary{}, fmt.Errorf("lock %s: %w", doc.Name(), err)
	}
	defer unlock()

	s, err := session.Begin(doc.Database())
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = s.Close() }()

	sum, err = r.draw(ctx, log, s, net)
	if err != nil {
		if aerr := s.Abort(); aerr != nil {
			log.Warn("abort failed", "err", aerr)
		}
		return Summary{}, err
	}
	if err := s.Commit(); err != nil {
		_ = s.Abort()
		return Summary{}, err
	}
	return sum, nil
}

type group struct {
	cat  Category
	segs []model.Segment
}

// plan assigns segments to categories. Segments without a category, or
// whose template is missing from the drawing, are skipped.
func (r *Renderer) plan(log *slog.Logger, s *session.Session, segs []model.Segment) ([]group, int) {
	groups := make([]group, len(r.cfg.Categories))
	for i, c := range r.cfg.Categories {
		groups[i].cat = c
	}
	skipped := 0
	for _, seg := range segs {
		placed := false
		for i := range groups {
			name, ok := groups[i].cat.segmentTemplate(seg.Type)
			if !ok {
				continue
			}
			if s.TemplateExists(name) {
				seg.Type = name
				groups[i].segs = append(groups[i].segs, seg)
				placed = true
			}
			break
		}
		if !placed {
			skipped++
			log.Debug("segment skipped", "segment", seg.ID, "type", seg.Type)
		}
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g.segs) == 0 {
			log.Debug("category skipped", "category", g.cat.Name)
			continue
		}
		out = append(out, g)
	}
	return out, skipped
}

func (r *Renderer) draw(ctx context.Context, log *slog.Logger, s *session.Session, net model.Network) (Summary, error) {
	if err := s.RegisterApp(r.cfg.AppName); err != nil {
		return Summary{}, err
	}
	nodes := net.NodeIndex()
	groups, skipped := r.plan(log, s, net.Segments)
	sum := Summary{Skipped: skipped, ByCategory: map[string]int{}}

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		if g.cat.SpawnNodes {
			for _, id := range touched(g.segs) {
				placed, err := r.insertNode(s, g.cat, nodes[id])
				if err != nil {
					return Summary{}, fmt.Errorf("node %d: %w", id, err)
				}
				if !placed {
					log.Debug("node skipped, no template", "node", id, "category", g.cat.Name)
					continue
				}
				sum.Nodes++
			}
		}
		for _, seg := range g.segs {
			if err := r.insertSegment(s, g.cat, seg, nodes); err != nil {
				return Summary{}, fmt.Errorf("segment %d: %w", seg.ID, err)
			}
			sum.Segments++
		}
		sum.ByCategory[g.cat.Name] = len(g.segs)
		log.Debug("category drawn", "category", g.cat.Name, "segments", len(g.segs))
	}
	return sum, nil
}

// touched lists the distinct endpoint ids in order of first appearance.
func touched(segs []model.Segment) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, s := range segs {
		for _, id := range [2]int{s.FromNode, s.ToNode} {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// insertNode reports false when neither the node type nor the category
// node template exists in the drawing.
func (r *Renderer) insertNode(s *session.Session, cat Category, n model.Node) (bool, error) {
	template := cat.NodeTemplate
	if n.NodeType != "" && s.TemplateExists(n.NodeType) {
		template = n.NodeType
	}
	if template == "" || !s.TemplateExists(template) {
		return false, nil
	}
	origin := model.Point3{}
	m := geom.Displacement(geom.Between(origin, n.Point())).Mul(geom.Scaling(r.cfg.NodeScale, origin))
	layer, tagLayer := cat.nodeLayers(template)
	if err := r.insert(s, template, n.Tag, n.ID, m, m, layer, tagLayer); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Renderer) insertSegment(s *session.Session, cat Category, seg model.Segment, nodes map[int]model.Node) error {
	from, to := nodes[seg.FromNode].Point(), nodes[seg.ToNode].Point()
	p, err := geom.ComputePlacement(r.cfg.Reference, model.Point3{}, from, to)
	if err != nil {
		return err
	}
	layer, tagLayer := cat.segmentLayers(seg.Type)
	return r.insert(s, seg.Type, seg.Tag, seg.ID, p.Body(), p.Attribute(), layer, tagLayer)
}

// insert builds a template instance at the origin, fills NAME and ID, moves
// body and attributes by their own transforms and appends it to model
// space.
func (r *Renderer) insert(s *session.Session, template, tag string, id int, body, attr geom.Matrix, layer, tagLayer string) error {
	ref, attrs, err := s.NewBlockReference(template, model.Point3{})
	if err != nil {
		return err
	}
	ref.TransformBy(body)
	ref.SetLayer(layer)
	ref.SetXData(r.cfg.AppName, int32(id))
	for _, a := range attrs {
		switch strings.ToUpper(a.Tag()) {
		case TagName:
			a.SetTextString(tag)
		case TagID:
			a.SetTextString(strconv.Itoa(id))
		}
		a.TransformBy(attr)
		a.SetLayer(tagLayer)
		a.SetXData(r.cfg.AppName, int32(id))
	}
	_, err = s.AddEntity(s.Database().ModelSpace(), ref)
	return err
}

func (r *Renderer) finish(log *slog.Logger, name string, sum Summary, err error, took time.Duration) {
	r.ms.duration.Observe(took.Seconds())
	ev := events.Event{RunID: r.runID, Kind: events.KindRender, File: name}
	if err != nil {
		r.ms.renders.WithLabelValues("error").Inc()
		log.Error("render failed", "err", err, "took", took)
		ev.IsError, ev.Error = true, err.Error()
	} else {
		r.ms.renders.WithLabelValues("ok").Inc()
		r.ms.blocks.WithLabelValues("node").Add(float64(sum.Nodes))
		r.ms.blocks.WithLabelValues("segment").Add(float64(sum.Segments))
		r.ms.skipped.Add(float64(sum.Skipped))
		log.Info("rendered", "nodes", sum.Nodes, "segments", sum.Segments, "skipped", sum.Skipped, "took", took)
		ev.Entities = sum.Nodes + sum.Segments
	}
	if r.events != nil {
		r.events.Publish(ev)
	}
}
