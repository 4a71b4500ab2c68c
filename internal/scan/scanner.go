// Package scan runs extraction over a batch of drawing files, isolating
// failures per file.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/raceway-cad/internal/cache/keys"
	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/events"
	"github.com/mohammed-shakir/raceway-cad/internal/extract"
	"github.com/mohammed-shakir/raceway-cad/internal/filter"
	"github.com/mohammed-shakir/raceway-cad/internal/host"
	"github.com/mohammed-shakir/raceway-cad/internal/logger"
	"github.com/mohammed-shakir/raceway-cad/internal/session"
)

var ErrConfig = errors.New("invalid scan configuration")

// ResultCache stores successful per-file results.
type ResultCache interface {
	Get(ctx context.Context, key string) (model.DrawingScanResult, bool, error)
	Put(ctx context.Context, key string, res model.DrawingScanResult) error
}

type EventSink interface {
	Publish(ev events.Event)
}

// Query selects what to extract from each drawing.
type Query struct {
	// Pattern is matched case insensitively against block names.
	Pattern string
	// Names restricts blocks to these names (host wildcards allowed).
	Names []string
	// IncludeGeometry adds polylines, lines and text.
	IncludeGeometry bool
}

func (q Query) String() string {
	names := slices.Clone(q.Names)
	slices.Sort(names)
	names = slices.Compact(names)
	return "pattern=" + q.Pattern + ";names=" + strings.Join(names, ",") + ";geometry=" + strconv.FormatBool(q.IncludeGeometry)
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	Cache    ResultCache
	Events   EventSink
	RunID    string
}

type Scanner struct {
	opener host.Opener
	log    *slog.Logger
	cache  ResultCache
	events EventSink
	runID  string
	ms     *metricSet
}

func New(opener host.Opener, opts Options) *Scanner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scanner{
		opener: opener,
		log:    opts.Logger,
		cache:  opts.Cache,
		events: opts.Events,
		runID:  opts.RunID,
		ms:     newMetricSet(opts.Register),
	}
}

// plan is a validated query.
type plan struct {
	re       *regexp.Regexp
	names    filter.Expr
	geometry []filter.Expr
	key      string
}

func compilePlan(q Query) (plan, error) {
	var p plan
	if q.Pattern != "" {
		re, err := regexp.Compile("(?i)" + q.Pattern)
		if err != nil {
			return plan{}, fmt.Errorf("%w: pattern %q: %v", ErrConfig, q.Pattern, err)
		}
		p.re = re
	}
	if len(q.Names) > 0 {
		f, err := filter.BuildBlockNameFilter(q.Names)
		if err != nil {
			return plan{}, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		p.names = f
	}
	if q.IncludeGeometry {
		for _, t := range []string{filter.TypePolyline, filter.TypeLine, filter.TypeMText} {
			f, err := filter.BuildTypeFilter(t)
			if err != nil {
				return plan{}, fmt.Errorf("%w: %w", ErrConfig, err)
			}
			p.geometry = append(p.geometry, f)
		}
	}
	p.key = q.String()
	return p, nil
}

// Scan returns exactly one result per path, in input order. Only a bad
// query fails the batch, before any file is opened. Everything that goes
// wrong inside a file, including a panic, becomes that file's error result.
func (s *Scanner) Scan(ctx context.Context, paths []string, q Query) ([]model.DrawingScanResult, error) {
	p, err := compilePlan(q)
	if err != nil {
		return nil, err
	}
	out := make([]model.DrawingScanResult, 0, len(paths))
	for _, path := range paths {
		out = append(out, s.scanFile(ctx, path, p))
	}
	return out, nil
}

func (s *Scanner) scanFile(ctx context.Context, path string, p plan) (res model.DrawingScanResult) {
	start := time.Now()
	log := s.log.With("file", path)
	defer func() {
		if r := recover(); r != nil {
			res = failed(path, fmt.Errorf("panic: %v", r))
		}
		s.finish(ctx, log, res, time.Since(start))
	}()

	if err := ctx.Err(); err != nil {
		return failed(path, fmt.Errorf("scan canceled: %w", err))
	}

	key := s.cacheKey(log, path, p)
	if key != "" {
		cached, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.ms.cache.WithLabelValues("error").Inc()
			log.Warn("result cache get failed", "err", err)
		case ok:
			s.ms.cache.WithLabelValues("hit").Inc()
			cached.FileName, cached.FilePath = FileName(path), path
			return cached
		default:
			s.ms.cache.WithLabelValues("miss").Inc()
		}
	}

	var entities []model.EntityRecord
	err := session.WithFile(ctx, s.opener, path, func(sess *session.Session) error {
		var err error
		entities, err = s.collect(ctx, sess, p)
		return err
	})
	if err != nil {
		return failed(path, err)
	}
	if entities == nil {
		entities = []model.EntityRecord{}
	}
	res = model.DrawingScanResult{FileName: FileName(path), FilePath: path, Entities: entities}

	if key != "" {
		if err := s.cache.Put(ctx, key, res); err != nil {
			log.Warn("result cache put failed", "err", err)
		}
	}
	return res
}

func (s *Scanner) collect(ctx context.Context, sess *session.Session, p plan) ([]model.EntityRecord, error) {
	candidates, err := blockCandidates(sess, p)
	if err != nil {
		return nil, err
	}
	blocks, err := extract.ExtractBlocks(ctx, sess, candidates)
	if err != nil {
		return nil, err
	}
	if len(p.geometry) == 0 {
		return blocks, nil
	}
	var geo []model.Handle
	for _, f := range p.geometry {
		hs, err := sess.Select(f)
		if err != nil {
			return nil, fmt.Errorf("select geometry: %w", err)
		}
		geo = append(geo, hs...)
	}
	rest, err := extract.Extract(ctx, sess, geo)
	if err != nil {
		return nil, err
	}
	return append(blocks, rest...), nil
}

// blockCandidates lists block references of model and paper space, each
// handle once, narrowed by the pattern and the name filter.
func blockCandidates(sess *session.Session, p plan) ([]model.Handle, error) {
	var allowed map[model.Handle]struct{}
	if p.names != nil {
		hs, err := sess.Select(p.names)
		if err != nil {
			return nil, fmt.Errorf("select names: %w", err)
		}
		allowed = make(map[model.Handle]struct{}, len(hs))
		for _, h := range hs {
			allowed[h] = struct{}{}
		}
	}

	db := sess.Database()
	seen := map[model.Handle]struct{}{}
	var out []model.Handle
	for _, c := range []model.Handle{db.ModelSpace(), db.PaperSpace()} {
		hs, err := sess.ContainerHandles(c)
		if err != nil {
			return nil, err
		}
		for _, h := range hs {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			if allowed != nil {
				if _, ok := allowed[h]; !ok {
					continue
				}
			}
			br, ok, err := session.Get[host.BlockReference](sess, h, host.ForRead)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if p.re != nil && !p.re.MatchString(br.Name()) {
				continue
			}
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Scanner) cacheKey(log *slog.Logger, path string, p plan) string {
	if s.cache == nil {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()
	sum, err := keys.ContentHash(f)
	if err != nil {
		log.Debug("content hash failed", "err", err)
		return ""
	}
	return keys.ScanKey(sum, p.key)
}

// finish records the outcome. A run id on ctx overrides the scanner's own.
func (s *Scanner) finish(ctx context.Context, log *slog.Logger, res model.DrawingScanResult, took time.Duration) {
	s.ms.duration.Observe(took.Seconds())
	if res.IsError {
		s.ms.files.WithLabelValues("error").Inc()
		log.WarnContext(ctx, "scan failed", "err", res.ErrorMessage, "took", took)
	} else {
		s.ms.files.WithLabelValues("ok").Inc()
		for _, e := range res.Entities {
			s.ms.entities.WithLabelValues(string(e.Kind)).Inc()
		}
		log.InfoContext(ctx, "scanned", "entities", len(res.Entities), "took", took)
	}
	if s.events != nil {
		runID := s.runID
		if id := logger.RunID(ctx); id != "" {
			runID = id
		}
		s.events.Publish(events.Event{
			RunID:    runID,
			Kind:     events.KindScan,
			File:     res.FileName,
			Entities: len(res.Entities),
			IsError:  res.IsError,
			Error:    res.ErrorMessage,
		})
	}
}

func failed(path string, err error) model.DrawingScanResult {
	return model.DrawingScanResult{
		FileName:     FileName(path),
		FilePath:     path,
		IsError:      true,
		ErrorMessage: err.Error(),
	}
}
