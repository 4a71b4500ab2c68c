package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/raceway-cad/internal/cache"
	"github.com/mohammed-shakir/raceway-cad/internal/cache/redisstore"
	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/events"
	"github.com/mohammed-shakir/raceway-cad/internal/filter"
	"github.com/mohammed-shakir/raceway-cad/internal/host"
	"github.com/mohammed-shakir/raceway-cad/internal/host/memdb"
	"github.com/mohammed-shakir/raceway-cad/internal/logger"
)

// countingOpener wraps memdb.Opener, counts opens and lets a test tamper
// with each database before the scanner sees it.
type countingOpener struct {
	opens  int
	tamper func(path string, db *memdb.DB)
}

func (o *countingOpener) OpenFile(ctx context.Context, path string) (host.Database, error) {
	o.opens++
	d, err := memdb.Opener{}.OpenFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if o.tamper != nil {
		o.tamper(path, d.(*memdb.DB))
	}
	return d, nil
}

type sinkRecorder struct{ got []events.Event }

func (s *sinkRecorder) Publish(ev events.Event) { s.got = append(s.got, ev) }

func writeDrawing(t *testing.T, dir, name string, snap memdb.Snapshot) string {
	t.Helper()
	db, err := memdb.FromSnapshot(name, snap)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	p := filepath.Join(dir, name)
	if err := db.SaveFile(p); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	return p
}

func pipeDrawing() memdb.Snapshot {
	return memdb.Snapshot{
		ModelSpace: []memdb.EntityDef{
			{Handle: "300", Type: "INSERT", Name: "MTO_PIPE", Attributes: []memdb.AttributeValue{{Tag: "NAME", Text: "P-1"}}},
			{Handle: "301", Type: "INSERT", Name: "VALVE"},
			{Handle: "302", Type: "INSERT", Name: "mto_flange"},
			{Handle: "303", Type: "LINE", Start: &model.Point3{}, End: &model.Point3{X: 2}},
			{Handle: "304", Type: "INSERT", Name: "*U7"},
		},
		PaperSpace: []memdb.EntityDef{
			{Handle: "300", Type: "INSERT", Name: "MTO_PIPE"},
			{Handle: "310", Type: "MTEXT", Contents: "title", Height: 3},
		},
	}
}

func ids(recs []model.EntityRecord) []model.Handle {
	out := make([]model.Handle, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestScan_OneResultPerPathInOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeDrawing(t, dir, "a.dwg", pipeDrawing())
	b := writeDrawing(t, dir, "B.DWG", pipeDrawing())
	missing := filepath.Join(dir, "missing.dwg")

	s := New(&countingOpener{}, Options{})
	res, err := s.Scan(context.Background(), []string{a, missing, b}, Query{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("results=%d want 3", len(res))
	}
	if res[0].FileName != "a" || res[0].FilePath != a || res[0].IsError {
		t.Fatalf("res[0]=%+v", res[0])
	}
	if !res[1].IsError || res[1].ErrorMessage == "" || len(res[1].Entities) != 0 || res[1].FileName != "missing" {
		t.Fatalf("res[1]=%+v", res[1])
	}
	if res[2].FileName != "B" || res[2].IsError {
		t.Fatalf("res[2]=%+v", res[2])
	}
}

func TestScan_DedupsAcrossSpacesAndSkipsAnonymous(t *testing.T) {
	p := writeDrawing(t, t.TempDir(), "a.dwg", pipeDrawing())
	res, err := New(&countingOpener{}, Options{}).Scan(context.Background(), []string{p}, Query{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := ids(res[0].Entities)
	want := []model.Handle{"300", "301", "302"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ids=%v want %v", got, want)
	}
}

func TestScan_PatternAndNames(t *testing.T) {
	p := writeDrawing(t, t.TempDir(), "a.dwg", pipeDrawing())
	s := New(&countingOpener{}, Options{})

	res, err := s.Scan(context.Background(), []string{p}, Query{Pattern: "^mto_"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := ids(res[0].Entities); !reflect.DeepEqual(got, []model.Handle{"300", "302"}) {
		t.Fatalf("pattern ids=%v", got)
	}

	res, err = s.Scan(context.Background(), []string{p}, Query{Pattern: "^mto_", Names: []string{"MTO_FLANGE", "VALVE"}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := ids(res[0].Entities); !reflect.DeepEqual(got, []model.Handle{"302"}) {
		t.Fatalf("pattern+names ids=%v", got)
	}

	res, _ = s.Scan(context.Background(), []string{p}, Query{Names: []string{"NOTHING"}})
	if res[0].IsError || len(res[0].Entities) != 0 || res[0].Entities == nil {
		t.Fatalf("zero matches must be an empty success: %+v", res[0])
	}
}

func TestScan_IncludeGeometry(t *testing.T) {
	p := writeDrawing(t, t.TempDir(), "a.dwg", pipeDrawing())
	res, err := New(&countingOpener{}, Options{}).Scan(context.Background(), []string{p}, Query{IncludeGeometry: true})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := ids(res[0].Entities)
	want := []model.Handle{"300", "301", "302", "303", "310"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ids=%v want %v", got, want)
	}
}

func TestScan_BadQueryFailsBeforeOpening(t *testing.T) {
	p := writeDrawing(t, t.TempDir(), "a.dwg", pipeDrawing())
	op := &countingOpener{}
	s := New(op, Options{})

	if _, err := s.Scan(context.Background(), []string{p}, Query{Pattern: "mto_("}); !errors.Is(err, ErrConfig) {
		t.Fatalf("bad pattern err=%v", err)
	}
	_, err := s.Scan(context.Background(), []string{p}, Query{Names: []string{"A", ""}})
	if !errors.Is(err, ErrConfig) || !errors.Is(err, filter.ErrInvalidFilter) {
		t.Fatalf("empty name err=%v", err)
	}
	if op.opens != 0 {
		t.Fatalf("opened %d files for an invalid query", op.opens)
	}
}

func TestScan_FailuresAreIsolatedPerFile(t *testing.T) {
	dir := t.TempDir()
	good := writeDrawing(t, dir, "good.dwg", pipeDrawing())
	broken := writeDrawing(t, dir, "broken.dwg", pipeDrawing())
	panicky := writeDrawing(t, dir, "panicky.dwg", pipeDrawing())
	op := &countingOpener{tamper: func(path string, db *memdb.DB) {
		switch filepath.Base(path) {
		case "broken.dwg":
			// fails after the first block was already read
			db.FailGet("302", errors.New("corrupt entity"))
		case "panicky.dwg":
			db.PanicOnGet("301", "host crashed")
		}
	}}
	reg := prometheus.NewRegistry()
	s := New(op, Options{Register: reg})

	res, err := s.Scan(context.Background(), []string{broken, panicky, good}, Query{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res[0].IsError || res[0].Entities != nil || !strings.Contains(res[0].ErrorMessage, "corrupt entity") {
		t.Fatalf("broken=%+v", res[0])
	}
	if !res[1].IsError || !strings.Contains(res[1].ErrorMessage, "host crashed") {
		t.Fatalf("panicky=%+v", res[1])
	}
	if res[2].IsError || len(res[2].Entities) != 3 {
		t.Fatalf("good=%+v", res[2])
	}
	if got := testutil.ToFloat64(s.ms.files.WithLabelValues("error")); got != 2 {
		t.Fatalf("error files=%v want 2", got)
	}
	if got := testutil.ToFloat64(s.ms.files.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok files=%v want 1", got)
	}
	if got := testutil.ToFloat64(s.ms.entities.WithLabelValues("block")); got != 3 {
		t.Fatalf("block entities=%v want 3", got)
	}
}

func TestScan_CanceledContextStillYieldsOneResultPerPath(t *testing.T) {
	p := writeDrawing(t, t.TempDir(), "a.dwg", pipeDrawing())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	op := &countingOpener{}
	res, err := New(op, Options{}).Scan(ctx, []string{p, p}, Query{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res) != 2 || !res[0].IsError || !res[1].IsError {
		t.Fatalf("res=%+v", res)
	}
	if op.opens != 0 {
		t.Fatalf("opened %d files after cancellation", op.opens)
	}
}

func TestScan_CachedResultsEqualFresh(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr(), nil)
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	p := writeDrawing(t, t.TempDir(), "a.dwg", pipeDrawing())
	op := &countingOpener{}
	s := New(op, Options{Cache: cache.NewResults(rc, time.Minute)})
	q := Query{Pattern: "mto", IncludeGeometry: true}

	fresh, err := s.Scan(context.Background(), []string{p}, q)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	again, err := s.Scan(context.Background(), []string{p}, q)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if op.opens != 1 {
		t.Fatalf("opens=%d want 1 (second scan cached)", op.opens)
	}
	if !reflect.DeepEqual(fresh, again) {
		t.Fatalf("cached result differs:\n%+v\n%+v", fresh, again)
	}
	if got := testutil.ToFloat64(s.ms.cache.WithLabelValues("hit")); got != 1 {
		t.Fatalf("cache hits=%v want 1", got)
	}

	// a changed query misses
	if _, err := s.Scan(context.Background(), []string{p}, Query{}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if op.opens != 2 {
		t.Fatalf("opens=%d want 2", op.opens)
	}
}

func TestScan_PublishesOneEventPerFile(t *testing.T) {
	dir := t.TempDir()
	p := writeDrawing(t, dir, "a.dwg", pipeDrawing())
	sink := &sinkRecorder{}
	s := New(&countingOpener{}, Options{Events: sink, RunID: "run-1"})
	if _, err := s.Scan(context.Background(), []string{p, filepath.Join(dir, "nope.dwg")}, Query{}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(sink.got) != 2 {
		t.Fatalf("events=%d want 2", len(sink.got))
	}
	if e := sink.got[0]; e.RunID != "run-1" || e.Kind != events.KindScan || e.File != "a" || e.Entities != 3 || e.IsError {
		t.Fatalf("event[0]=%+v", e)
	}
	if !sink.got[1].IsError {
		t.Fatalf("event[1]=%+v", sink.got[1])
	}
}

func TestReadFileList(t *testing.T) {
	dir := t.TempDir()
	a := writeDrawing(t, dir, "a.dwg", pipeDrawing())
	list := filepath.Join(dir, "list.txt")
	body := a + "\n\n  \n" + filepath.Join(dir, "gone.dwg") + "\n" + a + "\n"
	if err := os.WriteFile(list, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFileList(list, nil)
	if err != nil {
		t.Fatalf("ReadFileList: %v", err)
	}
	if !reflect.DeepEqual(got, []string{a, a}) {
		t.Fatalf("paths=%v", got)
	}
	if _, err := ReadFileList(filepath.Join(dir, "none.txt"), nil); err == nil {
		t.Fatalf("expected error for missing list")
	}
}

func TestFileName(t *testing.T) {
	cases := map[string]string{
		`/data/plant/A-100.dwg`: "A-100",
		`C:\jobs\B-200.DWG`:     "B-200",
		`relative.Dwg`:          "relative",
		`/data/notes.dwg.bak`:   "notes.dwg.bak",
		`/data/no_extension`:    "no_extension",
		`/data/layout.dxf`:      "layout.dxf",
	}
	for in, want := range cases {
		if got := FileName(in); got != want {
			t.Fatalf("FileName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestQueryStringIsOrderInsensitiveForNames(t *testing.T) {
	a := Query{Names: []string{"B", "A", "A"}}.String()
	b := Query{Names: []string{"A", "B"}}.String()
	if a != b {
		t.Fatalf("%q != %q", a, b)
	}
}

func TestScan_ContextRunIDOverrides(t *testing.T) {
	p := writeDrawing(t, t.TempDir(), "a.dwg", pipeDrawing())
	sink := &sinkRecorder{}
	s := New(&countingOpener{}, Options{Events: sink, RunID: "batch"})
	ctx := logger.WithRunID(context.Background(), "req-9")
	if _, err := s.Scan(ctx, []string{p}, Query{}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(sink.got) != 1 || sink.got[0].RunID != "req-9" {
		t.Fatalf("events=%+v", sink.got)
	}
}
