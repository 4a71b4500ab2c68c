package memdb

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/filter"
	"github.com/mohammed-shakir/raceway-cad/internal/geom"
	"github.com/mohammed-shakir/raceway-cad/internal/host"
)

const drawing = `{
  "templates": [{"name": "MTO_PIPE", "attributes": [{"tag": "NAME", "height": 0.2}]}],
  "modelSpace": [
    {"handle": "1A0", "type": "INSERT", "name": "MTO_PIPE", "layer": "PIPE", "position": {"x": 1, "y": 2, "z": 0},
     "attributes": [{"tag": "NAME", "text": "P-1"}, {"tag": "SIZE", "text": ""}]},
    {"handle": "1A1", "type": "INSERT", "name": "VALVE", "position": {"x": 0, "y": 0, "z": 0}},
    {"handle": "1A2", "type": "LINE", "layer": "L", "start": {"x": 0, "y": 0, "z": 0}, "end": {"x": 3, "y": 4, "z": 0}, "color": "red"}
  ],
  "paperSpace": [
    {"handle": "1A0", "type": "INSERT", "name": "MTO_PIPE"},
    {"handle": "1B0", "type": "MTEXT", "contents": "note", "height": 2.5, "attachment": 1}
  ]
}`

func load(t *testing.T) *DB {
	t.Helper()
	db, err := Load("test", strings.NewReader(drawing))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return db
}

func TestLoadSharesHandleAcrossSpaces(t *testing.T) {
	db := load(t)
	if got := db.Count(db.ModelSpace()); got != 3 {
		t.Fatalf("model space=%d want 3", got)
	}
	if got := db.Count(db.PaperSpace()); got != 2 {
		t.Fatalf("paper space=%d want 2", got)
	}
	tx, _ := db.StartTransaction()
	defer func() { _ = tx.Dispose() }()
	o, err := tx.GetObject("1A0", host.ForRead)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	ref := o.(host.BlockReference)
	if ref.Position() != (model.Point3{X: 1, Y: 2}) || ref.ScaleFactor() != 1 {
		t.Fatalf("position=%v scale=%v", ref.Position(), ref.ScaleFactor())
	}
	if n := len(ref.AttributeHandles()); n != 2 {
		t.Fatalf("attributes=%d want 2", n)
	}
}

func TestSelectWildcardAndDedup(t *testing.T) {
	db := load(t)
	f, _ := filter.BuildBlockNameFilter([]string{"mto_*"})
	hs, st := db.Select(filter.Tokens(f))
	if st != host.SelectOK || len(hs) != 1 || hs[0] != "1A0" {
		t.Fatalf("select=%v status=%v", hs, st)
	}

	f, _ = filter.BuildTypeFilter(filter.TypeMText)
	hs, st = db.Select(filter.Tokens(f))
	if st != host.SelectOK || len(hs) != 1 || hs[0] != "1B0" {
		t.Fatalf("mtext select=%v status=%v", hs, st)
	}

	f, _ = filter.BuildBlockNameFilter([]string{"NOPE"})
	if hs, st := db.Select(filter.Tokens(f)); st != host.SelectNone || hs != nil {
		t.Fatalf("select=%v status=%v want none", hs, st)
	}

	bad := []filter.Token{{Code: filter.CodeOperator, Value: "<AND"}}
	if _, st := db.Select(bad); st != host.SelectError {
		t.Fatalf("status=%v want error", st)
	}
}

func TestNotFilter(t *testing.T) {
	db := load(t)
	f := filter.And(filter.Type(filter.TypeInsert), filter.Not(filter.Layer("PIPE")))
	hs, st := db.Select(filter.Tokens(f))
	if st != host.SelectOK || len(hs) != 1 || hs[0] != "1A1" {
		t.Fatalf("select=%v status=%v", hs, st)
	}
}

func TestAbortDiscardsWrites(t *testing.T) {
	db := load(t)
	tpl, ok := db.Template("mto_pipe")
	if !ok {
		t.Fatalf("template lookup is case insensitive")
	}
	tx, _ := db.StartTransaction()
	ref, attrs, err := db.NewBlockReference(tpl, model.Point3{X: 5})
	if err != nil {
		t.Fatalf("NewBlockReference: %v", err)
	}
	if len(attrs) != 1 || attrs[0].Tag() != "NAME" || attrs[0].Position() != (model.Point3{X: 5}) {
		t.Fatalf("attrs=%v", attrs)
	}
	if _, err := tx.Append(db.ModelSpace(), ref); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := tx.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	_ = tx.Dispose()
	if got := db.Count(db.ModelSpace()); got != 3 {
		t.Fatalf("model space=%d want 3 after abort", got)
	}
	if db.OpenTransactions() != 0 {
		t.Fatalf("open transactions=%d", db.OpenTransactions())
	}
}

func TestFailAppendAfter(t *testing.T) {
	for _, n := range []int{0, 2} {
		db := load(t)
		tpl, _ := db.Template("MTO_PIPE")
		db.FailAppendAfter(n)
		tx, _ := db.StartTransaction()
		for i := 0; i <= n; i++ {
			ref, _, err := db.NewBlockReference(tpl, model.Point3{X: float64(i)})
			if err != nil {
				t.Fatalf("NewBlockReference: %v", err)
			}
			_, err = tx.Append(db.ModelSpace(), ref)
			if i < n && err != nil {
				t.Fatalf("n=%d append %d: %v", n, i+1, err)
			}
			if i == n && err == nil {
				t.Fatalf("n=%d append %d succeeded, want injected failure", n, i+1)
			}
		}
		_ = tx.Abort()
		_ = tx.Dispose()
	}
}

func TestCommitPublishesAttributes(t *testing.T) {
	db := load(t)
	tpl, _ := db.Template("MTO_PIPE")
	tx, _ := db.StartTransaction()
	ref, attrs, _ := db.NewBlockReference(tpl, model.Point3{})
	attrs[0].SetTextString("P-9")
	h, err := tx.Append(db.PaperSpace(), ref)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, host.ErrTransactionDone) {
		t.Fatalf("second commit err=%v", err)
	}
	_ = tx.Dispose()

	tx2, _ := db.StartTransaction()
	defer func() { _ = tx2.Dispose() }()
	o, err := tx2.GetObject(h, host.ForRead)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	ah := o.(host.BlockReference).AttributeHandles()
	if len(ah) != 1 {
		t.Fatalf("attribute handles=%v", ah)
	}
	a, err := tx2.GetObject(ah[0], host.ForRead)
	if err != nil || a.(host.AttributeReference).TextString() != "P-9" {
		t.Fatalf("attribute=%v err=%v", a, err)
	}
	if a.(host.Entity).OwnerID() != h {
		t.Fatalf("attribute owner=%v want %v", a.(host.Entity).OwnerID(), h)
	}
}

func TestReadOnlyAndMisses(t *testing.T) {
	db := load(t)
	db.SetReadOnly(true)
	tx, _ := db.StartTransaction()
	defer func() { _ = tx.Dispose() }()
	if _, err := tx.GetObject("1A0", host.ForWrite); !errors.Is(err, host.ErrReadOnly) {
		t.Fatalf("write open err=%v", err)
	}
	if _, err := tx.GetObject("FFFF", host.ForRead); !errors.Is(err, host.ErrNotFound) {
		t.Fatalf("miss err=%v", err)
	}
}

func TestAttributeTransformKeepsHeightUnderRotation(t *testing.T) {
	a := &attribute{position: model.Point3{X: 1}, height: 0.25}
	a.TransformBy(geom.Rotation(math.Pi/2, geom.ZAxis, model.Point3{}))
	if math.Abs(a.height-0.25) > 1e-12 {
		t.Fatalf("height=%v want 0.25", a.height)
	}
	if math.Abs(a.rotation-math.Pi/2) > 1e-12 {
		t.Fatalf("rotation=%v want π/2", a.rotation)
	}
	if math.Abs(a.position.Y-1) > 1e-12 || math.Abs(a.position.X) > 1e-12 {
		t.Fatalf("position=%v want (0,1,0)", a.position)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := load(t)
	tx, _ := db.StartTransaction()
	o, _ := tx.GetObject("1A0", host.ForWrite)
	ref := o.(host.BlockReference)
	ref.TransformBy(geom.Rotation(math.Pi/2, geom.ZAxis, ref.Position()))
	ref.SetXData("RACEWAY", 42)
	_ = tx.Commit()
	_ = tx.Dispose()

	var buf bytes.Buffer
	if err := db.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	back, err := Load("back", &buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tx2, _ := back.StartTransaction()
	defer func() { _ = tx2.Dispose() }()
	o2, err := tx2.GetObject("1A0", host.ForRead)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	ref2 := o2.(host.BlockReference)
	if math.Abs(ref2.Rotation()-math.Pi/2) > 1e-9 {
		t.Fatalf("rotation=%v want π/2", ref2.Rotation())
	}
	if v, ok := ref2.XData("RACEWAY"); !ok || v != 42 {
		t.Fatalf("xdata=%v,%v", v, ok)
	}
	if back.Count(back.PaperSpace()) != 2 {
		t.Fatalf("paper space lost the shared reference")
	}
}
