package export

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func batch() []model.DrawingScanResult {
	block := func(id, name string, attrs ...model.AttributeRecord) model.EntityRecord {
		return model.EntityRecord{
			Kind: model.KindBlock, ID: model.Handle(id), Layer: "0",
			Position: model.Point3{X: 1, Y: 2},
			Block:    &model.BlockRecord{Name: name, EffectiveName: name, Attributes: attrs},
		}
	}
	return []model.DrawingScanResult{
		{
			FileName: "A-100", FilePath: "/d/A-100.dwg",
			Entities: []model.EntityRecord{
				block("1F", "RwNode", model.AttributeRecord{Tag: "NAME", TextString: "N1"}, model.AttributeRecord{Tag: "ID", TextString: "1"}),
				block("20", "Raceway"),
				{Kind: model.KindLine, ID: "21", Line: &model.LineRecord{Length: 3}},
			},
		},
		{FileName: "B-200", FilePath: "/d/B-200.dwg", IsError: true, ErrorMessage: "open failed"},
		{FileName: "C-300", FilePath: "/d/C-300.dwg", Entities: []model.EntityRecord{block("30", "Drop")}},
	}
}

func TestJSONWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := New("json", dir, quiet())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	paths, err := w.Write(context.Background(), batch())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(paths) != 3 || paths[0] != filepath.Join(dir, "A-100.json") {
		t.Fatalf("paths=%v", paths)
	}
	b, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got model.DrawingScanResult
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.IsError || got.ErrorMessage != "open failed" {
		t.Fatalf("error result=%+v", got)
	}
}

func TestXLSXWriter_OneRowPerBlock(t *testing.T) {
	dir := t.TempDir()
	w, err := New("XLSX", dir, quiet())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	paths, err := w.Write(context.Background(), batch())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !reflect.DeepEqual(paths, []string{filepath.Join(dir, WorkbookName)}) {
		t.Fatalf("paths=%v", paths)
	}

	f, err := excelize.OpenFile(paths[0])
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer func() { _ = f.Close() }()

	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{SheetBlocks, SheetAttributes, SheetErrors}) {
		t.Fatalf("sheets=%v", got)
	}
	rows, err := f.GetRows(SheetBlocks)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("block rows=%d want header+3: %v", len(rows), rows)
	}
	if rows[1][0] != "A-100" || rows[1][1] != "1F" || rows[1][2] != "RwNode" {
		t.Fatalf("row 1=%v", rows[1])
	}
	if rows[3][2] != "Drop" {
		t.Fatalf("row 3=%v", rows[3])
	}

	attrs, _ := f.GetRows(SheetAttributes)
	if len(attrs) != 3 || attrs[2][2] != "ID" || attrs[2][3] != "1" {
		t.Fatalf("attribute rows=%v", attrs)
	}
	errs, _ := f.GetRows(SheetErrors)
	if len(errs) != 2 || errs[1][0] != "B-200" || errs[1][2] != "open failed" {
		t.Fatalf("error rows=%v", errs)
	}
}

func TestNewFallsBackToJSON(t *testing.T) {
	w, err := New("yaml", t.TempDir(), quiet())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := w.(*jsonWriter); !ok {
		t.Fatalf("writer=%T want *jsonWriter", w)
	}
	if got := Formats(); !reflect.DeepEqual(got, []string{"json", "xlsx"}) {
		t.Fatalf("formats=%v", got)
	}
}

func TestClearExports(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.json", "b.XML", "c.txt", "scan.xlsx", "keep.dwg", "keep.log"} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	n, err := ClearExports(dir)
	if err != nil {
		t.Fatalf("ClearExports: %v", err)
	}
	if n != 4 {
		t.Fatalf("removed=%d want 4", n)
	}
	left, _ := os.ReadDir(dir)
	var names []string
	for _, e := range left {
		names = append(names, e.Name())
	}
	if !reflect.DeepEqual(names, []string{"keep.dwg", "keep.log", "sub.json"}) {
		t.Fatalf("left=%v", names)
	}

	if n, err := ClearExports(filepath.Join(dir, "missing")); err != nil || n != 0 {
		t.Fatalf("missing dir n=%d err=%v", n, err)
	}
}

func TestExportPath(t *testing.T) {
	got := ExportPath("/exports", `C:\jobs\B-200.DWG`, ".json")
	if got != filepath.Join("/exports", "B-200.json") {
		t.Fatalf("ExportPath=%q", got)
	}
}

func TestJSONWriter_SameStemKeepsBoth(t *testing.T) {
	dir := t.TempDir()
	w, err := New("json", dir, quiet())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results := []model.DrawingScanResult{
		{FileName: "x", FilePath: "/a/x.dwg", Entities: []model.EntityRecord{}},
		{FileName: "x", FilePath: "/b/x.dwg", IsError: true, ErrorMessage: "open failed"},
		{FileName: "X", FilePath: "/c/X.DWG", Entities: []model.EntityRecord{}},
	}
	paths, err := w.Write(context.Background(), results)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := []string{filepath.Join(dir, "x.json"), filepath.Join(dir, "x-2.json"), filepath.Join(dir, "X-3.json")}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("paths=%v want %v", paths, want)
	}
	for i, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		var got model.DrawingScanResult
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if got.FilePath != results[i].FilePath {
			t.Fatalf("%s holds %s want %s", p, got.FilePath, results[i].FilePath)
		}
	}
}
