package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
)

const (
	WorkbookName    = "scan.xlsx"
	SheetBlocks     = "Blocks"
	SheetAttributes = "Attributes"
	SheetErrors     = "Errors"
)

func init() {
	Register("xlsx", newXLSXWriter)
}

// xlsxWriter writes the whole batch into one workbook: a row per block
// reference, a row per attribute and a row per failed drawing.
type xlsxWriter struct {
	dir string
	log *slog.Logger
}

func newXLSXWriter(dir string, logger *slog.Logger) (Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export dir: %w", err)
	}
	return &xlsxWriter{dir: dir, log: logger}, nil
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	err   error
}

func (s *sheetWriter) append(values ...any) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetSheetRow(s.sheet, cell, &values)
	s.row++
}

func (w *xlsxWriter) Write(ctx context.Context, results []model.DrawingScanResult) ([]string, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default sheet becomes Blocks
	if err := f.SetSheetName(f.GetSheetName(0), SheetBlocks); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	for _, name := range []string{SheetAttributes, SheetErrors} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("xlsx sheet: %w", err)
		}
	}

	blocks := &sheetWriter{f: f, sheet: SheetBlocks, row: 1}
	attrs := &sheetWriter{f: f, sheet: SheetAttributes, row: 1}
	errs := &sheetWriter{f: f, sheet: SheetErrors, row: 1}
	blocks.append("File", "Handle", "Name", "Effective Name", "Layer", "X", "Y", "Z", "Rotation")
	attrs.append("File", "Handle", "Tag", "Text")
	errs.append("File", "Path", "Message")

	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.IsError {
			errs.append(r.FileName, r.FilePath, r.ErrorMessage)
			continue
		}
		for _, e := range r.Entities {
			if e.Kind != model.KindBlock || e.Block == nil {
				continue
			}
			b := e.Block
			blocks.append(r.FileName, string(e.ID), b.Name, b.EffectiveName, e.Layer,
				e.Position.X, e.Position.Y, e.Position.Z, b.Rotation)
			for _, a := range b.Attributes {
				attrs.append(r.FileName, string(e.ID), a.Tag, a.TextString)
			}
		}
	}
	for _, s := range []*sheetWriter{blocks, attrs, errs} {
		if s.err != nil {
			return nil, fmt.Errorf("xlsx %s: %w", s.sheet, s.err)
		}
	}

	_ = f.SetColWidth(SheetBlocks, "A", "A", 24)
	_ = f.SetColWidth(SheetBlocks, "C", "D", 28)
	_ = f.SetColWidth(SheetErrors, "B", "C", 60)

	p := filepath.Join(w.dir, WorkbookName)
	if err := f.SaveAs(p); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	w.log.Info("export.xlsx.ok",
		"path", p,
		"blocks", blocks.row-2,
		"errors", errs.row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return []string{p}, nil
}
