// Package export writes scan results to the export directory. Formats are
// registered by name; "json" is always available and is the fallback.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/scan"
)

type Writer interface {
	Write(ctx context.Context, results []model.DrawingScanResult) ([]string, error)
}

type Factory func(dir string, logger *slog.Logger) (Writer, error)

var reg = map[string]Factory{}

func Register(name string, f Factory) {
	reg[strings.ToLower(name)] = f
}

// Formats lists the registered format names.
func Formats() []string {
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func New(name, dir string, logger *slog.Logger) (Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if f, ok := reg[strings.ToLower(name)]; ok {
		return f(dir, logger)
	}
	if f, ok := reg["json"]; ok {
		logger.Warn("unknown export format; falling back to json", "format", name)
		return f(dir, logger)
	}
	return nil, fmt.Errorf("no writer for format %q and no json writer registered", name)
}

var exportExts = map[string]struct{}{
	".json": {},
	".xml":  {},
	".txt":  {},
	".xlsx": {},
}

// ClearExports removes previous outputs from dir and returns how many files
// were deleted. A missing directory is not an error. Subdirectories are left
// alone.
func ClearExports(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("clear exports: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := exportExts[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return n, fmt.Errorf("clear exports: %w", err)
		}
		n++
	}
	return n, nil
}

// ExportPath is the output path for drawing in dir: the drawing's stem with
// ext appended.
func ExportPath(dir, drawing, ext string) string {
	return filepath.Join(dir, scan.FileName(drawing)+ext)
}
