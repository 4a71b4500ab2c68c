package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
)

func init() {
	Register("json", newJSONWriter)
}

// jsonWriter writes one <stem>.json document per drawing. Drawings that share
// a stem get -2, -3, ... suffixes in input order.
type jsonWriter struct {
	dir string
	log *slog.Logger
}

func newJSONWriter(dir string, logger *slog.Logger) (Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export dir: %w", err)
	}
	return &jsonWriter{dir: dir, log: logger}, nil
}

func (w *jsonWriter) Write(ctx context.Context, results []model.DrawingScanResult) ([]string, error) {
	paths := make([]string, 0, len(results))
	used := make(map[string]struct{}, len(results))
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return paths, fmt.Errorf("encode %s: %w", r.FileName, err)
		}
		base := ExportPath(w.dir, r.FilePath, ".json")
		p := uniquePath(used, base)
		if p != base {
			w.log.Warn("json export name collision", "file", r.FilePath, "path", p)
		}
		if err := os.WriteFile(p, append(b, '\n'), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	w.log.Debug("json export written", "files", len(paths), "dir", w.dir)
	return paths, nil
}

// uniquePath returns p, or p with the first free -N suffix before its
// extension. Names are compared case-insensitively.
func uniquePath(used map[string]struct{}, p string) string {
	ext := filepath.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	cand := p
	for n := 2; ; n++ {
		if _, taken := used[strings.ToLower(cand)]; !taken {
			break
		}
		cand = stem + "-" + strconv.Itoa(n) + ext
	}
	used[strings.ToLower(cand)] = struct{}{}
	return cand
}
