package scan

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ReadFileList reads one drawing path per line. Blank lines and paths that
// do not exist are skipped.
func ReadFileList(path string, log *slog.Logger) ([]string, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		p := strings.TrimSpace(sc.Text())
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			log.Debug("file list entry skipped", "path", p, "err", err)
			continue
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read file list: %w", err)
	}
	return out, nil
}

// FileName is the base name of path with a trailing .dwg removed, case
// insensitively. Both slash styles separate directories.
func FileName(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if n := len(base); n >= 4 && strings.EqualFold(base[n-4:], ".dwg") {
		base = base[:n-4]
	}
	return base
}
