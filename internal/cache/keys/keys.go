// Package keys builds Redis keys for cached scan results.
package keys

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const maxQueryTextLen = 120

// ContentHash digests a drawing file.
func ContentHash(r io.Reader) (uint64, error) {
	d := xxhash.New()
	if _, err := io.Copy(d, r); err != nil {
		return 0, fmt.Errorf("hash drawing: %w", err)
	}
	return d.Sum64(), nil
}

// ScanKey names the result of scanning a drawing with the given content
// hash under a query. Whitespace variants of the same query share a key.
// The readable query part is truncated; the trailing hash is not.
func ScanKey(content uint64, query string) string {
	q := collapseASCIIWhitespace(query)
	safe := sanitizeForKey(q)
	if len(safe) > maxQueryTextLen {
		safe = safe[:maxQueryTextLen]
	}
	return fmt.Sprintf("scan:v1:%016x:q=%s:f=%016x", content, safe, xxhash.Sum64String(q))
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case isASCIISpace(r):
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '=':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if isASCIISpace(r) {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isASCIISpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
