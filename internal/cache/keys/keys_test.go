package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

func TestScanKey_Deterministic(t *testing.T) {
	k1 := ScanKey(42, "pattern=mto_*;names=A,B;geometry=false")
	k2 := ScanKey(42, "pattern=mto_*;names=A,B;geometry=false")
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestScanKey_WhitespaceVariantsShareKey(t *testing.T) {
	k1 := ScanKey(1, "  pattern=a   b ")
	k2 := ScanKey(1, "pattern=a\tb")
	if k1 != k2 {
		t.Fatalf("normalized keys differ:\n k1=%s\n k2=%s", k1, k2)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9:_=\-]+$`).MatchString(k1) {
		t.Fatalf("key contains disallowed characters: %s", k1)
	}
}

func TestScanKey_ContentAndQueryMatter(t *testing.T) {
	if ScanKey(1, "q") == ScanKey(2, "q") {
		t.Fatalf("different content must produce different keys")
	}
	if ScanKey(1, "names=A,B") == ScanKey(1, "names=B,A") {
		t.Fatalf("different queries must produce different keys")
	}
}

func TestScanKey_UnicodeAndLength(t *testing.T) {
	k := ScanKey(7, "pattern=Göteborg_雪;"+strings.Repeat("x", 400))
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if !regexp.MustCompile(`:f=[0-9a-f]{16}$`).MatchString(k) {
		t.Fatalf("hash suffix missing: %s", k)
	}
	if len(k) > 200 {
		t.Fatalf("key too long: %d", len(k))
	}
}

func TestContentHash(t *testing.T) {
	a, err := ContentHash(strings.NewReader("drawing"))
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	b, _ := ContentHash(strings.NewReader("drawing"))
	c, _ := ContentHash(strings.NewReader("drawing2"))
	if a != b || a == c {
		t.Fatalf("hashes a=%x b=%x c=%x", a, b, c)
	}
}
