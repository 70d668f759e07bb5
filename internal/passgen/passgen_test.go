package passgen

import (
	"bytes"
	"regexp"
	"testing"
)

var printable = regexp.MustCompile(`^[A-Za-z0-9_-]{22}$`)

func TestGenerateFormatAndUniqueness(t *testing.T) {
	g := New()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		pw, err := g.Generate()
		if err != nil {
			t.Fatal(err)
		}
		if !printable.MatchString(pw) {
			t.Fatalf("unexpected password shape %q", pw)
		}
		if seen[pw] {
			t.Fatalf("duplicate password %q", pw)
		}
		seen[pw] = true
	}
}

func TestMinimumEntropyEnforced(t *testing.T) {
	g := &Generator{Rand: bytes.NewReader(make([]byte, 64)), Bytes: 4}
	pw, err := g.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if len(pw) != 22 {
		t.Fatalf("short request should fall back to %d bytes, got %q", DefaultBytes, pw)
	}
}

func TestExhaustedSource(t *testing.T) {
	g := &Generator{Rand: bytes.NewReader(make([]byte, 3)), Bytes: 16}
	if _, err := g.Generate(); err == nil {
		t.Fatal("expected error from short random source")
	}
}
