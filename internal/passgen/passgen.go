// Package passgen generates initial account passwords.
package passgen

import (
	"crypto/rand"
	"encoding/base64"
	"io"
)

// DefaultBytes of entropy per password; encodes to 22 printable characters.
const DefaultBytes = 16

type Generator struct {
	// Rand defaults to crypto/rand.Reader.
	Rand  io.Reader
	Bytes int
}

func New() *Generator {
	return &Generator{Rand: rand.Reader, Bytes: DefaultBytes}
}

// Generate returns a fresh URL-safe base64 password without padding.
func (g *Generator) Generate() (string, error) {
	n := g.Bytes
	if n < 12 {
		n = DefaultBytes
	}
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(src, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
