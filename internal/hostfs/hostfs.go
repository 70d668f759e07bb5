package hostfs

import (
	"errors"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid host path")

// Warner receives non-fatal notices such as write fallbacks.
type Warner interface {
	Warn(format string, args ...any)
}

// FS maps host paths under Root.
type FS struct {
	Root string
	Log  Warner
}

func New(root string, log Warner) *FS {
	if root == "" {
		root = "/"
	}
	return &FS{Root: filepath.Clean(root), Log: log}
}

// Path joins Root with a relative path (no leading slash).
// Example: Path("etc/passwd") -> <Root>/etc/passwd
func (fs *FS) Path(rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "/")
	clean := filepath.Clean(rel)
	if clean == "." || clean == "" {
		return "", ErrInvalidPath
	}
	if strings.HasPrefix(clean, "..") {
		return "", ErrInvalidPath
	}
	return filepath.Join(fs.Root, clean), nil
}

// Abs maps an absolute host path (e.g. /home/alice) into the path seen by
// this process (e.g. /host/home/alice when Root is /host).
func (fs *FS) Abs(abs string) (string, error) {
	if abs == "" || !strings.HasPrefix(abs, "/") {
		return "", ErrInvalidPath
	}
	clean := filepath.Clean(abs)
	if clean == "/" {
		return "", ErrInvalidPath
	}
	return filepath.Join(fs.Root, strings.TrimPrefix(clean, "/")), nil
}

func (fs *FS) warn(format string, args ...any) {
	if fs.Log != nil {
		fs.Log.Warn(format, args...)
	}
}
