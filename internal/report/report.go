// Package report renders a batch summary for auditors, as Markdown or,
// for .html destinations, as HTML.
package report

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/zeebo/blake3"

	"github.com/hnrobert/lumprov/internal/batch"
)

// Meta identifies the run a summary belongs to.
type Meta struct {
	Input string
	// Digest is the BLAKE3 hash of the input file, see Digest.
	Digest   string
	Finished time.Time
}

// Digest returns "blake3:<hex>" for data, tying a report to the exact list
// it was produced from.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(sum[:])
}

// Markdown renders sum. Passwords are never part of a summary.
func Markdown(sum batch.Summary, meta Meta) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# User provisioning report\n\n")
	fmt.Fprintf(&b, "- Input: `%s`\n", meta.Input)
	if meta.Digest != "" {
		fmt.Fprintf(&b, "- Input digest: `%s`\n", meta.Digest)
	}
	fmt.Fprintf(&b, "- Finished: %s\n", meta.Finished.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- Records: %d processed, %d succeeded, %d failed\n", sum.Records, sum.Succeeded, len(sum.Failures))
	if sum.Interrupted {
		b.WriteString("- **Interrupted**: remaining records were not processed\n")
	}

	section := func(title string, names []string) {
		fmt.Fprintf(&b, "\n## %s (%d)\n\n", title, len(names))
		if len(names) == 0 {
			b.WriteString("_none_\n")
			return
		}
		for _, n := range names {
			fmt.Fprintf(&b, "- `%s`\n", n)
		}
	}
	section("Accounts created", sum.AccountsCreated)
	section("Accounts already present", sum.AccountsExisted)
	section("Groups created", sum.GroupsCreated)

	fmt.Fprintf(&b, "\n## Failures (%d)\n\n", len(sum.Failures))
	if len(sum.Failures) == 0 {
		b.WriteString("_none_\n")
		return []byte(b.String())
	}
	b.WriteString("| Line | User | Error |\n|---:|---|---|\n")
	for _, f := range sum.Failures {
		user := f.Username
		if user == "" {
			user = "-"
		}
		fmt.Fprintf(&b, "| %d | %s | %s |\n", f.Line, user, escapeCell(f.Err.Error()))
	}
	return []byte(b.String())
}

// HTML converts the Markdown report with GitHub-flavoured tables.
func HTML(md []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>User provisioning report</title></head><body>\n")
	if err := goldmark.New(goldmark.WithExtensions(extension.Table)).Convert(md, &buf); err != nil {
		return nil, err
	}
	buf.WriteString("</body></html>\n")
	return buf.Bytes(), nil
}

// Write stores the report at path, rendering HTML when path ends in .html.
func Write(path string, sum batch.Summary, meta Meta) error {
	data := Markdown(sum, meta)
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".html" || ext == ".htm" {
		var err error
		if data, err = HTML(data); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0640)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
