package usermgr

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

type rawLine[T any] struct {
	raw   string
	entry *T
}

// parsedFile keeps every line of a colon file in order so that rewriting
// it only changes the entries we touched.
type parsedFile[T any] struct {
	lines []rawLine[T]
}

func (pf *parsedFile[T]) entries() []*T {
	out := make([]*T, 0, len(pf.lines))
	for i := range pf.lines {
		if pf.lines[i].entry != nil {
			out = append(out, pf.lines[i].entry)
		}
	}
	return out
}

func (pf *parsedFile[T]) add(e T) {
	pf.lines = append(pf.lines, rawLine[T]{entry: &e})
}

func (pf *parsedFile[T]) bytes(format func(*T) string) []byte {
	var buf strings.Builder
	for _, ln := range pf.lines {
		if ln.entry != nil {
			buf.WriteString(format(ln.entry))
		} else {
			buf.WriteString(ln.raw)
		}
		buf.WriteByte('\n')
	}
	return []byte(buf.String())
}

// parseColonFile splits b into lines and hands each entry line with at least
// minFields colon fields to parse. Blank, comment and short lines are kept raw.
func parseColonFile[T any](b []byte, minFields int, parse func([]string) (T, error)) (parsedFile[T], error) {
	var pf parsedFile[T]
	s := bufio.NewScanner(bytes.NewReader(b))
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		line := s.Text()
		trim := strings.TrimSpace(line)
		// Keep trailing empty fields.
		parts := strings.Split(line, ":")
		if trim == "" || strings.HasPrefix(trim, "#") || len(parts) < minFields {
			pf.lines = append(pf.lines, rawLine[T]{raw: line})
			continue
		}
		e, err := parse(parts)
		if err != nil {
			return pf, err
		}
		pf.lines = append(pf.lines, rawLine[T]{entry: &e})
	}
	return pf, s.Err()
}

func atoi(field, ctx string) (int, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("invalid int %q in %s: %w", field, ctx, err)
	}
	return n, nil
}
