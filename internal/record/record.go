// Package record parses provisioning input: one "username;group1,group2" per line.
package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hnrobert/lumprov/internal/provision"
	"github.com/hnrobert/lumprov/internal/usermgr"
)

const (
	FieldSep = ";"
	GroupSep = ","
)

var (
	ErrEmptyUsername = errors.New("empty username")
	ErrBadUsername   = errors.New("invalid username")
	ErrBadGroup      = errors.New("invalid group name")
	ErrTooManyFields = errors.New("too many fields")
)

// Entry is one parsed input line. Exactly one of Record and Err is meaningful.
type Entry struct {
	Line   int
	Record provision.Record
	// SkippedTokens counts empty group names dropped from the line.
	SkippedTokens int
	Err           error
}

// ParseLine parses a single non-blank record line. Empty group tokens such
// as in "alice;devs,,ops" are skipped and counted; repeated groups collapse
// to their first occurrence.
func ParseLine(line string) (provision.Record, int, error) {
	fields := strings.Split(line, FieldSep)
	if len(fields) > 2 {
		return provision.Record{}, 0, ErrTooManyFields
	}
	user := strings.TrimSpace(fields[0])
	if user == "" {
		return provision.Record{}, 0, ErrEmptyUsername
	}
	if !usermgr.ValidUsername(user) {
		return provision.Record{}, 0, fmt.Errorf("%w: %q", ErrBadUsername, user)
	}
	rec := provision.Record{Username: user}
	if len(fields) == 1 {
		return rec, 0, nil
	}

	skipped := 0
	seen := map[string]bool{}
	for _, tok := range strings.Split(fields[1], GroupSep) {
		g := strings.TrimSpace(tok)
		if g == "" {
			skipped++
			continue
		}
		if !usermgr.ValidUsername(g) {
			return provision.Record{}, 0, fmt.Errorf("%w: %q", ErrBadGroup, g)
		}
		if seen[g] {
			continue
		}
		seen[g] = true
		rec.Groups = append(rec.Groups, g)
	}
	// "alice;" carries no groups, not an empty token.
	if len(rec.Groups) == 0 && strings.TrimSpace(fields[1]) == "" {
		skipped = 0
	}
	return rec, skipped, nil
}

// Read parses every record line from r. Blank lines and '#' comments are
// skipped; a malformed line yields an Entry with Err set.
func Read(r io.Reader) ([]Entry, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var out []Entry
	n := 0
	for s.Scan() {
		n++
		line := strings.TrimSpace(strings.TrimSuffix(s.Text(), "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, skipped, err := ParseLine(line)
		out = append(out, Entry{Line: n, Record: rec, SkippedTokens: skipped, Err: err})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
