package credstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
)

func TestOpenCreatesPrivateLocation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "secure")
	path := filepath.Join(dir, "user_passwords.txt")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	st, _ := os.Stat(dir)
	if st.Mode().Perm() != DirPerm {
		t.Fatalf("dir mode = %o", st.Mode().Perm())
	}
	fst, _ := os.Stat(path)
	if fst.Mode().Perm() != FilePerm {
		t.Fatalf("file mode = %o", fst.Mode().Perm())
	}
}

func TestOpenTightensOwnedDirAndFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "loose")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "pw.txt")
	if err := os.WriteFile(path, []byte("old,secret\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	st, _ := os.Stat(dir)
	fst, _ := os.Stat(path)
	if st.Mode().Perm() != 0700 || fst.Mode().Perm() != 0600 {
		t.Fatalf("modes not tightened: dir %o file %o", st.Mode().Perm(), fst.Mode().Perm())
	}
	if !s.Has("old") {
		t.Fatal("existing entries not indexed")
	}
}

func TestOpenRefusesStickyDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shared")
	if err := os.Mkdir(dir, 0777); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(dir, 0777|os.ModeSticky); err != nil {
		t.Fatal(err)
	}
	_, err := Open(filepath.Join(dir, "pw.txt"), Options{})
	if !errors.Is(err, ErrInsecure) {
		t.Fatalf("expected ErrInsecure, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pw.txt")); !os.IsNotExist(err) {
		t.Fatal("credential file created in insecure location")
	}
}

func TestOpenRefusesSymlinkedFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, nil, 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "pw.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(link, Options{}); err == nil {
		t.Fatal("expected symlinked credential file to be refused")
	}
}

func TestOpenRelativePath(t *testing.T) {
	if _, err := Open("pw.txt", Options{}); err == nil {
		t.Fatal("expected relative path to be rejected")
	}
}

func TestAppendOncePerUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sec", "pw.txt")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append("alice", "pw1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Append("alice", "pw2"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := s.Append("bad,name", "x"); err == nil {
		t.Fatal("expected comma in username to be rejected")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Append("bob", "pw"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	// A second run sees the earlier entry.
	s2, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if err := s2.Append("alice", "pw3"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate across runs, got %v", err)
	}
	if err := s2.Append("bob", "pw4"); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "alice,pw1\nbob,pw4\n" {
		t.Fatalf("store content = %q", b)
	}
}

func TestSealedEntries(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "sec", "pw.txt")
	s, err := Open(path, Options{Recipients: []string{id.Recipient().String()}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append("alice", "hunter2"); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	b, _ := os.ReadFile(path)
	line := strings.TrimSuffix(string(b), "\n")
	name, field, _ := strings.Cut(line, ",")
	if name != "alice" || !strings.HasPrefix(field, SealedPrefix) || strings.Contains(line, "hunter2") {
		t.Fatalf("unexpected sealed line %q", line)
	}
	got, err := Unseal(field, id)
	if err != nil || got != "hunter2" {
		t.Fatalf("Unseal = %q, %v", got, err)
	}
	if plain, _ := Unseal("clear", id); plain != "clear" {
		t.Fatalf("clear-text field changed: %q", plain)
	}
}

func TestBadRecipient(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "pw.txt"), Options{Recipients: []string{"not-a-key"}})
	if err == nil {
		t.Fatal("expected bad recipient to fail")
	}
}
