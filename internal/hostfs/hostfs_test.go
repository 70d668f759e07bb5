package hostfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPathAndAbs(t *testing.T) {
	fs := New("/host", nil)
	for _, td := range []struct {
		in, want string
		abs      bool
		wantErr  bool
	}{
		{in: "etc/passwd", want: "/host/etc/passwd"},
		{in: "/etc/group", want: "/host/etc/group"},
		{in: "../etc", wantErr: true},
		{in: "", wantErr: true},
		{in: "/home/alice", want: "/host/home/alice", abs: true},
		{in: "/home/../etc", want: "/host/etc", abs: true},
		{in: "home/alice", abs: true, wantErr: true},
		{in: "/", abs: true, wantErr: true},
	} {
		var got string
		var err error
		if td.abs {
			got, err = fs.Abs(td.in)
		} else {
			got, err = fs.Path(td.in)
		}
		if td.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got %q", td.in, got)
			}
			continue
		}
		if err != nil || got != td.want {
			t.Errorf("%q: got %q, %v; want %q", td.in, got, err, td.want)
		}
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	fs := New(dir, nil)
	p := filepath.Join(dir, "group")
	if err := fs.WriteFileAtomic(p, []byte("a\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteFileAtomic(p, []byte("b\n"), 0640); err != nil {
		t.Fatal(err)
	}
	b, err := fs.ReadFile(p)
	if err != nil || string(b) != "b\n" {
		t.Fatalf("got %q, %v", b, err)
	}
	st, _ := os.Stat(p)
	if st.Mode().Perm() != 0640 {
		t.Fatalf("mode = %o", st.Mode().Perm())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestSecureHomeSetsMode(t *testing.T) {
	root := t.TempDir()
	fs := New(root, nil)
	home := filepath.Join(root, "home", "alice")
	if err := os.MkdirAll(home, 0755); err != nil {
		t.Fatal(err)
	}
	// Chown to ourselves always succeeds, privileged or not.
	if err := fs.SecureHome("/home/alice", os.Getuid(), os.Getgid(), 0700); err != nil {
		t.Fatalf("SecureHome: %v", err)
	}
	st, _ := os.Stat(home)
	if st.Mode().Perm() != 0700 {
		t.Fatalf("mode = %o, want 700", st.Mode().Perm())
	}
}

func TestSecureHomeRefusesSymlink(t *testing.T) {
	root := t.TempDir()
	fs := New(root, nil)
	target := filepath.Join(root, "elsewhere")
	if err := os.MkdirAll(target, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "home"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, "home", "bob")); err != nil {
		t.Fatal(err)
	}
	if err := fs.SecureHome("/home/bob", os.Getuid(), os.Getgid(), 0700); err == nil {
		t.Fatal("expected symlinked home to be refused")
	}
	st, _ := os.Stat(target)
	if st.Mode().Perm() != 0755 {
		t.Fatalf("symlink target was modified: %o", st.Mode().Perm())
	}
}

func TestSecureHomeMissing(t *testing.T) {
	fs := New(t.TempDir(), nil)
	if err := fs.SecureHome("/home/ghost", 0, 0, 0700); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
