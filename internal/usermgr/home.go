package usermgr

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hnrobert/lumprov/internal/provision"
)

const skelRel = "etc/skel"

// makeHome creates the account's home directory owner-only and copies
// etc/skel into it, chowning everything to the new account. An existing
// home directory is left untouched.
func (m *Manager) makeHome(acct provision.Account) error {
	abs, err := m.FS.Abs(acct.Home)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(abs); err == nil {
		return nil
	}
	if err := m.FS.EnsureDir(filepath.Dir(abs), 0755); err != nil {
		return err
	}
	if err := os.Mkdir(abs, 0700); err != nil {
		return err
	}
	if err := os.Lchown(abs, acct.UID, acct.GID); err != nil {
		return err
	}
	skel, err := m.FS.Path(skelRel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(skel); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return copySkel(skel, abs, acct.UID, acct.GID)
}

func copySkel(src, dst string, uid, gid int) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil || rel == "." {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			if err := os.Mkdir(target, info.Mode().Perm()); err != nil && !os.IsExist(err) {
				return err
			}
		case info.Mode().IsRegular():
			if err := copyFile(p, target, info.Mode().Perm()); err != nil {
				return err
			}
		default:
			// Symlinks and special files are not copied.
			return nil
		}
		return os.Lchown(target, uid, gid)
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
