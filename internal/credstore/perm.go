package credstore

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// secureDir creates dir owner-only, or tightens an existing one we own.
// Shared sticky directories and directories owned by someone else are
// refused rather than modified.
func secureDir(dir string) error {
	st, err := os.Lstat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, DirPerm); err != nil {
			return err
		}
		if err := os.Chmod(dir, DirPerm); err != nil {
			return err
		}
	case err != nil:
		return err
	case !st.IsDir():
		return fmt.Errorf("%w: %s is not a directory", ErrInsecure, dir)
	case st.Mode()&os.ModeSticky != 0:
		return fmt.Errorf("%w: %s is a shared sticky directory", ErrInsecure, dir)
	}

	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return &os.PathError{Op: "open", Path: dir, Err: err}
	}
	defer unix.Close(fd)

	var sst unix.Stat_t
	if err := unix.Fstat(fd, &sst); err != nil {
		return &os.PathError{Op: "stat", Path: dir, Err: err}
	}
	if int(sst.Uid) != os.Geteuid() {
		return fmt.Errorf("%w: %s is owned by uid %d", ErrInsecure, dir, sst.Uid)
	}
	if sst.Mode&0077 != 0 {
		if err := unix.Fchmod(fd, uint32(DirPerm)); err != nil {
			return &os.PathError{Op: "chmod", Path: dir, Err: err}
		}
	}
	return verifyPrivate(fd, dir, DirPerm)
}

// verifyPrivate checks an open descriptor is owned by the effective user and
// grants nothing to group or others.
func verifyPrivate(fd int, path string, want os.FileMode) error {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return &os.PathError{Op: "stat", Path: path, Err: err}
	}
	if int(st.Uid) != os.Geteuid() {
		return fmt.Errorf("%w: %s is owned by uid %d", ErrInsecure, path, st.Uid)
	}
	if perm := os.FileMode(st.Mode & 0777); perm&0077 != 0 || perm&want != want {
		return fmt.Errorf("%w: %s has mode %04o", ErrInsecure, path, perm)
	}
	return nil
}
