package hostfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// SecureHome sets owner, group and mode on a host home directory. The final
// path component is opened without following symlinks so a planted link
// cannot redirect the chown.
func (fs *FS) SecureHome(home string, uid, gid int, mode os.FileMode) error {
	abs, err := fs.Abs(home)
	if err != nil {
		return fmt.Errorf("home %q: %w", home, err)
	}
	fd, err := unix.Open(abs, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return &os.PathError{Op: "open", Path: abs, Err: err}
	}
	defer unix.Close(fd)

	if err := unix.Fchown(fd, uid, gid); err != nil {
		return &os.PathError{Op: "chown", Path: abs, Err: err}
	}
	if err := unix.Fchmod(fd, uint32(mode.Perm())); err != nil {
		return &os.PathError{Op: "chmod", Path: abs, Err: err}
	}
	return nil
}
