package usermgr

import (
	"fmt"
)

type PasswdFile struct {
	pf parsedFile[PasswdEntry]
}

func ParsePasswd(b []byte) (*PasswdFile, error) {
	pf, err := parseColonFile(b, 7, func(parts []string) (PasswdEntry, error) {
		uid, err := atoi(parts[2], "passwd.uid")
		if err != nil {
			return PasswdEntry{}, err
		}
		gid, err := atoi(parts[3], "passwd.gid")
		if err != nil {
			return PasswdEntry{}, err
		}
		return PasswdEntry{
			Name:   parts[0],
			Passwd: parts[1],
			UID:    uid,
			GID:    gid,
			Gecos:  parts[4],
			Home:   parts[5],
			Shell:  parts[6],
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &PasswdFile{pf: pf}, nil
}

func (f *PasswdFile) Find(name string) *PasswdEntry {
	for _, e := range f.pf.entries() {
		if e.Name == name {
			return e
		}
	}
	return nil
}

func (f *PasswdFile) Add(e PasswdEntry) error {
	if f.Find(e.Name) != nil {
		return fmt.Errorf("user already exists: %s", e.Name)
	}
	f.pf.add(e)
	return nil
}

// NextUID returns one past the highest UID at or above min. The nobody
// account (65534) is ignored so it does not push allocation out of range.
func (f *PasswdFile) NextUID(min int) int {
	max := min - 1
	for _, e := range f.pf.entries() {
		if e.UID > max && e.UID < 65534 {
			max = e.UID
		}
	}
	return max + 1
}

func (f *PasswdFile) Bytes() []byte {
	return f.pf.bytes(func(e *PasswdEntry) string {
		return fmt.Sprintf("%s:%s:%d:%d:%s:%s:%s", e.Name, e.Passwd, e.UID, e.GID, e.Gecos, e.Home, e.Shell)
	})
}
