// Package memdir is an in-memory account, group and home-directory database
// used to exercise provisioning decisions without touching the host.
package memdir

import (
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/hnrobert/lumprov/internal/provision"
)

type Group struct {
	GID     int
	Members map[string]bool
}

type Home struct {
	UID, GID int
	Mode     os.FileMode
}

// Dir implements provision.AccountDirectory, GroupDirectory and
// FilesystemOwner. Fail injects an error for an operation key such as
// "create-user:alice", "add-member:devs", "secure-home:/home/alice".
type Dir struct {
	Users     map[string]provision.Account
	Passwords map[string]string
	Groups    map[string]*Group
	Homes     map[string]*Home
	Fail      map[string]error
	// Calls counts every mutating call by operation key.
	Calls map[string]int
	// UserGroups makes CreateUser also create a missing same-named group,
	// as useradd does on hosts with USERGROUPS_ENAB.
	UserGroups bool

	nextUID, nextGID int
}

func New() *Dir {
	return &Dir{
		Users:     map[string]provision.Account{},
		Passwords: map[string]string{},
		Groups:    map[string]*Group{},
		Homes:     map[string]*Home{},
		Fail:      map[string]error{},
		Calls:     map[string]int{},
		nextUID:   1000,
		nextGID:   1000,
	}
}

func (d *Dir) check(op, name string) error {
	key := op + ":" + name
	d.Calls[key]++
	return d.Fail[key]
}

func (d *Dir) UserExists(name string) (bool, error) {
	if err := d.Fail["user-exists:"+name]; err != nil {
		return false, err
	}
	_, ok := d.Users[name]
	return ok, nil
}

func (d *Dir) LookupUser(name string) (provision.Account, error) {
	a, ok := d.Users[name]
	if !ok {
		return provision.Account{}, provision.ErrUserNotFound
	}
	return a, nil
}

// CreateUser mirrors useradd: the account gets the next UID, a home
// directory, and GID 100 unless a same-named group exists or UserGroups
// creates one.
func (d *Dir) CreateUser(name string) (provision.Account, error) {
	if err := d.check("create-user", name); err != nil {
		return provision.Account{}, err
	}
	if _, ok := d.Users[name]; ok {
		return provision.Account{}, fmt.Errorf("user already exists: %s", name)
	}
	if _, ok := d.Groups[name]; !ok && d.UserGroups {
		d.Groups[name] = &Group{GID: d.nextGID, Members: map[string]bool{}}
		d.nextGID++
	}
	gid := 100
	if g, ok := d.Groups[name]; ok {
		gid = g.GID
	}
	a := provision.Account{Name: name, UID: d.nextUID, GID: gid, Home: path.Join("/home", name)}
	d.nextUID++
	d.Users[name] = a
	d.Homes[a.Home] = &Home{UID: a.UID, GID: gid, Mode: 0755}
	return a, nil
}

func (d *Dir) SetPassword(name, password string) error {
	if err := d.check("set-password", name); err != nil {
		return err
	}
	if _, ok := d.Users[name]; !ok {
		return provision.ErrUserNotFound
	}
	d.Passwords[name] = password
	return nil
}

func (d *Dir) GroupExists(name string) (bool, error) {
	if err := d.Fail["group-exists:"+name]; err != nil {
		return false, err
	}
	_, ok := d.Groups[name]
	return ok, nil
}

func (d *Dir) LookupGroup(name string) (int, error) {
	g, ok := d.Groups[name]
	if !ok {
		return 0, provision.ErrGroupNotFound
	}
	return g.GID, nil
}

func (d *Dir) CreateGroup(name string) error {
	if err := d.check("create-group", name); err != nil {
		return err
	}
	if _, ok := d.Groups[name]; ok {
		return fmt.Errorf("group already exists: %s", name)
	}
	d.Groups[name] = &Group{GID: d.nextGID, Members: map[string]bool{}}
	d.nextGID++
	return nil
}

func (d *Dir) AddMember(group, user string) error {
	if err := d.check("add-member", group); err != nil {
		return err
	}
	g, ok := d.Groups[group]
	if !ok {
		return provision.ErrGroupNotFound
	}
	if _, ok := d.Users[user]; !ok {
		return provision.ErrUserNotFound
	}
	g.Members[user] = true
	return nil
}

func (d *Dir) SecureHome(home string, uid, gid int, mode os.FileMode) error {
	if err := d.check("secure-home", home); err != nil {
		return err
	}
	h, ok := d.Homes[home]
	if !ok {
		return &os.PathError{Op: "open", Path: home, Err: os.ErrNotExist}
	}
	h.UID, h.GID, h.Mode = uid, gid, mode
	return nil
}

// MembersOf returns the sorted members of group.
func (d *Dir) MembersOf(group string) []string {
	g, ok := d.Groups[group]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.Members))
	for m := range g.Members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// AddUser seeds a pre-existing account together with its primary group.
func (d *Dir) AddUser(name string) provision.Account {
	if _, ok := d.Groups[name]; !ok {
		d.Groups[name] = &Group{GID: d.nextGID, Members: map[string]bool{}}
		d.nextGID++
	}
	a := provision.Account{Name: name, UID: d.nextUID, GID: d.Groups[name].GID, Home: path.Join("/home", name)}
	d.nextUID++
	d.Users[name] = a
	d.Homes[a.Home] = &Home{UID: 0, GID: 0, Mode: 0755}
	return a
}
