package usercmd

import (
	"errors"
	"fmt"
	"path"

	"github.com/hnrobert/lumprov/internal/provision"
	"github.com/hnrobert/lumprov/internal/usermgr"
)

// Directory is the command-driven account and group backend. Mutations go
// through Runner; lookups parse the same host files the commands edit.
type Directory struct {
	Runner   *Runner
	DB       *usermgr.Manager
	Shell    string
	HomeBase string
}

func (d *Directory) UserExists(name string) (bool, error) { return d.DB.UserExists(name) }

func (d *Directory) LookupUser(name string) (provision.Account, error) {
	return d.DB.LookupUser(name)
}

func (d *Directory) CreateUser(name string) (provision.Account, error) {
	if !usermgr.ValidUsername(name) {
		return provision.Account{}, fmt.Errorf("%w: %q", usermgr.ErrInvalidName, name)
	}
	base := d.HomeBase
	if base == "" {
		base = usermgr.DefaultHomeBase
	}
	primary := ""
	exists, err := d.DB.GroupExists(name)
	if err != nil {
		return provision.Account{}, err
	}
	if exists {
		primary = name
	}
	if err := d.Runner.AddUser(name, path.Join(base, name), d.Shell, primary); err != nil {
		return provision.Account{}, err
	}
	return d.DB.LookupUser(name)
}

// SetPassword sets the password and reads the shadow entry back to confirm
// it took. Hosts hashing with yescrypt cannot be checked and are trusted.
func (d *Directory) SetPassword(name, password string) error {
	if err := d.Runner.SetPassword(name, password); err != nil {
		return err
	}
	ok, err := d.DB.CheckPassword(name, password)
	if errors.Is(err, usermgr.ErrUnsupportedHash) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return errors.New("password verification failed after update")
	}
	return nil
}

func (d *Directory) GroupExists(name string) (bool, error) { return d.DB.GroupExists(name) }

func (d *Directory) LookupGroup(name string) (int, error) { return d.DB.LookupGroup(name) }

func (d *Directory) CreateGroup(name string) error {
	if !usermgr.ValidUsername(name) {
		return fmt.Errorf("%w: %q", usermgr.ErrInvalidName, name)
	}
	return d.Runner.AddGroup(name)
}

func (d *Directory) AddMember(group, user string) error {
	if ok, err := d.DB.UserExists(user); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", provision.ErrUserNotFound, user)
	}
	if ok, err := d.DB.GroupExists(group); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", provision.ErrGroupNotFound, group)
	}
	return d.Runner.AddUserToGroup(user, group)
}
