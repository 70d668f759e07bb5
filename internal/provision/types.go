// Package provision decides and applies the account, group, membership and
// home-directory changes needed for one provisioning record.
package provision

import (
	"errors"
	"os"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrGroupNotFound = errors.New("group not found")
)

// Account is the on-demand view of one OS account.
type Account struct {
	Name string
	UID  int
	GID  int
	Home string
}

// AccountDirectory is the OS account database.
type AccountDirectory interface {
	UserExists(name string) (bool, error)
	// LookupUser returns ErrUserNotFound for unknown names.
	LookupUser(name string) (Account, error)
	// CreateUser adds an interactive account with a home directory and the
	// default shell. Callers check UserExists first.
	CreateUser(name string) (Account, error)
	SetPassword(name, password string) error
}

// GroupDirectory is the OS group database.
type GroupDirectory interface {
	GroupExists(name string) (bool, error)
	// LookupGroup returns the GID, or ErrGroupNotFound.
	LookupGroup(name string) (int, error)
	CreateGroup(name string) error
	// AddMember is a no-op when user is already a member.
	AddMember(group, user string) error
}

// FilesystemOwner normalizes home directory ownership and permissions.
type FilesystemOwner interface {
	SecureHome(home string, uid, gid int, mode os.FileMode) error
}

type PasswordGenerator interface {
	Generate() (string, error)
}

// CredentialSink records initial passwords of newly created accounts.
type CredentialSink interface {
	// Has reports whether username already has a recorded password.
	Has(username string) bool
	Append(username, password string) error
}

type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Record is one already-parsed provisioning request.
type Record struct {
	Username string
	Groups   []string
}

// Result describes what SetupUser changed.
type Result struct {
	Username       string
	AccountCreated bool
	GroupsCreated  []string
	Memberships    []string
	HomeSecured    bool
}
