package provision

import (
	"errors"
	"fmt"
	"os"
)

// DefaultHomeMode restricts a home directory to its owner.
const DefaultHomeMode os.FileMode = 0700

type Engine struct {
	Accounts    AccountDirectory
	Groups      GroupDirectory
	Owner       FilesystemOwner
	Passwords   PasswordGenerator
	Credentials CredentialSink
	Log         Logger
	HomeMode    os.FileMode
}

// SetupUser runs the account, primary-group, requested-groups and home phases
// for rec in that order. The first failing phase ends the record; earlier
// changes stay in place. Errors satisfying IsFatal must stop the batch.
func (e *Engine) SetupUser(rec Record) (Result, error) {
	res := Result{Username: rec.Username}
	if rec.Username == "" {
		return res, &PhaseError{Phase: PhaseAccount, Kind: ErrAccountCreation, Err: errors.New("empty username")}
	}

	created, primaryMade, err := e.ensureAccount(rec.Username)
	res.AccountCreated = created
	if primaryMade {
		res.GroupsCreated = append(res.GroupsCreated, rec.Username)
	}
	if err != nil {
		return res, err
	}

	// Backends using user-private groups create the primary group together
	// with the account.
	if !primaryMade {
		made, err := e.ensureGroup(PhasePrimaryGroup, rec.Username, rec.Username)
		if err != nil {
			return res, err
		}
		if made {
			res.GroupsCreated = append(res.GroupsCreated, rec.Username)
		}
	}

	for _, g := range rec.Groups {
		made, err := e.ensureGroup(PhaseGroups, rec.Username, g)
		if err != nil {
			return res, err
		}
		if made {
			res.GroupsCreated = append(res.GroupsCreated, g)
		}
		if err := e.Groups.AddMember(g, rec.Username); err != nil {
			return res, &PhaseError{Phase: PhaseGroups, Username: rec.Username, Group: g, Kind: ErrMembership, Err: err}
		}
		e.Log.Info("User %s added to group %s", rec.Username, g)
		res.Memberships = append(res.Memberships, g)
	}

	if err := e.secureHome(rec.Username); err != nil {
		return res, err
	}
	res.HomeSecured = true
	return res, nil
}

// ensureAccount creates name when missing and records its password. It also
// reports whether account creation brought the same-named group into being.
func (e *Engine) ensureAccount(name string) (created, primaryMade bool, err error) {
	fail := func(err error) error {
		return &PhaseError{Phase: PhaseAccount, Username: name, Kind: ErrAccountCreation, Err: err}
	}
	exists, err := e.Accounts.UserExists(name)
	if err != nil {
		return false, false, fail(err)
	}
	if exists {
		e.Log.Info("User %s already exists", name)
		return false, false, nil
	}
	if e.Credentials.Has(name) {
		return false, false, fail(fmt.Errorf("%w: %s", ErrStaleCredential, name))
	}
	hadGroup, err := e.Groups.GroupExists(name)
	if err != nil {
		return false, false, fail(err)
	}

	password, err := e.Passwords.Generate()
	if err != nil {
		return false, false, fmt.Errorf("%w: generating password for %s: %v", ErrEntropy, name, err)
	}
	acct, err := e.Accounts.CreateUser(name)
	if err != nil {
		return false, false, fail(err)
	}
	if !hadGroup {
		primaryMade, _ = e.Groups.GroupExists(name)
	}
	if err := e.Accounts.SetPassword(name, password); err != nil {
		return true, primaryMade, fail(fmt.Errorf("account created but password not set: %w", err))
	}
	e.Log.Info("User %s created with home directory %s", name, acct.Home)
	if primaryMade {
		e.Log.Info("Group %s created", name)
	}

	if err := e.Credentials.Append(name, password); err != nil {
		return true, primaryMade, fmt.Errorf("%w: storing password for %s: %v", ErrCredentialStore, name, err)
	}
	e.Log.Info("Password for user %s stored securely", name)
	return true, primaryMade, nil
}

func (e *Engine) ensureGroup(phase Phase, user, group string) (bool, error) {
	fail := func(err error) error {
		return &PhaseError{Phase: phase, Username: user, Group: group, Kind: ErrGroupCreation, Err: err}
	}
	exists, err := e.Groups.GroupExists(group)
	if err != nil {
		return false, fail(err)
	}
	if exists {
		e.Log.Info("Group %s already exists", group)
		return false, nil
	}
	if err := e.Groups.CreateGroup(group); err != nil {
		return false, fail(err)
	}
	e.Log.Info("Group %s created", group)
	return true, nil
}

func (e *Engine) secureHome(name string) error {
	fail := func(err error) error {
		return &PhaseError{Phase: PhaseHome, Username: name, Kind: ErrOwnership, Err: err}
	}
	acct, err := e.Accounts.LookupUser(name)
	if err != nil {
		return fail(err)
	}
	if acct.Home == "" {
		return fail(errors.New("account has no home directory"))
	}
	gid, err := e.Groups.LookupGroup(name)
	if err != nil {
		return fail(err)
	}
	mode := e.HomeMode
	if mode == 0 {
		mode = DefaultHomeMode
	}
	if err := e.Owner.SecureHome(acct.Home, acct.UID, gid, mode); err != nil {
		return fail(err)
	}
	e.Log.Info("Home directory %s for user %s set to %s:%s mode %04o", acct.Home, name, name, name, mode)
	return nil
}
