package provision

import (
	"errors"
	"fmt"
)

var (
	// ErrUsage: no input was given.
	ErrUsage = errors.New("usage error")
	// ErrPrecursor: the credential store could not be secured.
	ErrPrecursor = errors.New("credential store precondition failed")

	ErrAccountCreation = errors.New("account creation failed")
	ErrGroupCreation   = errors.New("group creation failed")
	ErrMembership      = errors.New("group membership failed")
	ErrOwnership       = errors.New("home directory ownership failed")

	// ErrStaleCredential: the store already holds a password for a username
	// that has no account, so a new one could not be recorded.
	ErrStaleCredential = errors.New("credential already recorded for missing account")

	// ErrEntropy and ErrCredentialStore are fatal to the whole run.
	ErrEntropy         = errors.New("random source failed")
	ErrCredentialStore = errors.New("credential store write failed")
)

type Phase string

const (
	PhaseAccount      Phase = "account"
	PhasePrimaryGroup Phase = "primary-group"
	PhaseGroups       Phase = "groups"
	PhaseHome         Phase = "home"
)

// PhaseError is a per-record failure. It matches both its Kind sentinel and
// the underlying cause with errors.Is.
type PhaseError struct {
	Phase    Phase
	Username string
	Group    string
	Kind     error
	Err      error
}

func (e *PhaseError) Error() string {
	if e.Group != "" {
		return fmt.Sprintf("%s: user %s, group %s (%s phase): %v", e.Kind, e.Username, e.Group, e.Phase, e.Err)
	}
	return fmt.Sprintf("%s: user %s (%s phase): %v", e.Kind, e.Username, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() []error { return []error{e.Kind, e.Err} }

// IsFatal reports whether err must stop the batch rather than just the record.
func IsFatal(err error) bool {
	return errors.Is(err, ErrEntropy) || errors.Is(err, ErrCredentialStore) || errors.Is(err, ErrPrecursor)
}
