// Package batch drives the provisioning engine over an ordered list of
// parsed input records.
package batch

import (
	"context"
	"errors"

	"github.com/hnrobert/lumprov/internal/provision"
	"github.com/hnrobert/lumprov/internal/record"
)

// SetupUser is the single-record operation; *provision.Engine satisfies it.
type SetupUser interface {
	SetupUser(rec provision.Record) (provision.Result, error)
}

type Failure struct {
	Line     int
	Username string
	Err      error
}

type Summary struct {
	Records         int
	Succeeded       int
	AccountsCreated []string
	AccountsExisted []string
	GroupsCreated   []string
	Failures        []Failure
	Interrupted     bool
}

type Driver struct {
	Engine SetupUser
	Log    provision.Logger
}

// Run processes entries strictly in order, one at a time. Record failures
// are logged and the batch moves on; a fatal engine error stops the batch
// and is returned. ctx is checked only between records so no record is left
// half-applied by an interruption.
func (d *Driver) Run(ctx context.Context, entries []record.Entry) (Summary, error) {
	var sum Summary
	d.Log.Info("Starting user provisioning (%d records)", len(entries))

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			sum.Interrupted = true
			d.Log.Warn("Provisioning interrupted before line %d; remaining records skipped", e.Line)
			return sum, err
		}
		sum.Records++
		if e.Err != nil {
			d.Log.Error("Line %d skipped: %v", e.Line, e.Err)
			sum.Failures = append(sum.Failures, Failure{Line: e.Line, Err: e.Err})
			continue
		}
		if e.SkippedTokens > 0 {
			d.Log.Warn("Line %d: ignored %d empty group name(s) for user %s", e.Line, e.SkippedTokens, e.Record.Username)
		}

		res, err := d.Engine.SetupUser(e.Record)
		if res.AccountCreated {
			sum.AccountsCreated = append(sum.AccountsCreated, res.Username)
		} else if accountResolved(err) {
			sum.AccountsExisted = append(sum.AccountsExisted, res.Username)
		}
		sum.GroupsCreated = append(sum.GroupsCreated, res.GroupsCreated...)

		if err != nil {
			if provision.IsFatal(err) {
				d.Log.Error("Fatal error on line %d, stopping: %v", e.Line, err)
				sum.Failures = append(sum.Failures, Failure{Line: e.Line, Username: e.Record.Username, Err: err})
				return sum, err
			}
			d.Log.Error("Provisioning user %s failed: %v", e.Record.Username, err)
			sum.Failures = append(sum.Failures, Failure{Line: e.Line, Username: e.Record.Username, Err: err})
			continue
		}
		sum.Succeeded++
	}

	d.Log.Info("User provisioning completed: %d records, %d succeeded, %d failed",
		sum.Records, sum.Succeeded, len(sum.Failures))
	return sum, nil
}

// accountResolved reports whether the account phase finished for a record
// that returned err.
func accountResolved(err error) bool {
	if err == nil {
		return true
	}
	var pe *provision.PhaseError
	return errors.As(err, &pe) && pe.Phase != provision.PhaseAccount
}
