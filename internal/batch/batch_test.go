package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hnrobert/lumprov/internal/logger"
	"github.com/hnrobert/lumprov/internal/memdir"
	"github.com/hnrobert/lumprov/internal/provision"
	"github.com/hnrobert/lumprov/internal/record"
)

type counterPasswords struct{ n int }

func (c *counterPasswords) Generate() (string, error) {
	c.n++
	return fmt.Sprintf("pw%d", c.n), nil
}

type sliceSink struct {
	entries map[string]int
	err     error
}

func (s *sliceSink) Has(username string) bool { return s.entries[username] > 0 }

func (s *sliceSink) Append(username, password string) error {
	if s.err != nil {
		return s.err
	}
	s.entries[username]++
	return nil
}

func newDriver(dir *memdir.Dir, sink *sliceSink, out *bytes.Buffer) *Driver {
	log := logger.New("", out)
	return &Driver{
		Engine: &provision.Engine{
			Accounts:    dir,
			Groups:      dir,
			Owner:       dir,
			Passwords:   &counterPasswords{},
			Credentials: sink,
			Log:         log,
		},
		Log: log,
	}
}

func parse(t *testing.T, in string) []record.Entry {
	t.Helper()
	entries, err := record.Read(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	dir := memdir.New()
	dir.AddUser("olduser")
	sink := &sliceSink{entries: map[string]int{}}
	var out bytes.Buffer
	d := newDriver(dir, sink, &out)
	input := "alice;devs,ops\nbob;devs\nolduser;ops\n"

	for run := 0; run < 2; run++ {
		sum, err := d.Run(context.Background(), parse(t, input))
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if sum.Records != 3 || sum.Succeeded != 3 || len(sum.Failures) != 0 {
			t.Fatalf("run %d summary = %+v", run, sum)
		}
		if run == 1 && (len(sum.AccountsCreated) != 0 || len(sum.GroupsCreated) != 0) {
			t.Fatalf("second run created things: %+v", sum)
		}
	}

	if len(dir.Users) != 3 {
		t.Fatalf("users = %v", dir.Users)
	}
	if sink.entries["alice"] != 1 || sink.entries["bob"] != 1 || sink.entries["olduser"] != 0 {
		t.Fatalf("credential entries = %v", sink.entries)
	}
	want := map[string][]string{
		"devs":  {"alice", "bob"},
		"ops":   {"alice", "olduser"},
		"alice": {},
		"bob":   {},
	}
	for g, members := range want {
		got := dir.MembersOf(g)
		if got == nil {
			t.Fatalf("group %s missing", g)
		}
		if strings.Join(got, ",") != strings.Join(members, ",") {
			t.Errorf("members of %s = %v, want %v", g, got, members)
		}
	}
	for _, u := range []string{"alice", "bob", "olduser"} {
		if h := dir.Homes["/home/"+u]; h.Mode != 0700 || h.UID != dir.Users[u].UID {
			t.Errorf("home of %s = %+v", u, h)
		}
	}
}

func TestRunContinuesPastRecordErrors(t *testing.T) {
	dir := memdir.New()
	dir.Fail["create-group:broken"] = errors.New("groupadd: rejected")
	sink := &sliceSink{entries: map[string]int{}}
	var out bytes.Buffer
	d := newDriver(dir, sink, &out)

	sum, err := d.Run(context.Background(), parse(t, "alice;broken,ops\nBAD;x\ncarol;devs,,\n"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Records != 3 || sum.Succeeded != 1 || len(sum.Failures) != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if _, ok := dir.Groups["ops"]; ok {
		t.Fatal("phase after failure ran for alice")
	}
	if sink.entries["alice"] != 1 {
		t.Fatal("alice's account and credential should remain despite later failure")
	}
	log := out.String()
	for _, want := range []string{
		"Provisioning user alice failed",
		"Line 2 skipped",
		"ignored 2 empty group name(s) for user carol",
		"User provisioning completed: 3 records, 1 succeeded, 2 failed",
	} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %q:\n%s", want, log)
		}
	}
}

func TestRunEmptyInput(t *testing.T) {
	var out bytes.Buffer
	d := newDriver(memdir.New(), &sliceSink{entries: map[string]int{}}, &out)
	sum, err := d.Run(context.Background(), nil)
	if err != nil || sum.Records != 0 {
		t.Fatalf("got %+v, %v", sum, err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "Starting") || !strings.Contains(lines[1], "completed") {
		t.Fatalf("unexpected log:\n%s", out.String())
	}
}

func TestRunStopsOnFatal(t *testing.T) {
	dir := memdir.New()
	sink := &sliceSink{entries: map[string]int{}, err: errors.New("disk full")}
	var out bytes.Buffer
	d := newDriver(dir, sink, &out)
	sum, err := d.Run(context.Background(), parse(t, "alice\nbob\n"))
	if !errors.Is(err, provision.ErrCredentialStore) {
		t.Fatalf("expected credential store error, got %v", err)
	}
	if _, ok := dir.Users["bob"]; ok || sum.Records != 1 {
		t.Fatalf("batch continued after fatal error: %+v", sum)
	}
}

func TestRunInterruptedBetweenRecords(t *testing.T) {
	dir := memdir.New()
	var out bytes.Buffer
	d := newDriver(dir, &sliceSink{entries: map[string]int{}}, &out)
	ctx, cancel := context.WithCancel(context.Background())
	d.Engine = cancelAfterFirst{inner: d.Engine, cancel: cancel}

	sum, err := d.Run(ctx, parse(t, "alice\nbob\ncarol\n"))
	if !errors.Is(err, context.Canceled) || !sum.Interrupted {
		t.Fatalf("expected interruption, got %+v, %v", sum, err)
	}
	if sum.Records != 1 || sum.Succeeded != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if _, ok := dir.Users["bob"]; ok {
		t.Fatal("record processed after cancellation")
	}
	// The in-flight record still completed every phase.
	if h := dir.Homes["/home/alice"]; h.Mode != 0700 {
		t.Fatalf("alice left half-configured: %+v", h)
	}
}

type cancelAfterFirst struct {
	inner  SetupUser
	cancel context.CancelFunc
}

func (c cancelAfterFirst) SetupUser(rec provision.Record) (provision.Result, error) {
	defer c.cancel()
	return c.inner.SetupUser(rec)
}
