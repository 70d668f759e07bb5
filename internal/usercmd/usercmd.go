// Package usercmd drives the host's shadow-utils commands (useradd,
// groupadd, usermod, chpasswd) to change accounts.
package usercmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

type Runner struct {
	Timeout time.Duration
	// Root, when not "/", is passed to every command as --root so changes
	// land in that tree.
	Root string
	// Command builds the process for name; defaults to exec.CommandContext.
	Command func(ctx context.Context, name string, args ...string) *exec.Cmd
	// LookPath reports whether a command is installed; defaults to exec.LookPath.
	LookPath func(name string) (string, error)
}

func New() *Runner {
	return &Runner{Timeout: 10 * time.Second, Root: "/"}
}

func (r *Runner) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	if r.Command != nil {
		return r.Command(ctx, name, args...)
	}
	return exec.CommandContext(ctx, name, args...)
}

func (r *Runner) rootArgs() []string {
	if r.Root == "" || r.Root == "/" {
		return nil
	}
	return []string{"--root", r.Root}
}

func (r *Runner) run(stdin []byte, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()
	args = append(r.rootArgs(), args...)
	cmd := r.command(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s timed out after %s", name, r.Timeout)
		}
		s := strings.TrimSpace(stderr.String())
		if s == "" {
			return fmt.Errorf("%s %v: %w", name, args, err)
		}
		return fmt.Errorf("%s %v: %s", name, args, s)
	}
	return nil
}

// AddUser creates an interactive account with a home directory. A non-empty
// group becomes the primary group; useradd refuses to create a user whose
// same-named group already exists unless it is passed with -g.
func (r *Runner) AddUser(username, home, shell, group string) error {
	args := []string{"-m"}
	if home != "" {
		args = append(args, "-d", home)
	}
	if group != "" {
		args = append(args, "-g", group)
	}
	if shell != "" {
		args = append(args, "-s", shell)
	}
	args = append(args, username)
	return r.run(nil, "useradd", args...)
}

// SetPassword feeds "user:pass" to chpasswd, or drives passwd(1) behind a
// PTY on hosts without chpasswd.
func (r *Runner) SetPassword(username, password string) error {
	if strings.ContainsAny(password, ":\n") {
		return errors.New("password contains ':' or newline")
	}
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath("chpasswd"); err != nil {
		return r.setPasswordTTY(username, password)
	}
	line := fmt.Sprintf("%s:%s\n", username, password)
	return r.run([]byte(line), "chpasswd")
}

func (r *Runner) AddGroup(group string) error {
	return r.run(nil, "groupadd", group)
}

// AddUserToGroup appends a supplementary group; usermod -a leaves existing
// memberships alone and repeating it is harmless.
func (r *Runner) AddUserToGroup(username, group string) error {
	return r.run(nil, "usermod", "-a", "-G", group, username)
}
