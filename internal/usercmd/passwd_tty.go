package usercmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/creack/pty"
)

// setPasswordTTY answers passwd(1)'s "New password"/"Retype" prompts through
// a PTY, for minimal hosts that ship passwd but not chpasswd.
func (r *Runner) setPasswordTTY(username, password string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	args := append(r.rootArgs(), username)
	cmd := r.command(ctx, "passwd", args...)
	f, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("start passwd: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out bytes.Buffer
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		br := bufio.NewReader(f)
		buf := make([]byte, 4096)
		answered := 0
		for {
			_ = f.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			n, rerr := br.Read(buf)
			if n > 0 {
				out.Write(buf[:n])
				// Answer each new prompt once.
				if isPasswordPrompt(out.String()[answered:]) {
					answered = out.Len()
					_, _ = io.WriteString(f, password+"\n")
				}
			}
			if rerr != nil {
				if errors.Is(rerr, os.ErrDeadlineExceeded) && ctx.Err() == nil {
					continue
				}
				return
			}
		}
	}()

	err = cmd.Wait()
	_ = f.Close()
	<-readerDone

	if ctx.Err() != nil {
		return fmt.Errorf("passwd timed out after %s", r.Timeout)
	}
	if err != nil {
		return fmt.Errorf("passwd %s: %v: %s", username, err, strings.TrimSpace(out.String()))
	}
	return nil
}

// isPasswordPrompt reports whether output not yet answered ends in a password
// prompt such as "Retype new password: ". Status lines like "password
// updated successfully" are not prompts.
func isPasswordPrompt(pending string) bool {
	p := strings.ToLower(strings.TrimRight(pending, " \t\r\n"))
	if !strings.HasSuffix(p, ":") {
		return false
	}
	if i := strings.LastIndexAny(p, "\r\n"); i >= 0 {
		p = p[i+1:]
	}
	return strings.Contains(p, "password")
}
