// Package credstore keeps the initial passwords of newly created accounts in
// an append-only "username,password" file readable only by the operator.
package credstore

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
	"golang.org/x/sys/unix"
)

const (
	DirPerm  os.FileMode = 0700
	FilePerm os.FileMode = 0600

	// SealedPrefix marks a password field holding base64 age ciphertext.
	SealedPrefix = "age:"
)

var (
	ErrInsecure  = errors.New("credential store location is not private")
	ErrDuplicate = errors.New("credential already stored")
	ErrClosed    = errors.New("credential store closed")
)

type Options struct {
	// Recipients are age public keys (age1...). When set, passwords are
	// stored encrypted to them instead of in clear text.
	Recipients []string
}

type Store struct {
	mu         sync.Mutex
	path       string
	f          *os.File
	seen       map[string]bool
	recipients []age.Recipient
}

// Open secures the parent directory and the file, then opens the file for
// appending. Any error means nothing may be written to path.
func Open(path string, opts Options) (*Store, error) {
	if path == "" || !filepath.IsAbs(path) {
		return nil, fmt.Errorf("credential path %q must be absolute", path)
	}
	recipients := make([]age.Recipient, 0, len(opts.Recipients))
	for _, key := range opts.Recipients {
		r, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, r)
	}

	if err := secureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	seen, err := loadUsernames(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|unix.O_NOFOLLOW, FilePerm)
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(FilePerm); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := verifyPrivate(int(f.Fd()), path, FilePerm); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Store{path: path, f: f, seen: seen, recipients: recipients}, nil
}

func (s *Store) Path() string { return s.path }

// Has reports whether username already has an entry.
func (s *Store) Has(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[username]
}

// Append writes one entry and syncs it to disk.
func (s *Store) Append(username, password string) error {
	if username == "" || strings.ContainsAny(username, ",\n") {
		return fmt.Errorf("invalid username %q", username)
	}
	if strings.Contains(password, "\n") {
		return errors.New("password contains a newline")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if s.seen[username] {
		return fmt.Errorf("%w: %s", ErrDuplicate, username)
	}
	field := password
	if len(s.recipients) > 0 {
		sealed, err := s.seal(password)
		if err != nil {
			return err
		}
		field = SealedPrefix + sealed
	}
	if _, err := s.f.WriteString(username + "," + field + "\n"); err != nil {
		return err
	}
	if err := s.f.Sync(); err != nil {
		return err
	}
	s.seen[username] = true
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *Store) seal(password string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write([]byte(password)); err != nil {
		return "", fmt.Errorf("writing password to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Unseal decrypts a stored password field with an age identity. Clear-text
// fields are returned unchanged.
func Unseal(field string, identity age.Identity) (string, error) {
	if !strings.HasPrefix(field, SealedPrefix) {
		return field, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(field, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding sealed password: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return "", fmt.Errorf("decrypting sealed password: %w", err)
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return "", err
	}
	return out.String(), nil
}

func loadUsernames(path string) (map[string]bool, error) {
	seen := map[string]bool{}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return seen, nil
		}
		return nil, err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		name, _, ok := strings.Cut(s.Text(), ",")
		if ok && name != "" {
			seen[name] = true
		}
	}
	return seen, s.Err()
}
