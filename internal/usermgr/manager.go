package usermgr

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/hnrobert/lumprov/internal/hostfs"
	"github.com/hnrobert/lumprov/internal/provision"
)

var ErrInvalidName = errors.New("invalid name")

const (
	DefaultShell    = "/bin/bash"
	DefaultHomeBase = "/home"
	DefaultMinID    = 1000
)

type Options struct {
	Shell    string
	HomeBase string
	MinUID   int
	MinGID   int
}

// Manager edits passwd, shadow and group under a host root. It implements
// provision.AccountDirectory and provision.GroupDirectory.
type Manager struct {
	FS         *hostfs.FS
	PasswdPath string
	ShadowPath string
	GroupPath  string
	opts       Options
	mu         sync.Mutex
}

func New(fs *hostfs.FS, opts Options) (*Manager, error) {
	passwd, err := fs.Path(hostfs.EtcPasswdRel)
	if err != nil {
		return nil, err
	}
	shadow, err := fs.Path(hostfs.EtcShadowRel)
	if err != nil {
		return nil, err
	}
	group, err := fs.Path(hostfs.EtcGroupRel)
	if err != nil {
		return nil, err
	}
	if opts.Shell == "" {
		opts.Shell = DefaultShell
	}
	if opts.HomeBase == "" {
		opts.HomeBase = DefaultHomeBase
	}
	if opts.MinUID <= 0 {
		opts.MinUID = DefaultMinID
	}
	if opts.MinGID <= 0 {
		opts.MinGID = DefaultMinID
	}
	return &Manager{FS: fs, PasswdPath: passwd, ShadowPath: shadow, GroupPath: group, opts: opts}, nil
}

func (m *Manager) loadPasswd() (*PasswdFile, error) {
	b, err := m.FS.ReadFile(m.PasswdPath)
	if err != nil {
		return nil, err
	}
	return ParsePasswd(b)
}

func (m *Manager) loadGroup() (*GroupFile, error) {
	b, err := m.FS.ReadFile(m.GroupPath)
	if err != nil {
		return nil, err
	}
	return ParseGroup(b)
}

func (m *Manager) loadShadow() (*ShadowFile, error) {
	b, err := m.FS.ReadFile(m.ShadowPath)
	if errors.Is(err, os.ErrNotExist) {
		return ParseShadow(nil)
	}
	if err != nil {
		return nil, err
	}
	return ParseShadow(b)
}

// save rewrites path keeping its current permission bits.
func (m *Manager) save(path string, data []byte, def os.FileMode) error {
	perm := def
	if st, err := os.Stat(path); err == nil {
		perm = st.Mode().Perm()
	}
	return m.FS.WriteFileAtomic(path, data, perm)
}

func (m *Manager) UserExists(name string) (bool, error) {
	pw, err := m.loadPasswd()
	if err != nil {
		return false, err
	}
	return pw.Find(name) != nil, nil
}

func (m *Manager) LookupUser(name string) (provision.Account, error) {
	pw, err := m.loadPasswd()
	if err != nil {
		return provision.Account{}, err
	}
	e := pw.Find(name)
	if e == nil {
		return provision.Account{}, provision.ErrUserNotFound
	}
	return provision.Account{Name: e.Name, UID: e.UID, GID: e.GID, Home: e.Home}, nil
}

// CreateUser adds the passwd and a locked shadow entry, creating the
// same-named primary group when missing, and populates the home directory
// from etc/skel.
func (m *Manager) CreateUser(name string) (provision.Account, error) {
	if !ValidUsername(name) {
		return provision.Account{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pw, err := m.loadPasswd()
	if err != nil {
		return provision.Account{}, err
	}
	sh, err := m.loadShadow()
	if err != nil {
		return provision.Account{}, err
	}
	gr, err := m.loadGroup()
	if err != nil {
		return provision.Account{}, err
	}
	if pw.Find(name) != nil || sh.Find(name) != nil {
		return provision.Account{}, fmt.Errorf("user already exists: %s", name)
	}

	primary := gr.Find(name)
	groupChanged := false
	if primary == nil {
		if err := gr.Add(GroupEntry{Name: name, Passwd: "x", GID: gr.NextGID(m.opts.MinGID), Members: []string{}}); err != nil {
			return provision.Account{}, err
		}
		primary = gr.Find(name)
		groupChanged = true
	}
	uid := pw.NextUID(m.opts.MinUID)
	home := path.Join(m.opts.HomeBase, name)
	if err := pw.Add(PasswdEntry{Name: name, Passwd: "x", UID: uid, GID: primary.GID, Home: home, Shell: m.opts.Shell}); err != nil {
		return provision.Account{}, err
	}
	if err := sh.Add(ShadowEntry{
		Name:       name,
		Hash:       "!",
		LastChange: daysSinceEpoch(),
		Min:        "0",
		Max:        "99999",
		Warn:       "7",
	}); err != nil {
		return provision.Account{}, err
	}

	// Group first so the new passwd entry never references a missing GID.
	if groupChanged {
		if err := m.save(m.GroupPath, gr.Bytes(), 0644); err != nil {
			return provision.Account{}, err
		}
	}
	if err := m.save(m.PasswdPath, pw.Bytes(), 0644); err != nil {
		return provision.Account{}, err
	}
	if err := m.save(m.ShadowPath, sh.Bytes(), 0600); err != nil {
		return provision.Account{}, err
	}

	acct := provision.Account{Name: name, UID: uid, GID: primary.GID, Home: home}
	if err := m.makeHome(acct); err != nil {
		return acct, fmt.Errorf("creating home %s: %w", home, err)
	}
	return acct, nil
}

// SetPassword stores a sha512-crypt hash of password in shadow.
func (m *Manager) SetPassword(name, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pw, err := m.loadPasswd()
	if err != nil {
		return err
	}
	if pw.Find(name) == nil {
		return provision.ErrUserNotFound
	}
	sh, err := m.loadShadow()
	if err != nil {
		return err
	}
	e := sh.Find(name)
	if e == nil {
		if err := sh.Add(ShadowEntry{Name: name, Min: "0", Max: "99999", Warn: "7"}); err != nil {
			return err
		}
		e = sh.Find(name)
	}
	e.Hash = hash
	e.LastChange = daysSinceEpoch()
	return m.save(m.ShadowPath, sh.Bytes(), 0600)
}

func (m *Manager) GroupExists(name string) (bool, error) {
	gr, err := m.loadGroup()
	if err != nil {
		return false, err
	}
	return gr.Find(name) != nil, nil
}

func (m *Manager) LookupGroup(name string) (int, error) {
	gr, err := m.loadGroup()
	if err != nil {
		return 0, err
	}
	g := gr.Find(name)
	if g == nil {
		return 0, provision.ErrGroupNotFound
	}
	return g.GID, nil
}

func (m *Manager) CreateGroup(name string) error {
	if !ValidUsername(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	gr, err := m.loadGroup()
	if err != nil {
		return err
	}
	if err := gr.Add(GroupEntry{Name: name, Passwd: "x", GID: gr.NextGID(m.opts.MinGID), Members: []string{}}); err != nil {
		return err
	}
	return m.save(m.GroupPath, gr.Bytes(), 0644)
}

func (m *Manager) AddMember(group, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pw, err := m.loadPasswd()
	if err != nil {
		return err
	}
	if pw.Find(user) == nil {
		return fmt.Errorf("%w: %s", provision.ErrUserNotFound, user)
	}
	gr, err := m.loadGroup()
	if err != nil {
		return err
	}
	if gr.Find(group) == nil {
		return fmt.Errorf("%w: %s", provision.ErrGroupNotFound, group)
	}
	changed, err := gr.AddMember(group, user)
	if err != nil || !changed {
		return err
	}
	return m.save(m.GroupPath, gr.Bytes(), 0644)
}

func daysSinceEpoch() string {
	return fmt.Sprintf("%d", time.Now().Unix()/86400)
}
