package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

type Backend string

const (
	BackendExec  Backend = "exec"
	BackendFiles Backend = "files"

	DefaultPath           = "/etc/lumprov/config.yaml"
	DefaultLogPath        = "/var/log/user_management.log"
	DefaultCredentialPath = "/var/secure/user_passwords.txt"
)

type Config struct {
	LogPath        string        `yaml:"log_path"`
	CredentialPath string        `yaml:"credential_path"`
	Backend        Backend       `yaml:"backend"`
	HostRoot       string        `yaml:"host_root"`
	Shell          string        `yaml:"shell"`
	HomeBase       string        `yaml:"home_base"`
	HomeMode       string        `yaml:"home_mode"`
	MinUID         int           `yaml:"min_uid"`
	MinGID         int           `yaml:"min_gid"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	SealRecipients []string      `yaml:"seal_recipients"`
	ReportPath     string        `yaml:"report_path"`
}

func Default() Config {
	return Config{
		LogPath:        DefaultLogPath,
		CredentialPath: DefaultCredentialPath,
		Backend:        BackendExec,
		HostRoot:       "/",
		Shell:          "/bin/bash",
		HomeBase:       "/home",
		HomeMode:       "0700",
		MinUID:         1000,
		MinGID:         1000,
		CommandTimeout: 10 * time.Second,
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set, so a bare install runs on defaults. Files named .json or
// .jsonc may carry comments and trailing commas.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON decodes as YAML once its tabs, which YAML rejects as
		// indentation, become spaces. Valid JSON has no raw tabs in strings.
		b = bytes.ReplaceAll(jsonc.ToJSON(b), []byte("\t"), []byte(" "))
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from LUMPROV_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set("LUMPROV_LOG", &c.LogPath)
	set("LUMPROV_CREDENTIALS", &c.CredentialPath)
	set("LUMPROV_HOST_ROOT", &c.HostRoot)
	set("LUMPROV_REPORT", &c.ReportPath)
	if v := getenv("LUMPROV_BACKEND"); v != "" {
		c.Backend = Backend(v)
	}
}

// HomePerm parses HomeMode as octal.
func (c Config) HomePerm() (os.FileMode, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(c.HomeMode), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("home_mode %q: %w", c.HomeMode, err)
	}
	return os.FileMode(n), nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendExec, BackendFiles:
	default:
		return fmt.Errorf("unknown backend %q (want exec or files)", c.Backend)
	}
	for name, p := range map[string]string{
		"credential_path": c.CredentialPath,
		"host_root":       c.HostRoot,
		"home_base":       c.HomeBase,
		"shell":           c.Shell,
	} {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("%s must be an absolute path, got %q", name, p)
		}
	}
	if c.LogPath != "" && !filepath.IsAbs(c.LogPath) {
		return fmt.Errorf("log_path must be an absolute path, got %q", c.LogPath)
	}
	perm, err := c.HomePerm()
	if err != nil {
		return err
	}
	if perm&0077 != 0 || perm&0700 == 0 || perm > 0777 {
		return fmt.Errorf("home_mode %04o must grant access to the owner only", perm)
	}
	if c.MinUID <= 0 || c.MinGID <= 0 {
		return errors.New("min_uid and min_gid must be positive")
	}
	if c.CommandTimeout <= 0 {
		return errors.New("command_timeout must be positive")
	}
	return nil
}
