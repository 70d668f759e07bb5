// Lumprov provisions local user accounts and groups from a list file:
//
//	username;group1,group2
//
// New accounts get a random password recorded in an owner-only credential
// file; every action is written to an activity log.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/hnrobert/lumprov/internal/batch"
	"github.com/hnrobert/lumprov/internal/config"
	"github.com/hnrobert/lumprov/internal/credstore"
	"github.com/hnrobert/lumprov/internal/hostfs"
	"github.com/hnrobert/lumprov/internal/logger"
	"github.com/hnrobert/lumprov/internal/passgen"
	"github.com/hnrobert/lumprov/internal/provision"
	"github.com/hnrobert/lumprov/internal/record"
	"github.com/hnrobert/lumprov/internal/report"
	"github.com/hnrobert/lumprov/internal/usercmd"
	"github.com/hnrobert/lumprov/internal/usermgr"
)

const (
	exitOK          = 0
	exitUsage       = 1
	exitPrecursor   = 2
	exitInterrupted = 130
)

const usage = "Usage: lumprov [flags] <user-list-file>"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

type options struct {
	configPath  string
	logPath     string
	credentials string
	backend     string
	root        string
	reportPath  string
	sealTo      []string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	var opts options
	fs := pflag.NewFlagSet("lumprov", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "YAML config file (default $LUMPROV_CONFIG or "+config.DefaultPath+")")
	fs.StringVar(&opts.logPath, "log-file", "", "activity log path")
	fs.StringVar(&opts.credentials, "credentials", "", "credential store path")
	fs.StringVar(&opts.backend, "backend", "", "account backend: exec or files")
	fs.StringVar(&opts.root, "root", "", "host root the account databases live under")
	fs.StringVar(&opts.reportPath, "report", "", "write a run report (.md or .html)")
	fs.StringArrayVar(&opts.sealTo, "seal-to", nil, "age recipient to encrypt stored passwords to (repeatable)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	// cfg stays usable for logging even when it fails validation.
	cfg, cfgErr := loadConfig(opts, getenv)
	log := logger.New(cfg.LogPath, stdout)
	defer log.Close()

	if fs.NArg() != 1 {
		log.Error("%v: %s", provision.ErrUsage, usage)
		return exitUsage
	}
	if cfgErr != nil {
		log.Error("Invalid configuration: %v", cfgErr)
		return exitUsage
	}
	input := fs.Arg(0)

	if os.Geteuid() != 0 {
		log.Warn("Not running as root; account and group changes are likely to fail")
	}

	data, err := os.ReadFile(input)
	if err != nil {
		log.Error("Cannot read user list %s: %v", input, err)
		return exitUsage
	}
	entries, err := record.Read(bytes.NewReader(data))
	if err != nil {
		log.Error("Cannot parse user list %s: %v", input, err)
		return exitUsage
	}

	creds, err := credstore.Open(cfg.CredentialPath, credstore.Options{Recipients: cfg.SealRecipients})
	if err != nil {
		log.Error("%v: %s: %v", provision.ErrPrecursor, cfg.CredentialPath, err)
		return exitPrecursor
	}
	defer creds.Close()

	engine, err := newEngine(cfg, log, creds)
	if err != nil {
		log.Error("Cannot initialise %s backend: %v", cfg.Backend, err)
		return exitUsage
	}
	driver := &batch.Driver{Engine: engine, Log: log}
	sum, runErr := driver.Run(ctx, entries)

	if cfg.ReportPath != "" {
		if err := report.Write(cfg.ReportPath, sum, report.Meta{
			Input:    input,
			Digest:   report.Digest(data),
			Finished: time.Now(),
		}); err != nil {
			log.Warn("Could not write report %s: %v", cfg.ReportPath, err)
		} else {
			log.Info("Report written to %s", cfg.ReportPath)
		}
	}

	switch {
	case runErr == nil:
		return exitOK
	case errors.Is(runErr, context.Canceled):
		return exitInterrupted
	default:
		return exitPrecursor
	}
}

// loadConfig layers defaults, the config file, environment and flags. The
// returned Config is always populated; a file that cannot be loaded leaves
// the defaults in its place.
func loadConfig(opts options, getenv func(string) string) (config.Config, error) {
	path, optional := opts.configPath, false
	if path == "" {
		path = getenv("LUMPROV_CONFIG")
	}
	if path == "" {
		path, optional = config.DefaultPath, true
	}
	cfg, loadErr := config.Load(path, optional)
	if loadErr != nil {
		cfg = config.Default()
	}
	cfg.ApplyEnv(getenv)

	if opts.logPath != "" {
		cfg.LogPath = opts.logPath
	}
	if opts.credentials != "" {
		cfg.CredentialPath = opts.credentials
	}
	if opts.backend != "" {
		cfg.Backend = config.Backend(opts.backend)
	}
	if opts.root != "" {
		cfg.HostRoot = opts.root
	}
	if opts.reportPath != "" {
		cfg.ReportPath = opts.reportPath
	}
	if len(opts.sealTo) > 0 {
		cfg.SealRecipients = opts.sealTo
	}
	if loadErr != nil {
		return cfg, loadErr
	}
	return cfg, cfg.Validate()
}

func newEngine(cfg config.Config, log *logger.Logger, creds *credstore.Store) (*provision.Engine, error) {
	host := hostfs.New(cfg.HostRoot, log)
	db, err := usermgr.New(host, usermgr.Options{
		Shell:    cfg.Shell,
		HomeBase: cfg.HomeBase,
		MinUID:   cfg.MinUID,
		MinGID:   cfg.MinGID,
	})
	if err != nil {
		return nil, err
	}
	mode, err := cfg.HomePerm()
	if err != nil {
		return nil, err
	}

	e := &provision.Engine{
		Owner:       host,
		Passwords:   passgen.New(),
		Credentials: creds,
		Log:         log,
		HomeMode:    mode,
	}
	switch cfg.Backend {
	case config.BackendFiles:
		e.Accounts, e.Groups = db, db
	default:
		runner := usercmd.New()
		runner.Timeout = cfg.CommandTimeout
		runner.Root = host.Root
		dir := &usercmd.Directory{Runner: runner, DB: db, Shell: cfg.Shell, HomeBase: cfg.HomeBase}
		e.Accounts, e.Groups = dir, dir
	}
	return e, nil
}
