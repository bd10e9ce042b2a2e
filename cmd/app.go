package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/shelfripper/internal/catalog"
	"github.com/lehigh-university-libraries/shelfripper/internal/config"
	"github.com/lehigh-university-libraries/shelfripper/internal/document"
	"github.com/lehigh-university-libraries/shelfripper/internal/download"
	"github.com/lehigh-university-libraries/shelfripper/internal/models"
	"github.com/lehigh-university-libraries/shelfripper/internal/session"
)

const accessCodeEnv = "SHELFRIPPER_ACCESS_CODE"

// ExitError carries the process exit code for a failed command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Err: fmt.Errorf(format, args...)}
}

// app holds the settings shared by every subcommand
type app struct {
	configPath string
	verbose    bool

	cfg    config.Config
	logger *slog.Logger
}

// load resolves configuration as defaults < file < environment < flags
func (a *app) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(a.configPath)
		if err != nil {
			return usageError("%v", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return usageError("%v", err)
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return usageError("%v", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return usageError("%v", err)
	}
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	return nil
}

func newLogger(w io.Writer, cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// credential reads the access code from the flag or the environment
func (a *app) credential(catalogID, accessCode string) (models.Credential, error) {
	if accessCode == "" {
		accessCode = os.Getenv(accessCodeEnv)
	}
	cred := models.NewCredential(catalogID, accessCode)
	if cred.CatalogID == "" {
		return models.Credential{}, usageError("--catalog is required")
	}
	if cred.AccessCode == "" {
		return models.Credential{}, usageError("an access code is required (--access-code or %s)", accessCodeEnv)
	}
	return cred, nil
}

func (a *app) orchestrator() (*download.Orchestrator, error) {
	policy, err := a.cfg.RetryPolicy()
	if err != nil {
		return nil, usageError("%v", err)
	}
	return &download.Orchestrator{
		Auth: session.NewHandshaker(session.Options{
			BaseURL: a.cfg.BaseURL,
			Timeout: a.cfg.Timeout,
			Logger:  a.logger,
		}),
		Catalog:   catalog.NewClient(a.logger),
		Policy:    policy,
		Assembler: document.NewAssembler(document.Options{DPI: a.cfg.DPI, Logger: a.logger}),
		Logger:    a.logger,
	}, nil
}

// runError maps an orchestrator failure to exit code 1
func runError(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: 1, Err: err}
}
