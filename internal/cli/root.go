// Package cli implements the histsync command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/histsync/internal/app"
	"github.com/okian/histsync/internal/config"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/internal/report"
	"github.com/okian/histsync/pkg/logger"
)

const logFileName = "histsync"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string // text | json | yaml | html

	format report.Format
}

// NewRootCommand creates the root command for the histsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "histsync",
		Short: "histsync - historian time-series migration",
		Long: `Copy point catalogs and value history from one historian to another.

The destination catalog is reconciled against the source first, then the
values of every matching point are copied for a time range. Runs are
idempotent: points and values already on the destination are left alone.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(opts.Format)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --format", err)
			}
			opts.format = f
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file (default $HISTSYNC_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml|html)")

	// Add subcommands
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPointsCommand(opts))
	cmd.AddCommand(NewSearchCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewValueCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if serr := logger.Sync(); serr != nil {
		fmt.Fprintln(stderr, "failed to close log file:", serr)
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return GetExitCode(err)
}

// load reads the configuration and initializes logging from it.
func (o *RootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Context(), o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}

	if cfg.LogDir != "" {
		if _, err := logger.InitFile(cfg.LogDir, logFileName, cfg.LogRetentionDays); err != nil {
			return nil, WrapExitError(ExitCommandError, "init log file", err)
		}
	} else if err := logger.InitWithWriter(cmd.ErrOrStderr()); err != nil {
		return nil, WrapExitError(ExitCommandError, "init logging", err)
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

// engine builds the engine for cfg after flag overrides were applied.
func (o *RootOptions) engine(cmd *cobra.Command, cfg *config.Config) (*app.Engine, error) {
	e, err := app.New(cmd.Context(), cfg, app.WithLogger(logger.Get()))
	switch {
	case err == nil:
		return e, nil
	case errors.Is(err, config.ErrInvalidConfig):
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	default:
		return nil, WrapExitError(ExitFailure, "start engine", err)
	}
}

// side parses a --store flag value.
func side(s string) (model.Side, error) {
	sd, err := app.ParseSide(s)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid --store", err)
	}
	return sd, nil
}
