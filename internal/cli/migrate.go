package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/histsync/internal/config"
	"github.com/okian/histsync/internal/report"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	Start        string
	End          string
	LookbackDays int
	Filter       string
	Query        string
	Workers      int
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Reconcile the catalog and copy values",
		Long: `Reconcile the destination catalog with the source, then copy the
values of every matching point for the time range.

The range is --start to --end (RFC3339). Without --start it is the last
--lookback-days days before --end, and --end defaults to now. Points whose
destination already holds at least as many values as the source are skipped.

Exit code is 1 when the run fails or any point could not be written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "range start (RFC3339)")
	cmd.Flags().StringVar(&opts.End, "end", "", "range end (RFC3339, default now)")
	cmd.Flags().IntVar(&opts.LookbackDays, "lookback-days", 0, "range length in days when --start is not set")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", `value filter, e.g. "value > 0"`)
	cmd.Flags().StringVar(&opts.Query, "query", "", "point name patterns, comma separated (* and ? wildcards)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "points copied concurrently")

	return cmd
}

// apply overrides cfg with the flags that were set.
func (o *MigrateOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("lookback-days") {
		cfg.LookbackDays = o.LookbackDays
		cfg.RangeStart = ""
	}
	if flags.Changed("start") {
		cfg.RangeStart = o.Start
	}
	if flags.Changed("end") {
		cfg.RangeEnd = o.End
	}
	if flags.Changed("filter") {
		cfg.ValueFilter = o.Filter
	}
	if flags.Changed("query") {
		cfg.PointQuery = o.Query
	}
	if flags.Changed("workers") {
		cfg.WorkerCount = o.Workers
	}
}

func runMigrate(cmd *cobra.Command, rootOpts *RootOptions, opts *MigrateOptions) error {
	cfg, err := rootOpts.load(cmd)
	if err != nil {
		return err
	}
	opts.apply(cmd, cfg)

	e, err := rootOpts.engine(cmd, cfg)
	if err != nil {
		return err
	}
	return runReport(cmd, rootOpts, cfg, e.Migrate)
}

// runReport runs a reporting command and renders its report, also when
// the run failed.
func runReport(cmd *cobra.Command, rootOpts *RootOptions, cfg *config.Config,
	run func(context.Context) (*report.Report, error)) error {
	ctx := cmd.Context()
	if cfg.MetricsAddr != "" {
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go startSystemMetricsUpdater(mctx)
	}

	rep, err := run(ctx)
	if rep == nil {
		return WrapExitError(ExitFailure, "run not started", err)
	}
	if rerr := report.Render(cmd.OutOrStdout(), rep, rootOpts.format); rerr != nil {
		return WrapExitError(ExitFailure, "render report", errors.Join(err, rerr))
	}
	switch {
	case err != nil:
		return WrapExitError(ExitFailure, rep.Command+" "+string(rep.Outcome), err)
	case len(rep.Failures) > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d points could not be written", len(rep.Failures)))
	}
	return nil
}
