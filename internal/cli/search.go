package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/okian/histsync/internal/app"
	"github.com/okian/histsync/internal/domain/search"
	"github.com/okian/histsync/internal/report"
)

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	Store       string
	Point       string
	Attribute   string
	Equals      string
	DiffersFrom string
	StartDays   int
	EndDays     int
	MaxAttempts int
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the newest value matching a predicate",
		Long: `Search a point backwards in time for the newest value equal to --equals,
or the newest value different from --differs-from (the last valid reading).

The first window is [now+start-days, now+end-days]. Each further window ends
where the previous one began and is twice as wide, up to --max-attempts
windows. Nothing found is not an error; the timestamp prints as Indefinite.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", "source", "store to search (source|destination)")
	cmd.Flags().StringVar(&opts.Point, "point", "", "point name")
	cmd.Flags().StringVar(&opts.Attribute, "attribute", "", "attribute stream (default primary values)")
	cmd.Flags().StringVar(&opts.Equals, "equals", "", "find the newest value equal to this")
	cmd.Flags().StringVar(&opts.DiffersFrom, "differs-from", "", "find the newest value different from this")
	cmd.Flags().IntVar(&opts.StartDays, "start-days", 0, "first window start in days from now, <= 0 (default from config)")
	cmd.Flags().IntVar(&opts.EndDays, "end-days", 0, "first window end in days from now, <= 0 (default from config)")
	cmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", 0, "windows to query (default from config)")

	return cmd
}

func runSearch(cmd *cobra.Command, rootOpts *RootOptions, opts *SearchOptions) error {
	if opts.Point == "" {
		return NewExitError(ExitCommandError, "--point is required")
	}
	if rootOpts.format == report.FormatHTML {
		return NewExitError(ExitCommandError, "search results cannot be rendered as html")
	}
	sd, err := side(opts.Store)
	if err != nil {
		return err
	}

	cfg, err := rootOpts.load(cmd)
	if err != nil {
		return err
	}
	e, err := rootOpts.engine(cmd, cfg)
	if err != nil {
		return err
	}

	req := app.SearchRequest{
		Side:        sd,
		Point:       opts.Point,
		Attribute:   opts.Attribute,
		StartDays:   cfg.SearchStartDays,
		EndDays:     cfg.SearchEndDays,
		MaxAttempts: opts.MaxAttempts,
	}
	flags := cmd.Flags()
	if flags.Changed("equals") {
		req.Equals = &opts.Equals
	}
	if flags.Changed("differs-from") {
		req.DiffersFrom = &opts.DiffersFrom
	}
	if flags.Changed("start-days") {
		req.StartDays = opts.StartDays
	}
	if flags.Changed("end-days") {
		req.EndDays = opts.EndDays
	}

	res, err := e.Search(cmd.Context(), req)
	var perr *search.SearchParameterError
	switch {
	case errors.Is(err, app.ErrNoPredicate), errors.As(err, &perr):
		return WrapExitError(ExitCommandError, "invalid search", err)
	case err != nil:
		return WrapExitError(ExitFailure, "search failed", err)
	}
	if err := report.RenderSearch(cmd.OutOrStdout(), res, rootOpts.format); err != nil {
		return WrapExitError(ExitFailure, "render search result", err)
	}
	return nil
}
