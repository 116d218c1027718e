package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/histsync/internal/domain/model"
)

// ValueOptions holds flags shared by the value subcommands.
type ValueOptions struct {
	Store     string
	Point     string
	Attribute string

	// put
	Time  string
	Value string
	UOM   string

	// delete
	Start string
	End   string
}

// NewValueCommand creates the value command with its put and delete
// subcommands.
func NewValueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValueOptions{}

	cmd := &cobra.Command{
		Use:   "value",
		Short: "Correct single values by hand",
	}
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "destination", "store to change (source|destination)")
	cmd.PersistentFlags().StringVar(&opts.Point, "point", "", "point name")
	cmd.PersistentFlags().StringVar(&opts.Attribute, "attribute", "", "attribute stream (default primary values)")

	put := &cobra.Command{
		Use:   "put",
		Short: "Insert or replace one value",
		Long: `Write one value at --time (RFC3339, default now). A value that parses as a
number is stored as a number, anything else as text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValuePut(cmd, rootOpts, opts)
		},
	}
	put.Flags().StringVar(&opts.Time, "time", "", "value timestamp (RFC3339, default now)")
	put.Flags().StringVar(&opts.Value, "value", "", "value to write")
	put.Flags().StringVar(&opts.UOM, "uom", "", "unit of measure")

	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete the values of a point in a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValueDelete(cmd, rootOpts, opts)
		},
	}
	del.Flags().StringVar(&opts.Start, "start", "", "range start (RFC3339)")
	del.Flags().StringVar(&opts.End, "end", "", "range end (RFC3339)")

	cmd.AddCommand(put, del)
	return cmd
}

func (o *ValueOptions) attribute() *string {
	if o.Attribute == "" {
		return nil
	}
	return &o.Attribute
}

// parseValue keeps numbers numeric.
func parseValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func parseTime(flag, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, WrapExitError(ExitCommandError, "invalid --"+flag, err)
	}
	return t.UTC(), nil
}

func runValuePut(cmd *cobra.Command, rootOpts *RootOptions, opts *ValueOptions) error {
	if opts.Point == "" {
		return NewExitError(ExitCommandError, "--point is required")
	}
	if !cmd.Flags().Changed("value") {
		return NewExitError(ExitCommandError, "--value is required")
	}
	sd, err := side(opts.Store)
	if err != nil {
		return err
	}
	ts := time.Now().UTC()
	if opts.Time != "" {
		if ts, err = parseTime("time", opts.Time); err != nil {
			return err
		}
	}

	cfg, err := rootOpts.load(cmd)
	if err != nil {
		return err
	}
	e, err := rootOpts.engine(cmd, cfg)
	if err != nil {
		return err
	}

	v := model.Value{Timestamp: ts, Value: parseValue(opts.Value), UOM: opts.UOM}
	if err := e.PutValue(cmd.Context(), sd, opts.Point, opts.attribute(), v); err != nil {
		return WrapExitError(ExitFailure, "put value", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %v\n", opts.Point, ts.Format(time.RFC3339), v.Value)
	return err
}

func runValueDelete(cmd *cobra.Command, rootOpts *RootOptions, opts *ValueOptions) error {
	if opts.Point == "" {
		return NewExitError(ExitCommandError, "--point is required")
	}
	if opts.Start == "" || opts.End == "" {
		return NewExitError(ExitCommandError, "--start and --end are required")
	}
	sd, err := side(opts.Store)
	if err != nil {
		return err
	}
	start, err := parseTime("start", opts.Start)
	if err != nil {
		return err
	}
	end, err := parseTime("end", opts.End)
	if err != nil {
		return err
	}
	r, err := model.NewTimeRange(start, end)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid range", err)
	}

	cfg, err := rootOpts.load(cmd)
	if err != nil {
		return err
	}
	e, err := rootOpts.engine(cmd, cfg)
	if err != nil {
		return err
	}

	n, err := e.DeleteValues(cmd.Context(), sd, opts.Point, opts.attribute(), r)
	if err != nil {
		return WrapExitError(ExitFailure, "delete values", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d values deleted\n", opts.Point, n)
	return err
}
