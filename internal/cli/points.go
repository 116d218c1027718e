package cli

import (
	"github.com/spf13/cobra"
)

// NewPointsCommand creates the points command.
func NewPointsCommand(rootOpts *RootOptions) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "points",
		Short: "Reconcile the point catalog only",
		Long: `Create on the destination every source point matching the query that it
lacks, and verify both catalogs hold the same number of points. No values are
copied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("query") {
				cfg.PointQuery = query
			}
			e, err := rootOpts.engine(cmd, cfg)
			if err != nil {
				return err
			}
			return runReport(cmd, rootOpts, cfg, e.Points)
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "point name patterns, comma separated (* and ? wildcards)")

	return cmd
}
