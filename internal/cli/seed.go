package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/histsync/internal/seed"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	Store    string
	Prefix   string
	Points   int
	Days     int
	Interval time.Duration
	Seed     uint64
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill a store with synthetic points and history",
		Long: `Create points named <prefix>0001, <prefix>0002, ... and write a sine wave
history ending now. Every 7th point holds Open/Closed states and every 5th
analog point ends with "Bad Input" readings. Analog points also get a daily
"mode" attribute stream (AUTO, every 4th day MANUAL).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			st, err := e.Seed(cmd.Context(), sd, seed.Config{
				Prefix:   opts.Prefix,
				Points:   opts.Points,
				Days:     opts.Days,
				Interval: opts.Interval,
				Seed:     opts.Seed,
			})
			switch {
			case errors.Is(err, seed.ErrInvalidConfig):
				return WrapExitError(ExitCommandError, "invalid seed flags", err)
			case err != nil:
				return WrapExitError(ExitFailure, "seed failed", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d points with %d values (%d rejected) and %d mode values in %s\n",
				st.Points, st.Values, st.Rejected, st.ModeValues, st.Duration.Round(time.Millisecond))
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", "source", "store to fill (source|destination)")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "SIM.TAG", "point name prefix")
	cmd.Flags().IntVar(&opts.Points, "points", 10, "number of points")
	cmd.Flags().IntVar(&opts.Days, "days", 7, "days of history")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 15*time.Minute, "sample interval")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "noise seed")

	return cmd
}
