package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Long: `Load every configuration layer, check cross references and build the
codecs and filter chains without connecting to any backend.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			a := newApp(cfg, setupLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format))
			if err := a.dryRun(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %d streams, %d codecs, %d computations\n",
				len(cfg.Streams), len(cfg.Codecs), len(cfg.Computations))
			return err
		},
	}
}
