package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCodecsCommand(rootOpts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:          "codecs",
		Short:        "List the codecs contributed by the configuration",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			a := newApp(cfg, setupLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format))
			if err := a.registerCodecs(); err != nil {
				return err
			}

			descriptors := a.codecs.Descriptors()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(descriptors)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "NAME\tFACTORY\tOPTIONS")
			for _, d := range descriptors {
				keys := make([]string, 0, len(d.Options))
				for k := range d.Options {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				pairs := make([]string, len(keys))
				for i, k := range keys {
					pairs[i] = k + "=" + d.Options[k]
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Factory, strings.Join(pairs, ","))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
