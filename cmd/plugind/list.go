package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harborlight/plugind/internal/config"
	"github.com/harborlight/plugind/internal/manifest"
)

func newListCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Discover and list plugin manifests without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			loaded, failures := manifest.Discover(settings.PluginDirs...)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tBINARY\tDIR")
			for _, l := range loaded {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Manifest.Name, l.Manifest.Version, l.Manifest.Binary, l.Dir)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			for _, failure := range failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", failure.Dir, failure.Err)
			}
			return nil
		},
	}

	return cmd
}
