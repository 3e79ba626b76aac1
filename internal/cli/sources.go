package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"concursobot/internal/config"
)

func newSourcesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the configured sources and their cadence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.loadEnv(cmd, false)
			if err != nil {
				return err
			}
			sources, err := config.LoadSources(e.cfg.SourcesFile)
			if err != nil {
				return err
			}
			printSources(cmd, sources)
			return nil
		},
	}
}

func printSources(cmd *cobra.Command, sources *config.Sources) {
	w := cmd.OutOrStdout()
	idWidth, cronWidth := len("ID"), len("CADENCE")
	for _, src := range sources.Sources {
		idWidth = max(idWidth, len(src.ID))
		cronWidth = max(cronWidth, len(src.CronSpec()))
	}

	fmt.Fprintf(w, "Timezone: %s\n\n", sources.Timezone)
	fmt.Fprintf(w, "%-*s  %-4s  %-*s  %s\n", idWidth, "ID", "KIND", cronWidth, "CADENCE", "URL")
	for _, src := range sources.Sources {
		fmt.Fprintf(w, "%-*s  %-4s  %-*s  %s\n", idWidth, src.ID, src.Kind, cronWidth, src.CronSpec(), src.URL)
	}
}
