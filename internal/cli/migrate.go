package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"concursobot/migrations"
)

func newMigrateCmd(opts *options) *cobra.Command {
	var usage strings.Builder
	usage.WriteString("Run a schema migration command against the database.\n\n")
	migrations.PrintUsage(&usage)

	return &cobra.Command{
		Use:   "migrate <command>",
		Short: "Apply or roll back the database schema",
		Long:  usage.String(),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.loadEnv(cmd, false)
			if err != nil {
				return err
			}
			return migrations.Exec(e.cfg.DatabasePath, args[0])
		},
	}
}
