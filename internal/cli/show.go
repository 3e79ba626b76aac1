package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"concursobot/internal/compose"
)

func newShowCmd(opts *options) *cobra.Command {
	var mode string
	var count int
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Render the stored snapshot of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseMode(mode)
			if err != nil {
				return err
			}
			if count < 0 {
				return fmt.Errorf("--count must not be negative, got %d", count)
			}
			p, err := opts.openPipeline(cmd, false)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			batches, err := p.sched.View(cmd.Context(), args[0], m, count)
			if err != nil {
				return err
			}
			for i, b := range batches {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				fmt.Fprint(cmd.OutOrStdout(), b)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "short", "view mode: short, complete, last")
	cmd.Flags().IntVar(&count, "count", 0, "groups shown in short mode (default: the source's short_count)")
	return cmd
}

func parseMode(s string) (compose.Mode, error) {
	switch s {
	case "short":
		return compose.ModeShort, nil
	case "complete", "full":
		return compose.ModeComplete, nil
	case "last", "last_update":
		return compose.ModeLastUpdate, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want short, complete or last)", s)
	}
}
