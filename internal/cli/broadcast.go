package cli

import (
	"github.com/spf13/cobra"

	"concursobot/internal/scheduler"
)

func newBroadcastCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast <id>...",
		Short: "Send the last recorded update of sources to every subscriber",
		Long: `Send the last update recorded for each source to every subscriber, composed
as it was when detected. Use it after "check" without --deliver.
Needs TELEGRAM_BOT_TOKEN.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.openPipeline(cmd, true)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			results := make([]scheduler.Result, 0, len(args))
			for _, id := range args {
				results = append(results, p.sched.Broadcast(cmd.Context(), id))
			}
			return report(cmd, results, false)
		},
	}
}
