package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"concursobot/internal/bot"
	"concursobot/internal/scheduler"
)

func newCheckCmd(opts *options) *cobra.Command {
	var all, deliver, printBatches bool
	cmd := &cobra.Command{
		Use:   "check [id...]",
		Short: "Poll sources now and store the result",
		Long: `Poll the given sources (or every source with --all) and commit the result.
Updates are only sent to subscribers with --deliver, which needs TELEGRAM_BOT_TOKEN.
Without it the update is recorded as the source's last update: inspect it with
--print or "show <id> --mode last", and send it later with "broadcast <id>".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("give source ids or --all")
			}
			p, err := opts.openPipeline(cmd, deliver)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			ctx := cmd.Context()
			var results []scheduler.Result
			if all {
				results = p.sched.ForceAll(ctx, deliver)
			} else {
				for _, id := range args {
					if deliver {
						results = append(results, p.sched.RunNow(ctx, id))
					} else {
						results = append(results, p.sched.Force(ctx, id))
					}
				}
			}
			return report(cmd, results, printBatches)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "check every configured source")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "send updates to subscribers")
	cmd.Flags().BoolVar(&printBatches, "print", false, "print the update messages")
	return cmd
}

// report prints one line per result, and the batches of each result when
// withBatches is set. It fails when any result carries an error.
func report(cmd *cobra.Command, results []scheduler.Result, withBatches bool) error {
	w := cmd.OutOrStdout()
	failed := 0
	for _, res := range results {
		fmt.Fprintln(w, bot.FormatResult(res))
		if res.Err != nil {
			failed++
		}
		if withBatches {
			for _, b := range res.Batches {
				fmt.Fprintf(w, "\n%s\n", b)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d source(s) failed", failed, len(results))
	}
	return nil
}
