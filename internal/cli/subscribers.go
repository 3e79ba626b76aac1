package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"concursobot/internal/storage"
)

func newSubscribersCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribers",
		Short: "Manage the chats that receive updates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List subscribed chats, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ids, err := store.ListSubscribers(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No subscribers.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <chat>",
		Short: "Subscribe a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			store, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			added, err := store.AddSubscriber(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "Chat %d is already subscribed\n", chatID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscribed chat %d\n", chatID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <chat>",
		Short: "Unsubscribe a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			store, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			removed, err := store.RemoveSubscriber(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Chat %d is not subscribed\n", chatID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unsubscribed chat %d\n", chatID)
			return nil
		},
	})

	return cmd
}

func (o *options) openStore(cmd *cobra.Command) (*storage.SQLite, error) {
	e, err := o.loadEnv(cmd, false)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(e.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", s, err)
	}
	return id, nil
}
