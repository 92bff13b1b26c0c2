package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sage/internal/app"
	"sage/internal/config"
	"sage/internal/storage"
	"sage/internal/transport"
)

func newSubscribersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscribers",
		Aliases: []string{"subs"},
		Short:   "Manage category subscriptions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List subscriptions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), func(st storage.Store) error {
					subs, err := st.Subscriptions(cmd.Context())
					if err != nil {
						return err
					}
					if len(subs) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions.")
						return nil
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "CATEGORY\tDESTINATION\tSINCE")
					for _, s := range subs {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Category, s.Destination, s.CreatedAt.Local().Format("2006-01-02 15:04"))
					}
					return tw.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "add <category> <chat_id[:thread_id]>",
			Short: "Subscribe a chat to a category",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				// reject what the broadcaster could never deliver to
				if _, err := transport.ParseTarget(args[1]); err != nil {
					return err
				}
				return withStore(cmd.Context(), func(st storage.Store) error {
					added, err := st.Subscribe(cmd.Context(), args[0], args[1])
					if err != nil {
						return err
					}
					if !added {
						fmt.Fprintf(cmd.OutOrStdout(), "%s is already subscribed to %q\n", args[1], args[0])
						return nil
					}
					fmt.Fprintf(cmd.OutOrStdout(), "subscribed %s to %q\n", args[1], args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove <category> <chat_id[:thread_id]>",
			Short: "Unsubscribe a chat from a category",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd.Context(), func(st storage.Store) error {
					removed, err := st.Unsubscribe(cmd.Context(), args[0], args[1])
					if err != nil {
						return err
					}
					if !removed {
						return fmt.Errorf("%s is not subscribed to %q", args[1], args[0])
					}
					fmt.Fprintf(cmd.OutOrStdout(), "unsubscribed %s from %q\n", args[1], args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

func withStore(ctx context.Context, fn func(storage.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := app.OpenStore(ctx, cfg, config.SecretsFromEnv(), cliLogger())
	if errors.Is(err, storage.ErrDisabled) {
		return errors.New("no storage configured (set storage.driver)")
	}
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
