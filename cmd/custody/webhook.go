package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var webhookEvents []string

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage custody event subscriptions",
}

var webhookAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Subscribe a URL to custody events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		sub, secret, err := c.Subscribe(context.Background(), args[0], webhookEvents)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		return render(map[string]any{"subscription": sub, "secret": secret}, func(w *tabwriter.Writer) {
			fmt.Fprintf(w, "ID:\t%s\n", sub.ID)
			fmt.Fprintf(w, "URL:\t%s\n", sub.URL)
			fmt.Fprintf(w, "Events:\t%s\n", strings.Join(sub.Events, ", "))
			fmt.Fprintf(w, "Secret:\t%s\n", secret)
			fmt.Fprintln(w, "\nStore the secret now; it is not shown again.")
		})
	},
}

var webhookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		subs, err := c.ListWebhooks(context.Background())
		if err != nil {
			return err
		}
		return render(subs, func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "ID\tOWNER\tURL\tEVENTS\tCREATED")
			for _, s := range subs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.Owner, s.URL, strings.Join(s.Events, ","), s.CreatedAt.Format(time.RFC3339))
			}
		})
	},
}

var webhookRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a subscription you own",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Unsubscribe(context.Background(), args[0]); err != nil {
			return fmt.Errorf("unsubscribe: %w", err)
		}
		fmt.Printf("Deleted subscription %s\n", args[0])
		return nil
	},
}

func init() {
	webhookAddCmd.Flags().StringSliceVar(&webhookEvents, "event",
		[]string{"evidence.added", "evidence.checked_out", "evidence.checked_in", "evidence.removed", "ledger.tampered"},
		"event types to receive (repeatable)")

	webhookCmd.AddCommand(webhookAddCmd, webhookListCmd, webhookRmCmd)
	rootCmd.AddCommand(webhookCmd)
}
