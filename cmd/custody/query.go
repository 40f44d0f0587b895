package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/ChainOfCustody/pkg/client"
	"github.com/spf13/cobra"
)

// ── registry ────────────────────────────────────────────────────────────────

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Show the registry administrator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		admin, err := c.Admin(context.Background())
		if err != nil {
			return err
		}
		return render(map[string]string{"admin": admin}, func(w *tabwriter.Writer) {
			fmt.Fprintf(w, "Admin:\t%s\n", admin)
		})
	},
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize <identity>",
	Short: "Authorize an identity to act on the ledger (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.AuthorizeUser(context.Background(), args[0]); err != nil {
			return fmt.Errorf("authorize: %w", err)
		}
		return render(map[string]any{"identity": args[0], "authorized": true}, func(w *tabwriter.Writer) {
			fmt.Fprintf(w, "Authorized:\t%s\n", args[0])
		})
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List authorized identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		users, err := c.ListUsers(context.Background())
		if err != nil {
			return err
		}
		return render(users, func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "IDENTITY")
			for _, u := range users {
				fmt.Fprintln(w, u)
			}
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <identity>",
	Short: "Check whether an identity is authorized",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.CheckUser(context.Background(), args[0])
		if err != nil {
			return err
		}
		return render(st, func(w *tabwriter.Writer) {
			fmt.Fprintf(w, "Identity:\t%s\n", st.Identity)
			fmt.Fprintf(w, "Authorized:\t%t\n", st.Authorized)
			fmt.Fprintf(w, "Admin:\t%t\n", st.Admin)
		})
	},
}

// ── evidence queries ────────────────────────────────────────────────────────

var showCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Show the current state of an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		it, err := c.GetItem(context.Background(), args[0])
		if err != nil {
			return err
		}
		return render(it, func(w *tabwriter.Writer) {
			fmt.Fprintf(w, "Item:\t%s\n", it.ItemID)
			fmt.Fprintf(w, "Case:\t%s\n", it.CaseID)
			fmt.Fprintf(w, "Creator:\t%s\n", it.Creator)
			fmt.Fprintf(w, "State:\t%s\n", it.State)
			fmt.Fprintf(w, "Reason:\t%s\n", it.RemovalReason)
			if it.ReleasedTo != "" {
				fmt.Fprintf(w, "Released to:\t%s\n", it.ReleasedTo)
			}
			fmt.Fprintf(w, "Created:\t%s\n", it.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "Updated:\t%s\n", it.UpdatedAt.Format(time.RFC3339))
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <item-id>",
	Short: "Show the custody history of an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		entries, err := c.History(context.Background(), args[0])
		if err != nil {
			return err
		}
		return render(entries, func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "#\tTIME\tACTION\tSTATE\tACTOR\tREASON\tRELEASED TO")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ItemSeq, e.Timestamp.Format(time.RFC3339), e.Action, e.State,
					e.Actor, e.RemovalReason, e.ReleasedTo)
			}
		})
	},
}

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List cases in order of first appearance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		cases, err := c.ListCases(context.Background())
		if err != nil {
			return err
		}
		return render(cases, func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "CASE")
			for _, id := range cases {
				fmt.Fprintln(w, id)
			}
		})
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items <case-id>",
	Short: "List the items of a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		items, err := c.ListItems(context.Background(), args[0])
		if err != nil {
			return err
		}
		return render(items, func(w *tabwriter.Writer) { printItems(w, items) })
	},
}

func printItems(w *tabwriter.Writer, items []client.Item) {
	fmt.Fprintln(w, "ITEM\tSTATE\tREASON\tCREATOR\tUPDATED")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			it.ItemID, it.State, it.RemovalReason, it.Creator, it.UpdatedAt.Format(time.RFC3339))
	}
}

// ── ledger ──────────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the history log size and chain root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ov, err := c.LedgerOverview(context.Background())
		if err != nil {
			return err
		}
		return render(ov, func(w *tabwriter.Writer) {
			fmt.Fprintf(w, "Entries:\t%d\n", ov.Entries)
			fmt.Fprintf(w, "Root:\t%s\n", ov.Root)
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the history hash chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.VerifyLedger(context.Background())
		if err != nil {
			return err
		}
		if err := render(res, func(w *tabwriter.Writer) {
			fmt.Fprintf(w, "Valid:\t%t\n", res.Valid)
			fmt.Fprintf(w, "Entries:\t%d\n", res.Entries)
			if res.Error != "" {
				fmt.Fprintf(w, "Error:\t%s\n", res.Error)
			}
		}); err != nil {
			return err
		}
		if !res.Valid {
			return fmt.Errorf("history chain is broken")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminCmd, authorizeCmd, usersCmd, checkCmd)
	rootCmd.AddCommand(showCmd, historyCmd, casesCmd, itemsCmd)
	rootCmd.AddCommand(ledgerCmd, verifyCmd)
}
