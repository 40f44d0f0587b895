package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	addCaseID  string
	addItemID  string
	removeWhy  string
	releasedTo string
)

var addCmd = &cobra.Command{
	Use:   "add --case <case-id> --item <item-id>",
	Short: "Register a new evidence item",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		e, err := c.AddEvidence(context.Background(), addCaseID, addItemID)
		if err != nil {
			return fmt.Errorf("add evidence: %w", err)
		}
		return printEntry(e)
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout <item-id>",
	Short: "Check an item out of the evidence room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		e, err := c.Checkout(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
		return printEntry(e)
	},
}

var checkinCmd = &cobra.Command{
	Use:   "checkin <item-id>",
	Short: "Return a checked-out item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		e, err := c.Checkin(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("checkin: %w", err)
		}
		return printEntry(e)
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <item-id> --reason DISPOSED|DESTROYED|RELEASED [--released-to <owner>]",
	Short: "Permanently remove an item (creator only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		e, err := c.Remove(context.Background(), args[0], removeWhy, releasedTo)
		if err != nil {
			return fmt.Errorf("remove: %w", err)
		}
		return printEntry(e)
	},
}

func init() {
	addCmd.Flags().StringVar(&addCaseID, "case", "", "case id (required)")
	addCmd.Flags().StringVar(&addItemID, "item", "", "item id (required)")
	_ = addCmd.MarkFlagRequired("case")
	_ = addCmd.MarkFlagRequired("item")

	removeCmd.Flags().StringVar(&removeWhy, "reason", "", "DISPOSED, DESTROYED or RELEASED (required)")
	removeCmd.Flags().StringVar(&releasedTo, "released-to", "", "lawful owner the item was released to")
	_ = removeCmd.MarkFlagRequired("reason")

	rootCmd.AddCommand(addCmd, checkoutCmd, checkinCmd, removeCmd)
}
