package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"plancheck-backend/internal/credits"
)

func (c *cli) creditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and adjust credit balances",
	}

	grant := &cobra.Command{
		Use:   "grant <user-id> <amount>",
		Short: "Add credits to a user's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[1])
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive integer, got %q", args[1])
			}
			app, err := c.newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			acct, err := app.Credits.Grant(cmd.Context(), args[0], amount)
			if err != nil {
				return fmt.Errorf("grant: %w", err)
			}
			return c.printJSON(acct)
		},
	}

	var entries int
	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print a user's balance and recent journal entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			acct, err := app.Credits.Account(cmd.Context(), args[0])
			if errors.Is(err, credits.ErrNotFound) {
				acct = credits.Account{UserID: args[0]}
			} else if err != nil {
				return fmt.Errorf("balance: %w", err)
			}
			out := struct {
				credits.Account
				Entries []credits.Entry `json:"entries,omitempty"`
			}{Account: acct}
			if entries > 0 {
				out.Entries, err = app.Credits.Entries(cmd.Context(), args[0], entries)
				if err != nil {
					return fmt.Errorf("entries: %w", err)
				}
			}
			return c.printJSON(out)
		},
	}
	show.Flags().IntVar(&entries, "entries", 10, "number of journal entries to include")

	cmd.AddCommand(grant, show)
	return cmd
}
