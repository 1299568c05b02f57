package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) sweepCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail and refund analyses stuck in processing",
		Long: `Runs one reaper pass. Analyses still processing after STALE_AFTER are
marked failed and their credits refunded. --user limits the pass to one user.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			res, err := app.Reaper.Sweep(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			return c.printJSON(res)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only sweep this user's analyses")
	return cmd
}
