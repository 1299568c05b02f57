package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"plancheck-backend/internal/watcher"
)

func (c *cli) watchCmd() *cobra.Command {
	var opts watcher.Options
	cmd := &cobra.Command{
		Use:   "watch <analysis-id>",
		Short: "Follow an analysis until it completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Token == "" {
				opts.Token = os.Getenv("PLANCHECK_TOKEN")
			}
			opts.OnUpdate = func(u watcher.Update) {
				fmt.Fprintf(c.out, "%s %s (%s)\n", time.Now().Format(time.TimeOnly), u.Status, u.Source)
			}
			final, err := watcher.New(opts).Wait(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJSON(final)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.BaseURL, "base-url", "http://localhost:8080", "API origin")
	f.StringVar(&opts.Token, "token", "", "bearer token (defaults to $PLANCHECK_TOKEN)")
	f.StringVar(&opts.GuestID, "guest", "", "guest id for dev environments")
	f.DurationVar(&opts.PollInterval, "interval", watcher.DefaultPollInterval, "poll interval")
	f.IntVar(&opts.MaxAttempts, "max-attempts", watcher.DefaultMaxAttempts, "polls before giving up")
	f.BoolVar(&opts.DisablePush, "no-push", false, "poll only, skip the websocket channel")
	return cmd
}
