// Command plancheckctl is the operator CLI for the plan compliance backend.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"plancheck-backend/internal/bootstrap"
	"plancheck-backend/internal/shared/config"
	"plancheck-backend/internal/shared/storage/db"
	"plancheck-backend/internal/shared/telemetry"
)

type cli struct {
	newApp func() (*bootstrap.App, error)
	out    io.Writer
}

func main() {
	c := &cli{
		newApp: func() (*bootstrap.App, error) {
			return bootstrap.BuildCore(config.Load(), db.DefaultWorkerOptions())
		},
		out: os.Stdout,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := c.rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	var env string
	root := &cobra.Command{
		Use:          "plancheckctl",
		Short:        "Operate the plan compliance backend",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if env == "" {
				env = os.Getenv("ENV")
			}
			return telemetry.Init(env)
		},
	}
	root.PersistentFlags().StringVar(&env, "log-env", "", "logger environment (dev prints console logs)")
	root.SetOut(c.out)

	root.AddCommand(
		c.migrateCmd(),
		c.sweepCmd(),
		c.creditsCmd(),
		c.watchCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
