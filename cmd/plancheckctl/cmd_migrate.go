package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"plancheck-backend/internal/shared/storage/db"
)

var errNoDatabase = errors.New("DATABASE_URL is required for this command")

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := c.newApp()
				if err != nil {
					return err
				}
				defer app.Close()
				if app.DB == nil {
					return errNoDatabase
				}
				if err := db.RunMigrations(cmd.Context(), app.DB); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				return c.printVersion(cmd, app.DB)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := c.newApp()
				if err != nil {
					return err
				}
				defer app.Close()
				if app.DB == nil {
					return errNoDatabase
				}
				if err := db.RollbackMigration(cmd.Context(), app.DB); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				return c.printVersion(cmd, app.DB)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the applied schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := c.newApp()
				if err != nil {
					return err
				}
				defer app.Close()
				if app.DB == nil {
					return errNoDatabase
				}
				return c.printVersion(cmd, app.DB)
			},
		},
	)
	return cmd
}

func (c *cli) printVersion(cmd *cobra.Command, database *sql.DB) error {
	version, err := db.MigrationVersion(cmd.Context(), database)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	fmt.Fprintf(c.out, "schema version %d\n", version)
	return nil
}
