package db

import (
	"context"
	"database/sql"
	"embed"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var gooseInit sync.Once

func setupGoose() error {
	var err error
	gooseInit.Do(func() {
		goose.SetBaseFS(migrationFiles)
		err = goose.SetDialect("postgres")
	})
	return err
}

// RunMigrations applies embedded SQL migrations via goose. If database is nil, it's a no-op.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	if err := setupGoose(); err != nil {
		return err
	}
	return goose.UpContext(ctx, database, "migrations")
}

// RollbackMigration reverts the most recent migration.
func RollbackMigration(ctx context.Context, database *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	return goose.DownContext(ctx, database, "migrations")
}

// MigrationVersion reports the currently applied schema version.
func MigrationVersion(ctx context.Context, database *sql.DB) (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, database)
}
