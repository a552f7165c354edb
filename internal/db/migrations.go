package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RunMigrations applies the embedded schema in file name order and seeds the
// configured admin. Every statement is idempotent, so it runs on each start.
func RunMigrations(ctx context.Context, conn *sqlx.DB, seedAdminID int64, logger zerolog.Logger) error {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("db.RunMigrations: list migrations: %w", err)
	}

	sort.Strings(names)

	for _, name := range names {
		content, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("db.RunMigrations: read %s: %w", name, err)
		}

		logger.Debug().Str("file", name).Msg("applying migration")

		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("db.RunMigrations: apply %s: %w", name, err)
		}
	}

	if err := NewAdminRepository(conn).Create(ctx, seedAdminID); err != nil {
		return fmt.Errorf("db.RunMigrations: seed admin: %w", err)
	}

	logger.Info().Int("migrations", len(names)).Int64("seed_admin", seedAdminID).Msg("schema ready")

	return nil
}
