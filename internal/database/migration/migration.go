package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_files",
		SQL: `CREATE TABLE IF NOT EXISTS files (
  id           TEXT        PRIMARY KEY,
  collection   TEXT        NOT NULL,
  name         TEXT        NOT NULL,
  extension    TEXT        NOT NULL DEFAULT '',
  type         TEXT        NOT NULL DEFAULT '',
  path         TEXT        NOT NULL,
  size         BIGINT      NOT NULL DEFAULT 0 CHECK (size >= 0),
  checksum     TEXT        NOT NULL DEFAULT '',
  is_complete  BOOLEAN     NOT NULL DEFAULT FALSE,
  user_id      TEXT        NOT NULL DEFAULT '',
  meta         JSONB       NOT NULL DEFAULT '{}'::jsonb,
  versions     JSONB       NOT NULL DEFAULT '{}'::jsonb,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_files_collection",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_collection ON files (collection, created_at DESC);`,
	},
	{
		Name: "create_index_files_user_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_user_id ON files (user_id);`,
	},
	{
		Name: "create_index_files_incomplete",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_incomplete ON files (updated_at) WHERE NOT is_complete;`,
	},
}

// EnsureMigrated checks if the 'files' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	start := time.Now()
	log = log.With("component", "database")

	log.InfoContext(ctx, "db_migration_check", "status", "starting")

	var exists bool
	err := db.QueryRowContext(ctx, "SELECT to_regclass('public.files') IS NOT NULL").Scan(&exists)
	if err != nil {
		log.ErrorContext(ctx, "db_migration_failed",
			"status", "error",
			"error_message", fmt.Sprintf("failed to check sentinel table: %v", err),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.InfoContext(ctx, "db_migration_skip",
			"status", "success",
			"reason", "schema already exists",
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.ErrorContext(ctx, "db_migration_failed",
				"status", "error",
				"migration_step", step.Name,
				"error_message", err.Error(),
				"step_duration_ms", time.Since(stepStart).Milliseconds(),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.InfoContext(ctx, "db_migration_step",
			"status", "success",
			"migration_step", step.Name,
			"step_duration_ms", time.Since(stepStart).Milliseconds(),
		)
	}

	log.InfoContext(ctx, "db_migration_success",
		"status", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
