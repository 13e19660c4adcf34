package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed sql/state/*.sql
var stateMigrations embed.FS

// MigrateState brings the imsg state database (watch cursors) up to date.
func MigrateState(ctx context.Context, db *sql.DB) error {
	return runMigrations(ctx, db, stateMigrations, "sql/state")
}

// runMigrations executes the .sql files of dir in lexical order. Each file is
// applied at most once; schema_migrations records what already ran.
func runMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) error {
	// Create migrations tracking table
	if err := createMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	files, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration directory: %w", err)
	}
	sort.Strings(files)

	done, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, file := range files {
		version := path.Base(file)
		if done[version] {
			continue
		}
		if err := executeMigration(ctx, db, fsys, file, version); err != nil {
			return fmt.Errorf("migration %s failed: %w", version, err)
		}
	}
	return nil
}

func createMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_ts INTEGER NOT NULL
		)
	`)
	return err
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		done[version] = true
	}
	return done, rows.Err()
}

// executeMigration applies one file and records it in the same transaction,
// so a failed migration leaves no trace and is retried on the next open.
func executeMigration(ctx context.Context, db *sql.DB, fsys fs.FS, file, version string) error {
	content, err := fs.ReadFile(fsys, file)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Execute migration
	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}

	// Record migration
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_ts) VALUES (?, ?)",
		version,
		time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
