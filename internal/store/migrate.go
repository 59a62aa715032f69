package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

var migrationName = regexp.MustCompile(`^(\d+)_[a-z0-9_]+\.(up|down)\.sql$`)

// migration is one numbered schema step with its up and down scripts.
type migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// loadMigrations pairs the up and down files in dir, ordered by version.
func loadMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	byVersion := make(map[string]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := migrationName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		mig := byVersion[m[1]]
		if mig == nil {
			mig = &migration{Version: m[1]}
			byVersion[m[1]] = mig
		}
		path := filepath.Join(dir, entry.Name())
		switch m[2] {
		case "up":
			if mig.Up != "" {
				return nil, fmt.Errorf("migration %s: duplicate up file", m[1])
			}
			mig.Up, mig.Name = path, strings.TrimSuffix(entry.Name(), ".up.sql")
		case "down":
			if mig.Down != "" {
				return nil, fmt.Errorf("migration %s: duplicate down file", m[1])
			}
			mig.Down = path
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.Up == "" || mig.Down == "" {
			return nil, fmt.Errorf("migration %s: needs both up and down files", mig.Version)
		}
		out = append(out, *mig)
	}
	slices.SortFunc(out, func(a, b migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

// ApplyMigrations runs every pending up script, each in its own transaction,
// and returns the names it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string, log zerolog.Logger) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	migrations, err := loadMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, mig := range migrations {
		done, err := isMigrated(ctx, db, mig.Name)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}
		if err := runScript(ctx, db, mig.Up, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, mig.Name)
			return err
		}); err != nil {
			return applied, fmt.Errorf("migration %s: %w", mig.Name, err)
		}
		log.Info().Str("migration", mig.Name).Msg("migration applied")
		applied = append(applied, mig.Name)
	}
	return applied, nil
}

// RollbackMigrations runs every down script newest first and forgets them.
func RollbackMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	migrations, err := loadMigrations(migrationsDir)
	if err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		mig := migrations[i]
		if err := runScript(ctx, db, mig.Down, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, mig.Name)
			return err
		}); err != nil {
			return fmt.Errorf("rollback %s: %w", mig.Name, err)
		}
	}
	return nil
}

func runScript(ctx context.Context, db *sql.DB, path string, record func(*sql.Tx) error) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if script := strings.TrimSpace(string(contents)); script != "" {
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("execute: %w", err)
		}
	}
	if err := record(tx); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	return exists, nil
}
