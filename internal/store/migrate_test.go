package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsArePaired(t *testing.T) {
	migrations, err := loadMigrations(migrationsDir)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no migrations discovered")
	}
	for i, mig := range migrations {
		if i > 0 && migrations[i-1].Version >= mig.Version {
			t.Fatalf("migrations out of order: %s before %s", migrations[i-1].Name, mig.Name)
		}
		if !strings.HasPrefix(mig.Name, mig.Version+"_") {
			t.Fatalf("migration name %q does not carry version %s", mig.Name, mig.Version)
		}
	}
}

func TestLoadMigrationsRejectsUnpaired(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_first.up.sql", "SELECT 1;")
	writeMigration(t, dir, "0001_first.down.sql", "SELECT 1;")
	writeMigration(t, dir, "0002_second.up.sql", "SELECT 1;")
	writeMigration(t, dir, "notes.txt", "ignored")

	if _, err := loadMigrations(dir); err == nil || !strings.Contains(err.Error(), "0002") {
		t.Fatalf("loadMigrations() error = %v, want unpaired 0002", err)
	}
}

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// testDB connects to RULEHISTORY_TEST_DATABASE_URL with an empty public
// schema, or skips.
func testDB(t *testing.T) (context.Context, *sql.DB) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("RULEHISTORY_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("RULEHISTORY_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return ctx, db
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	ctx, db := testDB(t)

	applied, err := ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("apply (pass 1): %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("pass 1 applied nothing")
	}

	again, err := ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("apply (idempotent): %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second apply ran %v", again)
	}

	if err := RollbackMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	reapplied, err := ApplyMigrations(ctx, db, migrationsDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("apply (pass 2): %v", err)
	}
	if strings.Join(reapplied, ",") != strings.Join(applied, ",") {
		t.Fatalf("pass 2 applied %v, want %v", reapplied, applied)
	}
}
