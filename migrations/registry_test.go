package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/fstest"

	provisioning "github.com/goliatone/go-wallet-provisioning"
	_ "github.com/mattn/go-sqlite3"
)

func TestLoad_PairsProvisioningSchemaForBothDialects(t *testing.T) {
	dialects, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(dialects) != 2 {
		t.Fatalf("expected 2 dialects, got %d", len(dialects))
	}

	want := []string{"20260301000100", "20260301000200", "20260301000300"}
	for _, dialect := range dialects {
		if !slices.Equal(dialect.Versions(), want) {
			t.Fatalf("%s versions = %v, want %v", dialect.Name, dialect.Versions(), want)
		}
		if dialect.Migrations[1].Name != "provisioning_webhook_deliveries" {
			t.Fatalf("%s: unexpected second migration %+v", dialect.Name, dialect.Migrations[1])
		}
		for _, migration := range dialect.Migrations {
			if _, err := fs.ReadFile(dialect.FS, migration.Down); err != nil {
				t.Fatalf("%s: read %s: %v", dialect.Name, migration.Down, err)
			}
		}
	}
}

func TestLoad_RejectsTreeWithoutMigrations(t *testing.T) {
	empty := fstest.MapFS{
		"data/sql/migrations/sqlite/README": &fstest.MapFile{Data: []byte("none")},
	}
	if _, err := Load(empty); err == nil {
		t.Fatalf("expected missing up migrations to fail")
	}
}

func TestLoad_RejectsUpWithoutDown(t *testing.T) {
	tree := fstest.MapFS{
		"data/sql/migrations/1_tokens.up.sql":        &fstest.MapFile{Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/1_tokens.up.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
	}
	_, err := Load(tree)
	if err == nil || !strings.Contains(err.Error(), "1_tokens.down.sql") {
		t.Fatalf("expected missing down migration error, got %v", err)
	}
}

func TestLoad_RejectsVersionDriftBetweenDialects(t *testing.T) {
	tree := fstest.MapFS{
		"data/sql/migrations/1_tokens.up.sql":          &fstest.MapFile{Data: []byte("SELECT 1;")},
		"data/sql/migrations/1_tokens.down.sql":        &fstest.MapFile{Data: []byte("SELECT 1;")},
		"data/sql/migrations/2_wallets.up.sql":         &fstest.MapFile{Data: []byte("SELECT 1;")},
		"data/sql/migrations/2_wallets.down.sql":       &fstest.MapFile{Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/1_tokens.up.sql":   &fstest.MapFile{Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/1_tokens.down.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
	}
	_, err := Load(tree)
	if err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Fatalf("expected version drift error, got %v", err)
	}
}

func TestRegister_RegistersRequestedDialectOnly(t *testing.T) {
	var calls []string
	tree, err := Register(context.Background(), " SQLite ", func(_ context.Context, dialect string, fsys fs.FS) error {
		calls = append(calls, dialect)
		if _, err := fs.Stat(fsys, "20260301000300_provisioning_rate_limit_state.up.sql"); err != nil {
			t.Fatalf("expected rate limit migration in registered tree: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected a single sqlite registration, got %v", calls)
	}
	if tree.Path != "data/sql/migrations/sqlite" {
		t.Fatalf("unexpected tree path %q", tree.Path)
	}
}

func TestRegister_RejectsUnknownDialect(t *testing.T) {
	_, err := Register(context.Background(), "mysql", func(context.Context, string, fs.FS) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "unsupported dialect") {
		t.Fatalf("expected unsupported dialect error, got %v", err)
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), DialectSQLite, nil); err == nil {
		t.Fatalf("expected nil register func to fail")
	}
}

func TestMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := provisioning.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/20260301000100_provisioning_activity.up.sql",
		"data/sql/migrations/20260301000100_provisioning_activity.down.sql",
		"data/sql/migrations/sqlite/20260301000100_provisioning_activity.up.sql",
		"data/sql/migrations/sqlite/20260301000100_provisioning_activity.down.sql",
		"data/sql/migrations/20260301000200_provisioning_webhook_deliveries.up.sql",
		"data/sql/migrations/20260301000200_provisioning_webhook_deliveries.down.sql",
		"data/sql/migrations/sqlite/20260301000200_provisioning_webhook_deliveries.up.sql",
		"data/sql/migrations/sqlite/20260301000200_provisioning_webhook_deliveries.down.sql",
		"data/sql/migrations/20260301000300_provisioning_rate_limit_state.up.sql",
		"data/sql/migrations/20260301000300_provisioning_rate_limit_state.down.sql",
		"data/sql/migrations/sqlite/20260301000300_provisioning_rate_limit_state.up.sql",
		"data/sql/migrations/sqlite/20260301000300_provisioning_rate_limit_state.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteActivityMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-provisioning-activity?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := provisioning.GetMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(
		context.Background(),
		db,
		sqliteMigrations,
		"20260301000100_provisioning_activity.up.sql",
	); err != nil {
		t.Fatalf("apply activity migration up: %v", err)
	}

	if _, err := db.ExecContext(
		context.Background(),
		`INSERT INTO provisioning_activity_entries
			(id, operation, status, status_tag, error_kind, token_reference, request_code, duration_ms, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"entry_1",
		"push_provision",
		"submitted",
		"",
		"",
		nil,
		3,
		4,
		"{}",
		"2026-03-01T00:00:00Z",
	); err != nil {
		t.Fatalf("insert activity entry: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		`INSERT INTO provisioning_activity_entries (id, operation, status) VALUES (?, ?, ?)`,
		"entry_1",
		"push_provision",
		"ok",
	); err == nil {
		t.Fatalf("expected primary key violation")
	}

	if err := execSQLMigration(
		context.Background(),
		db,
		sqliteMigrations,
		"20260301000100_provisioning_activity.down.sql",
	); err != nil {
		t.Fatalf("apply activity migration down: %v", err)
	}

	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"provisioning_activity_entries",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master after down migration: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected provisioning_activity_entries to be dropped after down migration")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
