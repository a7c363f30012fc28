// Package migrations resolves the embedded provisioning schema for each
// supported SQL dialect and checks that both dialects ship the same versions.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	provisioning "github.com/goliatone/go-wallet-provisioning"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	rootPath   = "data/sql/migrations"
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Migration is one versioned up/down pair, e.g.
// 20260301000200_provisioning_webhook_deliveries.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// Dialect is the migration tree of one SQL dialect.
type Dialect struct {
	Name       string
	Path       string
	FS         fs.FS
	Migrations []Migration
}

// Versions returns the migration versions in apply order.
func (d Dialect) Versions() []string {
	versions := make([]string, 0, len(d.Migrations))
	for _, migration := range d.Migrations {
		versions = append(versions, migration.Version)
	}
	return versions
}

// RegisterFunc hands a dialect's migration filesystem to the persistence
// client.
type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

// Load reads the postgres tree at data/sql/migrations and the sqlite tree
// beneath it. A source other than the embedded schema may be passed for tests.
func Load(sources ...fs.FS) ([]Dialect, error) {
	root := provisioning.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}
	base, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	dialects := []Dialect{
		{Name: DialectPostgres, Path: rootPath, FS: base},
		{Name: DialectSQLite, Path: rootPath + "/sqlite", FS: sqliteFS},
	}
	for i := range dialects {
		migrations, err := scan(dialects[i].FS)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s: %w", dialects[i].Name, err)
		}
		dialects[i].Migrations = migrations
	}

	postgres, sqlite := dialects[0].Versions(), dialects[1].Versions()
	if !slices.Equal(postgres, sqlite) {
		return nil, fmt.Errorf("migrations: postgres versions %v do not match sqlite versions %v", postgres, sqlite)
	}
	return dialects, nil
}

// ForDialect returns the migration tree for one dialect.
func ForDialect(name string, sources ...fs.FS) (Dialect, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	dialects, err := Load(sources...)
	if err != nil {
		return Dialect{}, err
	}
	for _, dialect := range dialects {
		if dialect.Name == name {
			return dialect, nil
		}
	}
	return Dialect{}, fmt.Errorf("migrations: unsupported dialect %q", name)
}

// Register validates the embedded schema and registers the tree of dialect.
func Register(ctx context.Context, dialect string, registerFn RegisterFunc) (Dialect, error) {
	if registerFn == nil {
		return Dialect{}, fmt.Errorf("migrations: register function is required")
	}
	tree, err := ForDialect(dialect)
	if err != nil {
		return Dialect{}, err
	}
	if err := registerFn(ctx, tree.Name, tree.FS); err != nil {
		return tree, fmt.Errorf("migrations: register %s (%s): %w", tree.Name, tree.Path, err)
	}
	return tree, nil
}

// scan pairs every *.up.sql with its *.down.sql, sorted by version.
func scan(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	files := map[string]bool{}
	for _, entry := range entries {
		if !entry.IsDir() {
			files[entry.Name()] = true
		}
	}

	var migrations []Migration
	for file := range files {
		stem, ok := strings.CutSuffix(file, upSuffix)
		if !ok {
			continue
		}
		down := stem + downSuffix
		if !files[down] {
			return nil, fmt.Errorf("%s has no matching %s", file, down)
		}
		version, name, ok := strings.Cut(stem, "_")
		if !ok || version == "" || name == "" {
			return nil, fmt.Errorf("%s is not named <version>_<name>%s", file, upSuffix)
		}
		migrations = append(migrations, Migration{Version: version, Name: name, Up: file, Down: down})
	}
	for file := range files {
		if stem, ok := strings.CutSuffix(file, downSuffix); ok && !files[stem+upSuffix] {
			return nil, fmt.Errorf("%s has no matching %s", file, stem+upSuffix)
		}
	}
	if len(migrations) == 0 {
		return nil, fmt.Errorf("no %s files", "*"+upSuffix)
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return migrations, nil
}
