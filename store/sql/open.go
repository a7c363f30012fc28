package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	provisioningmigrations "github.com/goliatone/go-wallet-provisioning/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects the activity database. It satisfies the
// go-persistence-bun config contract.
type DatabaseConfig struct {
	Driver         string        `koanf:"driver" mapstructure:"driver" yaml:"driver"`
	DSN            string        `koanf:"dsn" mapstructure:"dsn" yaml:"dsn"`
	Debug          bool          `koanf:"debug" mapstructure:"debug" yaml:"debug"`
	PingTimeout    time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout" yaml:"ping_timeout"`
	MaxOpenConns   int           `koanf:"max_open_conns" mapstructure:"max_open_conns" yaml:"max_open_conns"`
	OtelIdentifier string        `koanf:"otel_identifier" mapstructure:"otel_identifier" yaml:"otel_identifier"`
}

func (c DatabaseConfig) GetDebug() bool {
	return c.Debug
}

func (c DatabaseConfig) GetDriver() string {
	return normalizeDriver(c.Driver)
}

func (c DatabaseConfig) GetServer() string {
	return strings.TrimSpace(c.DSN)
}

func (c DatabaseConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c DatabaseConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-wallet-provisioning"
	}
	return strings.TrimSpace(c.OtelIdentifier)
}

// Open connects to the configured database, applies the embedded migrations
// for its dialect and returns the ready client.
func Open(ctx context.Context, cfg DatabaseConfig) (*persistence.Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	driver := cfg.GetDriver()
	dsn := cfg.GetServer()
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: database dsn is required")
	}

	var (
		dialect         schema.Dialect
		migrationTarget string
	)
	switch driver {
	case DriverSQLite:
		dialect = sqlitedialect.New()
		migrationTarget = provisioningmigrations.DialectSQLite
	case DriverPostgres:
		dialect = pgdialect.New()
		migrationTarget = provisioningmigrations.DialectPostgres
	default:
		return nil, fmt.Errorf("sqlstore: unsupported database driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	_, err = provisioningmigrations.Register(ctx, migrationTarget, func(_ context.Context, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return client, nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pg":
		return DriverPostgres
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}
