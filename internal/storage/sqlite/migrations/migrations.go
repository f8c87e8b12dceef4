package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/slok/cartpool/internal/log"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// MigratorConfig is the configuration for the schema migrator.
type MigratorConfig struct {
	DB     *sql.DB
	Logger log.Logger
}

func (c *MigratorConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sqlite.Migrator"})
	return nil
}

// Migrator applies the embedded tasks, addresses and proxies schema.
type Migrator struct {
	db     *sql.DB
	logger log.Logger
}

// NewMigrator returns a new schema migrator.
func NewMigrator(cfg MigratorConfig) (*Migrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Migrator{db: cfg.DB, logger: cfg.Logger}, nil
}

// Up migrates the schema to the latest version and returns it.
func (m *Migrator) Up(ctx context.Context) (uint, error) {
	src, err := iofs.New(sqlFiles, "sql")
	if err != nil {
		return 0, fmt.Errorf("could not load migration files: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			m.logger.Warningf("Could not close migration files: %s", err)
		}
	}()

	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		return 0, fmt.Errorf("could not create migration driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return 0, fmt.Errorf("could not create migration instance: %w", err)
	}

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("could not apply migrations: %w", err)
	}

	version, dirty, err := mg.Version()
	if err != nil {
		return 0, fmt.Errorf("could not get schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}

	m.logger.Debugf("Schema at version %d", version)
	return version, nil
}
