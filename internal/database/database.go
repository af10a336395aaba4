package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	applog "linkvault/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// IsPostgres reports whether dsn selects the PostgreSQL driver.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Connect opens PostgreSQL for postgres:// DSNs and SQLite otherwise.
func Connect(dsn string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if IsPostgres(dsn) {
		applog.Component("database").Info("connecting to PostgreSQL")
		return gorm.Open(postgres.Open(dsn), gormCfg)
	}

	applog.Component("database").WithField("dsn", dsn).Info("using SQLite")

	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		gormCfg,
	)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single connection serialises access instead of failing with SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate applies the embedded SQL migrations on PostgreSQL and falls back to
// gorm AutoMigrate of models on SQLite.
func Migrate(db *gorm.DB, dsn string, models ...any) error {
	if !IsPostgres(dsn) {
		return db.AutoMigrate(models...)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, pgx5URL(dsn))
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	applog.Component("database").WithField("version", version).WithField("dirty", dirty).Info("migrations applied")
	return nil
}

func pgx5URL(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return "pgx5" + dsn[i:]
	}
	return dsn
}
