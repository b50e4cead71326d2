package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// File source driver, used when MIGRATIONS_PATH points at a directory.
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/keyxmakerx/beacon/db"
)

// RunMigrations brings the kv_store schema up to date. An empty
// migrationsPath applies the migrations compiled into the binary; a
// directory overrides them. Already-applied versions are skipped.
func RunMigrations(conn *sql.DB, migrationsPath string) error {
	driver, err := mysql.WithInstance(conn, &mysql.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	var m *migrate.Migrate
	if migrationsPath == "" {
		var src source.Driver
		src, err = iofs.New(db.Migrations, "migrations")
		if err != nil {
			return fmt.Errorf("opening embedded migrations: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "mysql", driver)
	} else {
		m, err = migrate.NewWithDatabaseInstance("file://"+migrationsPath, "mysql", driver)
	}
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	from := migrationsPath
	if from == "" {
		from = "embedded"
	}
	slog.Info("kv_store schema ready",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
		slog.String("source", from),
	)
	return nil
}
