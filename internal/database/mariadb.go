// Package database opens the optional shared backends of the key-value
// store: a MariaDB pool holding the kv_store table, or a Redis client. Both
// are created once in main and handed to app.New.
package database

import (
	"database/sql"
	"fmt"

	// Registers the "mysql" driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/beacon/internal/config"
)

// NewMariaDB opens the pool for the kv_store table and waits until the
// server answers.
func NewMariaDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	// The audit log is one row rewritten per action, so a small pool is
	// plenty; the limits stay configurable for shared servers.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := waitReady("mariadb", defaultPingPolicy, db.PingContext); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
