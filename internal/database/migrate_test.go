package database

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/keyxmakerx/beacon/db"
)

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	dir := filepath.Join(projectRoot, "db", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

// TestMigrations_UpHasDown ensures every up migration can be rolled back.
func TestMigrations_UpHasDown(t *testing.T) {
	dir := migrationsDir(t)
	ups, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no migration files found")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := os.Stat(down); err != nil {
			t.Errorf("%s has no matching down migration", filepath.Base(up))
		}
	}
}

// TestMigrations_KVStoreColumns checks the columns kvstore.SQLStore queries.
// A rename in SQL without the matching Go change only surfaces at runtime.
func TestMigrations_KVStoreColumns(t *testing.T) {
	dir := migrationsDir(t)
	data, err := os.ReadFile(filepath.Join(dir, "000001_create_kv_store.up.sql"))
	if err != nil {
		t.Fatalf("reading kv_store migration: %v", err)
	}
	content := string(data)

	for _, col := range []string{"store_key", "store_value", "updated_at", "PRIMARY KEY (store_key)"} {
		if !strings.Contains(content, col) {
			t.Errorf("kv_store migration is missing %q", col)
		}
	}

	// audit_log_v1 holds the whole event collection; TEXT (64KB) would
	// truncate a busy campaign's history.
	if !strings.Contains(strings.ToUpper(content), "LONGTEXT") {
		t.Error("store_value must be LONGTEXT")
	}
}

// TestMigrations_Embedded checks the binary carries the same files as disk.
func TestMigrations_Embedded(t *testing.T) {
	embedded, err := fs.Glob(db.Migrations, "migrations/*.sql")
	if err != nil {
		t.Fatalf("globbing embedded migrations: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join(migrationsDir(t), "*.sql"))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Errorf("expected %d embedded migrations, got %d", len(onDisk), len(embedded))
	}
}

func TestWaitReady(t *testing.T) {
	p := pingPolicy{attempts: 3, timeout: time.Second, backoff: time.Millisecond, maxBackoff: time.Millisecond}

	calls := 0
	err := waitReady("test", p, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("expected success on second attempt, got %v after %d calls", err, calls)
	}

	boom := errors.New("connection refused")
	calls = 0
	err = waitReady("test", p, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Errorf("expected wrapped error after 3 attempts, got %v after %d calls", err, calls)
	}
}
