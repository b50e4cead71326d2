package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLStore persists values in the kv_store table created by
// db/migrations/000001_create_kv_store. All SQL lives here.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store backed by the given MariaDB pool.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT store_value FROM kv_store WHERE store_key = ?`, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("selecting %s: %w", key, err)
	}
	return v, true, nil
}

// Set implements Store with an upsert so the whole value is replaced in one
// statement.
func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO kv_store (store_key, store_value, updated_at)
	          VALUES (?, ?, UTC_TIMESTAMP())
	          ON DUPLICATE KEY UPDATE store_value = VALUES(store_value), updated_at = VALUES(updated_at)`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("upserting %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE store_key = ?`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
