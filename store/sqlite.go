package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter stores documents in a SQLite database file.
type SQLiteAdapter struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. Use ":memory:" for a
// private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	a := &SQLiteAdapter{db: db}
	if err := a.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLiteAdapter) init(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

func (a *SQLiteAdapter) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value string
	err := a.db.QueryRowContext(ctx, `SELECT value FROM documents WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get %q: %w", key, err)
	}
	return json.RawMessage(value), true, nil
}

func (a *SQLiteAdapter) Set(ctx context.Context, key string, value json.RawMessage) error {
	query := `
	INSERT INTO documents (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`
	if _, err := a.db.ExecContext(ctx, query, key, string(value)); err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

func (a *SQLiteAdapter) Delete(ctx context.Context, key string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}

func (a *SQLiteAdapter) Keys(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT key FROM documents ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("store: keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database.
func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}
