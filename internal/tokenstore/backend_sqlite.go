// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_values (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteBackend persists values in a local SQLite file, the default durable
// store of a desktop client.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// OpenSQLiteBackend opens (or creates) the database file at path.
func OpenSQLiteBackend(context context.Context, path string) (*SQLiteBackend, error) {

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("sqlite_token_store_mkdir_failed: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite_token_store_open_failed: %w", err)
	}

	// A single writer keeps SQLite from returning SQLITE_BUSY between our own goroutines
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite_token_store_schema_failed: %w", err)
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

/*
Get retrieves one value.

Parameters:
  - context: context.Context
  - key: string

Returns:
  - string: Stored value
  - bool: Presence
  - error: Query failures
*/
func (backend *SQLiteBackend) Get(context context.Context, key string) (string, bool, error) {

	var value string
	err := backend.db.QueryRowContext(context,
		`SELECT value FROM session_values WHERE key = ?`, key).Scan(&value)

	// Handle errors
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("sqlite_token_get_failed: %w", err)
	}

	return value, true, nil
}

/*
SetMany upserts all pairs in one transaction.

Parameters:
  - context: context.Context
  - values: map[string]string

Returns:
  - error: Persistence failures
*/
func (backend *SQLiteBackend) SetMany(context context.Context, values map[string]string) error {

	if len(values) == 0 {
		return nil
	}

	return backend.inTx(context, func(tx *sql.Tx) error {
		now := time.Now().Unix()
		for key, value := range values {
			_, err := tx.ExecContext(context,
				`INSERT INTO session_values (key, value, updated_at) VALUES (?, ?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				key, value, now)
			if err != nil {
				return fmt.Errorf("sqlite_token_set_failed: %w", err)
			}
		}
		return nil
	})
}

/*
DeleteMany removes all keys in one transaction.

Parameters:
  - context: context.Context
  - keys: []string

Returns:
  - error: Deletion failures
*/
func (backend *SQLiteBackend) DeleteMany(context context.Context, keys ...string) error {

	if len(keys) == 0 {
		return nil
	}

	return backend.inTx(context, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(context, `DELETE FROM session_values WHERE key = ?`, key); err != nil {
				return fmt.Errorf("sqlite_token_delete_failed: %w", err)
			}
		}
		return nil
	})
}

func (backend *SQLiteBackend) inTx(context context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := backend.db.BeginTx(context, nil)
	if err != nil {
		return fmt.Errorf("sqlite_token_tx_begin_failed: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite_token_tx_commit_failed: %w", err)
	}
	return nil
}

func (backend *SQLiteBackend) Ping(context context.Context) error {
	return backend.db.PingContext(context)
}

func (backend *SQLiteBackend) Close() error {
	return backend.db.Close()
}

// Path returns the database file location.
func (backend *SQLiteBackend) Path() string { return backend.path }
