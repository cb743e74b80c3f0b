// ABOUTME: SQLite implementation of the Cache interface
// ABOUTME: Pure-Go modernc driver by default, cgo mattn driver on request

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by NewSQLiteCacheWithDriver.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, no cgo
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3, requires cgo
)

// SQLiteCache implements Cache on a single SQLite table
type SQLiteCache struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteCache opens a cache at path using the pure-Go driver.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	return NewSQLiteCacheWithDriver(DriverModernc, path)
}

// NewSQLiteCacheWithDriver opens a cache at path using the named database/sql driver.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteCacheWithDriver(driver, path string) (*SQLiteCache, error) {
	logger := slog.Default().With("component", "store", "driver", driver)

	switch driver {
	case DriverModernc, DriverMattn:
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: writes are serialised and ":memory:" stays a single database
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	c := &SQLiteCache{
		db:     db,
		logger: logger,
	}

	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("SQLite cache initialized", "path", path)
	return c, nil
}

// createSchema creates the cache table if it doesn't exist
func (c *SQLiteCache) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key        TEXT PRIMARY KEY,
			value      BLOB,
			updated_at TEXT NOT NULL
		);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Close closes the database connection
func (c *SQLiteCache) Close() error {
	c.logger.Debug("closing SQLite cache")
	return c.db.Close()
}

// Get returns the value stored under key, or ErrNotFound.
func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, c.wrap("reading "+key, err)
	}
	return value, nil
}

// Set upserts key.
func (c *SQLiteCache) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO cache_entries (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := c.db.ExecContext(ctx, query, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return c.wrap("writing "+key, err)
	}
	return nil
}

// Delete removes keys in one statement. Missing keys are ignored.
func (c *SQLiteCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	_, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return c.wrap("deleting keys", err)
	}
	return nil
}

// Keys lists keys with the given prefix in ascending order.
func (c *SQLiteCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT key FROM cache_entries WHERE key >= ? ORDER BY key`
	args := []any{prefix}
	if end, ok := prefixEnd(prefix); ok {
		query = `SELECT key FROM cache_entries WHERE key >= ? AND key < ? ORDER BY key`
		args = append(args, end)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.wrap("listing keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// prefixEnd returns the smallest string above every string that starts with
// prefix, comparing bytes as SQLite's BINARY collation does. It reports false
// when no bound exists, as for an empty prefix.
func prefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

// wrap maps database/sql's closed-database error onto ErrClosed.
func (c *SQLiteCache) wrap(op string, err error) error {
	if strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}
