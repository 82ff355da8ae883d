package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteBackend persists items in a single SQLite table.
type SQLiteBackend struct {
	dbConn *sqlx.DB
}

var _ Backend = (*SQLiteBackend)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies migrations.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("connecting to db: %w", err)
	}

	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting dialect for migrations: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migration: %w", err)
	}

	return &SQLiteBackend{dbConn: db}, nil
}

// Close terminates the database connection.
func (b *SQLiteBackend) Close() error {
	if err := b.dbConn.Close(); err != nil {
		return fmt.Errorf("closing storage db: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) GetItem(key string) (string, bool, error) {
	var value string
	err := b.dbConn.Get(&value, `SELECT value FROM storage_items WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting item: %w", err)
	}
	return value, true, nil
}

func (b *SQLiteBackend) SetItem(key, value string) error {
	query := `INSERT INTO storage_items(key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err := b.dbConn.Exec(query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("setting item: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) RemoveItem(key string) error {
	if _, err := b.dbConn.Exec(`DELETE FROM storage_items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("removing item: %w", err)
	}
	return nil
}

// Keys implements Lister. Keys are sorted.
func (b *SQLiteBackend) Keys(prefix string) ([]string, error) {
	var keys []string
	err := b.dbConn.Select(&keys, `SELECT key FROM storage_items WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return keys, nil
}
