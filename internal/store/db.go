package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a lookup that must succeed finds no row.
	ErrNotFound = errors.New("not found")
	// ErrConstraint is returned when a write violates referential integrity,
	// e.g. a message whose chat row was never written.
	ErrConstraint = errors.New("constraint violation")
)

// DB wraps a SQLite database connection for the app-owned messages.db.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	return open(path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
}

// OpenReadOnly opens the database for readers that must never write,
// such as the CLI running next to a live daemon.
func OpenReadOnly(path string) (*DB, error) {
	return open(fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path))
}

func open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return err
}
