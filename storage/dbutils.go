// Package storage persists the capture session checkpoint and the
// inference job ledger in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TimeToString converts a time.Time to RFC3339Nano string for database storage
func TimeToString(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// StringToTime converts an RFC3339Nano string from database to time.Time
func StringToTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// TimePtrToString converts a *time.Time to string for database storage
// Returns nil if the pointer is nil, otherwise converts the time value
func TimePtrToString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	result := TimeToString(*t)
	return &result
}

// nullableTime maps the zero time to NULL
func nullableTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	return TimePtrToString(&t)
}

// parseNullableTime maps NULL to the zero time
func parseNullableTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return StringToTime(s.String)
}

// Open opens the SQLite database at path. The field station is the only
// writer, so a single connection is used.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	return db, nil
}

// NewInMemoryDB creates a new in-memory SQLite database for testing
func NewInMemoryDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
