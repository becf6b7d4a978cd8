package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conservacam/fieldcam/session"
)

// SQLiteSessionRepository implements session.Checkpointer using SQLite.
// It keeps a single row holding the latest state.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSQLiteSessionRepository creates a new SQLite-based session checkpoint store
func NewSQLiteSessionRepository(db *sql.DB) (*SQLiteSessionRepository, error) {
	repo := &SQLiteSessionRepository{db: db}
	if err := repo.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return repo, nil
}

// createTables ensures that the required tables exist
func (r *SQLiteSessionRepository) createTables() error {
	createSessionTable := `
	CREATE TABLE IF NOT EXISTS session_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		day TEXT NOT NULL,
		count INTEGER NOT NULL,
		dispatches INTEGER NOT NULL,
		last_capture TEXT,
		last_dispatch TEXT,
		updated_at TEXT NOT NULL
	);`

	_, err := r.db.Exec(createSessionTable)
	return err
}

// LoadState returns the checkpointed state, or nil if none exists
func (r *SQLiteSessionRepository) LoadState(ctx context.Context) (*session.State, error) {
	query := `
	SELECT day, count, dispatches, last_capture, last_dispatch
	FROM session_state WHERE id = 1`

	row := r.db.QueryRowContext(ctx, query)

	state := &session.State{}
	var lastCapture, lastDispatch sql.NullString
	err := row.Scan(&state.Day, &state.Count, &state.Dispatches, &lastCapture, &lastDispatch)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}

	state.LastCapture, err = parseNullableTime(lastCapture)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_capture timestamp: %w", err)
	}

	state.LastDispatch, err = parseNullableTime(lastDispatch)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_dispatch timestamp: %w", err)
	}

	return state, nil
}

// SaveState replaces the checkpointed state
func (r *SQLiteSessionRepository) SaveState(ctx context.Context, state session.State) error {
	query := `
	INSERT INTO session_state (id, day, count, dispatches, last_capture, last_dispatch, updated_at)
	VALUES (1, ?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	ON CONFLICT(id) DO UPDATE SET
		day = excluded.day,
		count = excluded.count,
		dispatches = excluded.dispatches,
		last_capture = excluded.last_capture,
		last_dispatch = excluded.last_dispatch,
		updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		state.Day, state.Count, state.Dispatches,
		nullableTime(state.LastCapture), nullableTime(state.LastDispatch),
	)
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}

	return nil
}
