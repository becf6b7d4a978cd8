package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conservacam/fieldcam/inference"
)

const (
	// DefaultJobListLimit applies when a non-positive limit is requested
	DefaultJobListLimit = 20
	// MaxJobListLimit caps a single listing
	MaxJobListLimit = 200
)

// SQLiteJobRepository implements inference.JobRecorder and inference.JobLister using SQLite
type SQLiteJobRepository struct {
	db *sql.DB
}

// NewSQLiteJobRepository creates a new SQLite-based inference job ledger
func NewSQLiteJobRepository(db *sql.DB) (*SQLiteJobRepository, error) {
	repo := &SQLiteJobRepository{db: db}
	if err := repo.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return repo, nil
}

// createTables ensures that the required tables exist
func (r *SQLiteJobRepository) createTables() error {
	createJobsTable := `
	CREATE TABLE IF NOT EXISTS inference_jobs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		input_folder TEXT NOT NULL,
		model_ref TEXT NOT NULL,
		output_path TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		exit_code INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);`

	createStartedAtIndex := `
	CREATE INDEX IF NOT EXISTS idx_inference_jobs_started_at ON inference_jobs(started_at);`

	if _, err := r.db.Exec(createJobsTable); err != nil {
		return err
	}
	_, err := r.db.Exec(createStartedAtIndex)
	return err
}

// RecordJob inserts a job or replaces the stored job with the same ID
func (r *SQLiteJobRepository) RecordJob(ctx context.Context, job *inference.Job) error {
	query := `
	INSERT INTO inference_jobs (id, kind, input_folder, model_ref, output_path, status, started_at, finished_at, exit_code, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		finished_at = excluded.finished_at,
		exit_code = excluded.exit_code,
		error = excluded.error`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, string(job.Kind), job.InputFolder, job.ModelRef, job.OutputPath, string(job.Status),
		TimeToString(job.StartedAt.UTC()), TimePtrToString(job.FinishedAt), job.ExitCode, job.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record inference job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID, nil if it does not exist
func (r *SQLiteJobRepository) GetByID(ctx context.Context, id string) (*inference.Job, error) {
	query := `
	SELECT id, kind, input_folder, model_ref, output_path, status, started_at, finished_at, exit_code, error
	FROM inference_jobs WHERE id = ?`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get inference job by ID: %w", err)
	}
	return job, nil
}

// ListRecentJobs returns up to limit jobs, most recently started first
func (r *SQLiteJobRepository) ListRecentJobs(ctx context.Context, limit int) ([]*inference.Job, error) {
	if limit <= 0 {
		limit = DefaultJobListLimit
	}
	if limit > MaxJobListLimit {
		limit = MaxJobListLimit
	}

	query := `
	SELECT id, kind, input_folder, model_ref, output_path, status, started_at, finished_at, exit_code, error
	FROM inference_jobs ORDER BY started_at DESC, rowid DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query inference jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*inference.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inference job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*inference.Job, error) {
	job := &inference.Job{}
	var kind, status, startedAtStr string
	var finishedAtStr sql.NullString

	err := row.Scan(
		&job.ID, &kind, &job.InputFolder, &job.ModelRef, &job.OutputPath, &status,
		&startedAtStr, &finishedAtStr, &job.ExitCode, &job.Error,
	)
	if err != nil {
		return nil, err
	}
	job.Kind = inference.JobKind(kind)
	job.Status = inference.JobStatus(status)

	job.StartedAt, err = StringToTime(startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}

	if finishedAtStr.Valid {
		finishedAt, err := StringToTime(finishedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at timestamp: %w", err)
		}
		job.FinishedAt = &finishedAt
	}

	return job, nil
}
