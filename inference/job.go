package inference

import (
	"context"
	"time"
)

type JobKind string

const (
	JobKindClassification JobKind = "classification"
	JobKindDetection      JobKind = "detection"
)

type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one invocation of an external model over a folder.
type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	InputFolder string     `json:"input_folder"`
	ModelRef    string     `json:"model_ref"`
	OutputPath  string     `json:"output_path"`
	Status      JobStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ExitCode    int        `json:"exit_code"`
	Error       string     `json:"error,omitempty"`
}

// Duration returns how long the job ran, zero while it is running.
func (j *Job) Duration() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// JobRecorder stores jobs. RecordJob inserts a new job or replaces the stored
// job with the same ID.
type JobRecorder interface {
	RecordJob(ctx context.Context, job *Job) error
}

// JobLister lists stored jobs, most recent first.
type JobLister interface {
	ListRecentJobs(ctx context.Context, limit int) ([]*Job, error)
}
